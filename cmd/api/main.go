package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application"
	aisvc "github.com/bryanwahyu/trapscan/internal/application/ai"
	"github.com/bryanwahyu/trapscan/internal/application/analysis"
	"github.com/bryanwahyu/trapscan/internal/application/cache"
	apphistory "github.com/bryanwahyu/trapscan/internal/application/history"
	"github.com/bryanwahyu/trapscan/internal/application/jobs"
	"github.com/bryanwahyu/trapscan/internal/application/ratelimit"
	"github.com/bryanwahyu/trapscan/internal/application/report"
	"github.com/bryanwahyu/trapscan/internal/application/session"
	appsettings "github.com/bryanwahyu/trapscan/internal/application/settings"
	"github.com/bryanwahyu/trapscan/internal/application/usage"
	appwatchlist "github.com/bryanwahyu/trapscan/internal/application/watchlist"
	"github.com/bryanwahyu/trapscan/internal/config"
	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	"github.com/bryanwahyu/trapscan/internal/domain/history"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
	domainsession "github.com/bryanwahyu/trapscan/internal/domain/session"
	"github.com/bryanwahyu/trapscan/internal/domain/settings"
	"github.com/bryanwahyu/trapscan/internal/domain/watchlist"
	"github.com/bryanwahyu/trapscan/internal/infra/ai/heuristic"
	"github.com/bryanwahyu/trapscan/internal/infra/ai/openai"
	"github.com/bryanwahyu/trapscan/internal/infra/ai/remote"
	"github.com/bryanwahyu/trapscan/internal/infra/db/kvstore"
	mysqlp "github.com/bryanwahyu/trapscan/internal/infra/db/mysql"
	"github.com/bryanwahyu/trapscan/internal/infra/db/postgres"
	"github.com/bryanwahyu/trapscan/internal/infra/db/sqlite"
	"github.com/bryanwahyu/trapscan/internal/infra/extract"
	"github.com/bryanwahyu/trapscan/internal/infra/httpserver"
	"github.com/bryanwahyu/trapscan/internal/infra/kv/leveldb"
	"github.com/bryanwahyu/trapscan/internal/infra/kv/memory"
	"github.com/bryanwahyu/trapscan/internal/infra/notify"
	minioStore "github.com/bryanwahyu/trapscan/internal/infra/storage"
	"github.com/bryanwahyu/trapscan/internal/logging"
	"github.com/bryanwahyu/trapscan/internal/middleware"
)

type kvBackend interface {
	kv.Store
	Check(ctx context.Context) error
}

func main() {
	config.LoadDotEnv()

	// path config.yaml
	var path string
	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()
	if path == "" {
		path = "config.yaml"
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			path = v
		}
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)

	ctx := context.Background()
	clock := application.SystemClock{}
	checkers := map[string]middleware.HealthChecker{}

	// open kv store
	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("kv store open error")
	}
	defer closeStore()
	checkers["kv"] = store

	// init history repo
	historyRepo, db, err := openHistory(ctx, cfg, store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.History.Driver).Msg("history store error")
	}
	if db != nil {
		defer db.Close()
		checkers["db"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("timezone error")
	}

	// init rate limiter + queue
	limiter := ratelimit.NewLimiter(store, clock, ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Cooldown:             cfg.RateLimit.Cooldown,
		MaxRetries:           cfg.RateLimit.MaxRetries,
		RetryDelay:           cfg.RateLimit.RetryDelay,
		BackoffMultiplier:    cfg.RateLimit.BackoffMultiplier,
		Spacing:              cfg.RateLimit.Spacing,
	})
	queue := ratelimit.NewQueue(limiter, clock, application.Sleep)
	registry := jobs.NewRegistry(clock, cfg.Jobs.Retention)

	// init backend
	var sessions *session.Manager
	if cfg.Analysis.AuthURL != "" {
		sessions = session.NewManager(store, &http.Client{Timeout: 30 * time.Second}, cfg.Analysis.AuthURL, cfg.Analysis.AnonKey, clock)
	}
	backend, err := newBackend(cfg, sessions)
	if err != nil {
		log.Fatal().Err(err).Msg("analysis backend error")
	}

	// init services
	tracker := usage.NewTracker(store, clock, loc)
	settingsSvc := appsettings.NewService(store, settings.Settings{
		MaxChars:        cfg.Settings.MaxChars,
		CacheResults:    cfg.Settings.CacheResults,
		AnalysisMode:    ai.Mode(cfg.Settings.AnalysisMode),
		RedactPII:       cfg.Settings.RedactPII,
		WatchlistAlerts: cfg.Settings.WatchlistAlerts,
	})
	results := cache.New(store, clock, cache.Config{Key: kv.KeyAnalysisCache, MaxEntries: cfg.Cache.MaxEntries, TTL: cfg.Cache.TTL})
	offline := cache.NewOffline(cache.New(store, clock, cache.Config{Key: kv.KeyOfflineCache, MaxEntries: cfg.Cache.OfflineMaxEntries, TTL: cfg.Cache.OfflineTTL}))
	historySvc := apphistory.NewService(historyRepo, clock)

	svc := &analysis.Service{
		Usage:    tracker,
		Settings: settingsSvc,
		Cache:    results,
		Offline:  offline,
		Backend:  aisvc.NewService(backend, queue),
		History:  historySvc,
		Jobs:     registry,
		Observer: middleware.AnalysisObserver{},
		Clock:    clock,
	}

	fetcher := extract.NewFetcher(cfg.Extract.Timeout)
	if cfg.Extract.UserAgent != "" {
		fetcher.UserAgent = cfg.Extract.UserAgent
	}

	// init watchlist
	var watch *appwatchlist.Service
	if cfg.Watchlist.Enabled {
		watch = appwatchlist.NewService(store, tracker, settingsSvc, fetcher, clock, notifiers(cfg)...)
	}

	// init minio
	var uploader report.Uploader
	if cfg.Minio.Enabled {
		objects, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("minio init error")
		}
		objects.Public = cfg.Minio.Public
		uploader = objects
		checkers["minio"] = objects
	}
	reports := report.NewService(historyRepo, tracker, uploader, clock)

	middleware.RegisterGauge("queue_length", func() any { return queue.Status().Length })
	middleware.RegisterGauge("jobs_running", func() any { return registry.Running() })
	middleware.RegisterGauge("jobs_tracked", func() any { return registry.Len() })

	inbound := middleware.NewRateLimiter(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSecond)

	// init router
	deps := httpserver.Deps{
		Analysis:  svc,
		Usage:     tracker,
		Queue:     queue,
		Cache:     results,
		Offline:   offline,
		History:   historySvc,
		Reports:   reports,
		Watchlist: watch,
		Settings:  settingsSvc,
		Session:   sessions,
		Fetcher:   fetcher,
		Checkers:  checkers,
	}
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(deps, httpserver.Options{
		APIKeys:           cfg.Server.APIKeys,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RateLimiter:       inbound,
		AllowPrivateFetch: cfg.Server.AllowPrivateFetch,
		MaxWait:           cfg.Server.MaxWait,
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	bg, stopBackground := context.WithCancel(context.Background())
	if watch != nil {
		go watch.Run(bg, cfg.Watchlist.Interval)
	}

	// run server
	go func() {
		log.Info().Str("addr", addr).Str("backend", cfg.Analysis.Backend).Str("history", cfg.History.Driver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	stopBackground()
	inbound.Close()
	queue.Close()
	registry.Close()
}

func openStore(cfg *config.Config) (kvBackend, func(), error) {
	if cfg.Storage.Driver == "memory" {
		return memory.New(), func() {}, nil
	}
	if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
		return nil, nil, err
	}
	s, err := leveldb.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("close kv store")
		}
	}, nil
}

// openHistory picks the history repository. SQL drivers also return the
// handle so it can be health checked and closed.
func openHistory(ctx context.Context, cfg *config.Config, store kv.Store) (history.Repository, *sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.History.Driver {
	case "kv":
		return kvstore.NewHistoryRepository(store), nil, nil
	case "sqlite":
		if cfg.History.DSN == "" && cfg.History.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0o755); err != nil {
				return nil, nil, err
			}
		}
		db, err = sqlite.Connect(ctx, cfg.HistoryDSN())
		if err != nil {
			return nil, nil, err
		}
		repo := sqlite.NewHistoryRepository(db)
		return repo, db, repo.Migrate(ctx)
	case "mysql":
		db, err = mysqlp.Connect(ctx, cfg.HistoryDSN())
		if err != nil {
			return nil, nil, err
		}
		repo := mysqlp.NewHistoryRepository(db)
		return repo, db, repo.Migrate(ctx)
	case "postgres":
		db, err = postgres.Connect(ctx, cfg.HistoryDSN())
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.NewHistoryRepository(db)
		return repo, db, repo.Migrate(ctx)
	}
	return nil, nil, fmt.Errorf("unknown history driver %q", cfg.History.Driver)
}

func newBackend(cfg *config.Config, sessions *session.Manager) (ai.Client, error) {
	switch cfg.Analysis.Backend {
	case "openai":
		return openai.NewClient(cfg.Analysis.OpenAI.APIKey, cfg.Analysis.OpenAI.BaseURL, cfg.Analysis.OpenAI.Model), nil
	case "heuristic":
		return heuristic.New(), nil
	case "remote":
		var tokens domainsession.TokenSource = anonToken(cfg.Analysis.AnonKey)
		if sessions != nil {
			tokens = sessions
		}
		return remote.NewClient(cfg.Analysis.Endpoint, cfg.Analysis.AnonKey, tokens, cfg.Analysis.Timeout), nil
	}
	return nil, fmt.Errorf("unknown analysis backend %q", cfg.Analysis.Backend)
}

// anonToken is used when no auth URL is configured; the service then only
// sees the anonymous key.
type anonToken string

func (t anonToken) AccessToken(context.Context) (string, error) { return string(t), nil }

func notifiers(cfg *config.Config) []watchlist.Notifier {
	out := []watchlist.Notifier{notify.LogNotifier{}}
	if cfg.Email.APIKey == "" || cfg.Email.To == "" {
		return out
	}
	var to []string
	for _, addr := range strings.Split(cfg.Email.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	email, err := notify.NewEmailNotifier(cfg.Email.APIKey, cfg.Email.FromEmail, cfg.Email.FromName, to)
	if err != nil {
		log.Warn().Err(err).Msg("email alerts disabled")
		return out
	}
	return append(out, email)
}
