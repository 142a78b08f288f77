package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application/analysis"
	"github.com/bryanwahyu/trapscan/internal/application/cache"
	apphistory "github.com/bryanwahyu/trapscan/internal/application/history"
	"github.com/bryanwahyu/trapscan/internal/application/ratelimit"
	"github.com/bryanwahyu/trapscan/internal/application/report"
	"github.com/bryanwahyu/trapscan/internal/application/session"
	appsettings "github.com/bryanwahyu/trapscan/internal/application/settings"
	"github.com/bryanwahyu/trapscan/internal/application/usage"
	appwatchlist "github.com/bryanwahyu/trapscan/internal/application/watchlist"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/infra/extract"
	"github.com/bryanwahyu/trapscan/internal/middleware"
)

const maxBodyBytes = 2 << 20

// Deps are the services behind the API. Session, Watchlist, Reports and
// Fetcher may be nil; their routes then answer 404.
type Deps struct {
	Analysis  *analysis.Service
	Usage     *usage.Tracker
	Queue     *ratelimit.Queue
	Cache     *cache.Cache
	Offline   *cache.Offline
	History   *apphistory.Service
	Reports   *report.Service
	Watchlist *appwatchlist.Service
	Settings  *appsettings.Service
	Session   *session.Manager
	Fetcher   *extract.Fetcher
	Checkers  map[string]middleware.HealthChecker
}

type Options struct {
	APIKeys        map[string]string
	AllowedOrigins []string
	// RateLimiter limits inbound requests; nil disables it
	RateLimiter *middleware.RateLimiter
	// AllowPrivateFetch lets /v1/extract fetch loopback and private hosts
	AllowPrivateFetch bool
	// MaxWait caps the long-poll wait of the status endpoint
	MaxWait time.Duration
}

type Router struct {
	Deps
	opts Options
}

func NewRouter(deps Deps, opts Options) http.Handler {
	if opts.MaxWait <= 0 {
		opts.MaxWait = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"chrome-extension://*", "moz-extension://*", "http://localhost:*"}
	}
	r := &Router{Deps: deps, opts: opts}
	mux := chi.NewRouter()

	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Retry-After", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(opts.RateLimiter.Middleware)
	}

	mux.Get("/health", middleware.HealthHandler(deps.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler(r.cooldown))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyses", r.wrap(r.handleStartAnalysis))
		rt.Post("/analyses/sync", r.wrap(r.handleAnalyzeSync))
		rt.Get("/analyses/status", r.wrap(r.handleAnalysisStatus))
		rt.Get("/analyses/events", r.handleAnalysisEvents)
		rt.Post("/extract", r.wrap(r.handleExtract))

		rt.Get("/usage", r.wrap(r.handleUsage))
		rt.Delete("/usage", r.wrap(r.handleUsageReset))
		rt.Get("/plans", r.wrap(r.handlePlans))
		rt.Get("/subscription", r.wrap(r.handleSubscription))
		rt.Put("/subscription", r.wrap(r.handleSubscribe))
		rt.Delete("/subscription", r.wrap(r.handleCancelSubscription))
		rt.Get("/ratelimit", r.wrap(r.handleRateStatus))

		rt.Get("/cache", r.wrap(r.handleCache))
		rt.Delete("/cache", r.wrap(r.handleCacheClear))
		rt.Get("/offline", r.wrap(r.handleOffline))
		rt.Delete("/offline", r.wrap(r.handleOfflineDelete))

		rt.Get("/history", r.wrap(r.handleHistory))
		rt.Delete("/history", r.wrap(r.handleHistoryClear))
		rt.Get("/history/item", r.wrap(r.handleHistoryItem))
		rt.Delete("/history/item", r.wrap(r.handleHistoryDelete))
		rt.Get("/history/summary", r.wrap(r.handleHistorySummary))
		rt.Get("/history/export", r.wrap(r.handleExport))
		rt.Post("/history/export", r.wrap(r.handlePublish))
		rt.Get("/history/compare", r.wrap(r.handleCompare))

		rt.Get("/watchlist", r.wrap(r.handleWatchlist))
		rt.Post("/watchlist", r.wrap(r.handleWatch))
		rt.Delete("/watchlist", r.wrap(r.handleUnwatch))
		rt.Post("/watchlist/ack", r.wrap(r.handleWatchAck))
		rt.Post("/watchlist/check", r.wrap(r.handleWatchCheck))

		rt.Get("/settings", r.wrap(r.handleSettings))
		rt.Put("/settings", r.wrap(r.handleUpdateSettings))
		rt.Delete("/settings", r.wrap(r.handleResetSettings))

		rt.Get("/session", r.wrap(r.handleSession))
		rt.Post("/session", r.wrap(r.handleLogin))
		rt.Delete("/session", r.wrap(r.handleLogout))
	})

	return mux
}

func (r *Router) cooldown(ctx context.Context) time.Duration {
	if r.Queue == nil {
		return 0
	}
	return time.Duration(r.Queue.RateStatus(ctx).CooldownSeconds) * time.Second
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			writeError(w, req, err)
		}
	}
}

var errDisabled = apperr.New(apperr.KindNotFound, "feature not enabled on this server")

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindRateLimit, apperr.KindUsageLimit:
		return http.StatusTooManyRequests
	case apperr.KindNoContent, apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error      string      `json:"error"`
	Kind       apperr.Kind `json:"kind"`
	Retryable  bool        `json:"retryable"`
	Title      string      `json:"title,omitempty"`
	Suggestion string      `json:"suggestion,omitempty"`
}

func writeError(w http.ResponseWriter, req *http.Request, err error) {
	rep := apperr.Classify(err)
	status := statusFor(rep.Kind)
	if status >= 500 {
		log.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
	}
	if d := apperr.RetryAfterOf(err); d > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
	}
	writeJSON(w, status, errorBody{
		Error:      rep.Message,
		Kind:       rep.Kind,
		Retryable:  rep.Retryable,
		Title:      rep.Title,
		Suggestion: rep.Suggestion,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(req *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Wrap(apperr.KindInvalid, "invalid JSON body", err)
}

func queryInt(req *http.Request, key string) int {
	n, _ := strconv.Atoi(req.URL.Query().Get(key))
	return n
}

func requireURL(req *http.Request) (string, error) {
	u := req.URL.Query().Get("url")
	if err := middleware.ValidateURL(u); err != nil {
		return "", apperr.Wrap(apperr.KindInvalid, "invalid url", err)
	}
	return u, nil
}
