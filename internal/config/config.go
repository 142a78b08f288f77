package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslMode"`
}

type Config struct {
	Server struct {
		Port              int               `yaml:"port"`
		ReadTimeout       time.Duration     `yaml:"readTimeout"`
		WriteTimeout      time.Duration     `yaml:"writeTimeout"`
		APIKeys           map[string]string `yaml:"apiKeys"`
		AllowedOrigins    []string          `yaml:"allowedOrigins"`
		AllowPrivateFetch bool              `yaml:"allowPrivateFetch"`
		MaxWait           time.Duration     `yaml:"maxWait"`
		RateLimit         struct {
			Capacity        int     `yaml:"capacity"`
			RefillPerSecond float64 `yaml:"refillPerSecond"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	Storage struct {
		Driver string `yaml:"driver"` // leveldb, memory
		Path   string `yaml:"path"`
	} `yaml:"storage"`

	History struct {
		Driver   string   `yaml:"driver"` // kv, sqlite, mysql, postgres
		Path     string   `yaml:"path"`   // sqlite file
		DSN      string   `yaml:"dsn"`    // overrides database
		Database Database `yaml:"database"`
	} `yaml:"history"`

	Analysis struct {
		Backend  string        `yaml:"backend"` // remote, openai, heuristic
		Endpoint string        `yaml:"endpoint"`
		AuthURL  string        `yaml:"authURL"`
		AnonKey  string        `yaml:"anonKey"`
		Timeout  time.Duration `yaml:"timeout"`
		OpenAI   struct {
			APIKey  string `yaml:"apiKey"`
			BaseURL string `yaml:"baseURL"`
			Model   string `yaml:"model"`
		} `yaml:"openai"`
	} `yaml:"analysis"`

	RateLimit struct {
		MaxRequestsPerMinute int           `yaml:"maxRequestsPerMinute"`
		Cooldown             time.Duration `yaml:"cooldown"`
		MaxRetries           int           `yaml:"maxRetries"`
		RetryDelay           time.Duration `yaml:"retryDelay"`
		BackoffMultiplier    float64       `yaml:"backoffMultiplier"`
		Spacing              time.Duration `yaml:"spacing"`
	} `yaml:"rateLimit"`

	Cache struct {
		MaxEntries        int           `yaml:"maxEntries"`
		TTL               time.Duration `yaml:"ttl"`
		OfflineMaxEntries int           `yaml:"offlineMaxEntries"`
		OfflineTTL        time.Duration `yaml:"offlineTTL"`
	} `yaml:"cache"`

	Jobs struct {
		Retention time.Duration `yaml:"retention"`
	} `yaml:"jobs"`

	Usage struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"usage"`

	Settings struct {
		MaxChars        int    `yaml:"maxChars"`
		CacheResults    bool   `yaml:"cacheResults"`
		AnalysisMode    string `yaml:"analysisMode"`
		RedactPII       bool   `yaml:"redactPII"`
		WatchlistAlerts bool   `yaml:"watchlistAlerts"`
	} `yaml:"settings"`

	Watchlist struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"watchlist"`

	Extract struct {
		Timeout   time.Duration `yaml:"timeout"`
		UserAgent string        `yaml:"userAgent"`
	} `yaml:"extract"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
		Public     bool   `yaml:"public"`
	} `yaml:"minio"`

	Email struct {
		APIKey    string `yaml:"apiKey"`
		FromEmail string `yaml:"fromEmail"`
		FromName  string `yaml:"fromName"`
		To        string `yaml:"to"`
	} `yaml:"email"`

	Client struct {
		Server       string        `yaml:"server"`
		APIKey       string        `yaml:"apiKey"`
		PollInterval time.Duration `yaml:"pollInterval"`
		MaxAttempts  int           `yaml:"maxAttempts"`
	} `yaml:"client"`
}

// DefaultConfig mirrors the limits of the browser extension.
func DefaultConfig() *Config {
	var c Config
	c.Server.Port = 8787
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 120 * time.Second
	c.Server.MaxWait = 60 * time.Second
	c.Server.RateLimit.Capacity = 60
	c.Server.RateLimit.RefillPerSecond = 1

	c.Logging.Level = "info"

	c.Storage.Driver = "leveldb"
	c.Storage.Path = "data/kv"

	c.History.Driver = "kv"
	c.History.Path = "data/history.db"

	c.Analysis.Backend = "remote"
	c.Analysis.Timeout = 90 * time.Second
	c.Analysis.OpenAI.Model = "gpt-4o-mini"

	c.RateLimit.MaxRequestsPerMinute = 10
	c.RateLimit.Cooldown = 60 * time.Second
	c.RateLimit.MaxRetries = 3
	c.RateLimit.RetryDelay = 2 * time.Second
	c.RateLimit.BackoffMultiplier = 2
	c.RateLimit.Spacing = 200 * time.Millisecond

	c.Cache.MaxEntries = 50
	c.Cache.TTL = 24 * time.Hour
	c.Cache.OfflineMaxEntries = 100
	c.Cache.OfflineTTL = 30 * 24 * time.Hour

	c.Jobs.Retention = 30 * time.Minute
	c.Usage.Timezone = "Local"

	c.Settings.MaxChars = 20000
	c.Settings.CacheResults = true
	c.Settings.AnalysisMode = "standard"
	c.Settings.WatchlistAlerts = true

	c.Watchlist.Enabled = true
	c.Watchlist.Interval = 24 * time.Hour

	c.Extract.Timeout = 20 * time.Second

	c.Minio.Region = "us-east-1"
	c.Minio.BucketName = "trapscan-reports"

	c.Client.Server = "http://127.0.0.1:8787"
	c.Client.PollInterval = time.Second
	c.Client.MaxAttempts = 60
	return &c
}

// Load baca file config.yaml di atas default. File yang tidak ada bukan error.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads the same file for the CLI, which only needs the client
// section, so daemon settings are not validated.
func LoadClient(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	var errs []error
	if cfg.Client.Server == "" {
		errs = append(errs, fmt.Errorf("client.server is required"))
	}
	if cfg.Client.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("client.pollInterval must be positive"))
	}
	if cfg.Client.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("client.maxAttempts must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadDotEnv loads .env into the process environment when present.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// ApplyEnv lets secrets come from the environment.
func (c *Config) ApplyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Analysis.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&c.Email.APIKey, "RESEND_API_KEY")
	set(&c.Analysis.AnonKey, "TRAPSCAN_ANON_KEY")
	set(&c.Analysis.Endpoint, "TRAPSCAN_ENDPOINT")
	set(&c.History.DSN, "TRAPSCAN_HISTORY_DSN")
	set(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	set(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	set(&c.Client.Server, "TRAPSCAN_SERVER")
	if v := os.Getenv("TRAPSCAN_API_KEY"); v != "" {
		c.Client.APIKey = v
		if c.Server.APIKeys == nil {
			c.Server.APIKeys = map[string]string{}
		}
		if _, ok := c.Server.APIKeys["env"]; !ok {
			c.Server.APIKeys["env"] = v
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (allowed: %v)", field, v, allowed))
	}
	positive := func(field string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", field))
		}
	}

	oneOf("storage.driver", c.Storage.Driver, "leveldb", "memory")
	oneOf("history.driver", c.History.Driver, "kv", "sqlite", "mysql", "postgres")
	oneOf("analysis.backend", c.Analysis.Backend, "remote", "openai", "heuristic")
	oneOf("settings.analysisMode", c.Settings.AnalysisMode, "flash", "standard", "deepdive", "neural")

	positive("server.port", int64(c.Server.Port))
	positive("rateLimit.maxRequestsPerMinute", int64(c.RateLimit.MaxRequestsPerMinute))
	positive("rateLimit.cooldown", int64(c.RateLimit.Cooldown))
	positive("cache.maxEntries", int64(c.Cache.MaxEntries))
	positive("cache.ttl", int64(c.Cache.TTL))
	positive("cache.offlineMaxEntries", int64(c.Cache.OfflineMaxEntries))
	positive("cache.offlineTTL", int64(c.Cache.OfflineTTL))
	positive("jobs.retention", int64(c.Jobs.Retention))
	positive("settings.maxChars", int64(c.Settings.MaxChars))
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("rateLimit.maxRetries must not be negative"))
	}
	if c.Storage.Driver == "leveldb" && c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required for leveldb"))
	}
	switch c.Analysis.Backend {
	case "remote":
		if c.Analysis.Endpoint == "" {
			errs = append(errs, fmt.Errorf("analysis.endpoint is required for the remote backend"))
		}
	case "openai":
		if c.Analysis.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("analysis.openai.apiKey (or OPENAI_API_KEY) is required for the openai backend"))
		}
	}
	if c.Minio.Enabled && c.Minio.Endpoint == "" {
		errs = append(errs, fmt.Errorf("minio.endpoint is required when minio is enabled"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("usage.timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Location is the zone billing periods are computed in.
func (c *Config) Location() (*time.Location, error) {
	if c.Usage.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Usage.Timezone)
}

// HistoryDSN builds the DSN for the SQL history drivers.
func (c *Config) HistoryDSN() string {
	if c.History.DSN != "" {
		return c.History.DSN
	}
	switch c.History.Driver {
	case "mysql":
		return c.MySQLDSN()
	case "postgres":
		return c.PostgresDSN()
	}
	return c.History.Path
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	db := c.History.Database
	port := db.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		db.User, db.Password, db.Host, port, db.Name)
}

func (c *Config) PostgresDSN() string {
	db := c.History.Database
	ssl := db.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	port := db.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, port, db.User, db.Password, db.Name, ssl)
}
