// Package config loads the worker configuration from environment
// variables. Every knob has a documented default; the process starts
// with no configuration at all and talks to local backends.
package config

import (
	"fmt"
	"time"
)

// Config is the full worker configuration.
type Config struct {
	Log           Log
	Database      Database
	Redis         Redis
	ImageStore    ImageStore
	Imaging       Imaging
	Pipeline      Pipeline
	RateLimits    RateLimits
	Notifications Notifications
}

// Log configures the structured logger.
type Log struct {
	Level  string // TRACE|DEBUG|INFO|WARN|ERROR|OFF
	Format string // console|json
}

// Database configures the workflow datastore projection. An empty URL
// disables the projection (the no-op store is used).
type Database struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Enabled reports whether the datastore projection is configured.
func (d Database) Enabled() bool { return d.URL != "" }

// Redis configures the job queue backend. An empty Addr selects the
// in-memory queue.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether the Redis queue is configured.
func (r Redis) Enabled() bool { return r.Addr != "" }

// ImageStore selects where generated images are hosted.
type ImageStore struct {
	Provider  string // local|s3
	LocalPath string
	S3Bucket  string
	S3Prefix  string
	S3Region  string
}

// Imaging selects the external image-processing provider.
type Imaging struct {
	Provider string // gemini|openai
	APIKey   string
	Model    string
}

// Pipeline configures the control plane.
type Pipeline struct {
	MaxConcurrentJobs int
	Retention         time.Duration
	StageTimeout      time.Duration
	QCThresholdsPath  string
}

// RateLimit is one API class budget.
type RateLimit struct {
	RequestsPerWindow int
	Window            time.Duration
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	MaxAttempts       int
}

// RateLimits carries the per-class budgets.
type RateLimits struct {
	Generation RateLimit
	LargeFile  RateLimit
}

// Notifications configures terminal-state emails.
type Notifications struct {
	Enabled  bool
	Provider string // console|ses
	From     string
	To       []string
	Region   string
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Log: Log{
			Level:  getEnv("RELIGHT_LOG_LEVEL", "INFO"),
			Format: getEnv("RELIGHT_LOG_FORMAT", "console"),
		},
		Database: Database{
			URL:          getEnv("RELIGHT_DATABASE_URL", ""),
			MaxOpenConns: getEnvInt("RELIGHT_DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvInt("RELIGHT_DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: Redis{
			Addr:     getEnv("RELIGHT_REDIS_ADDR", ""),
			Password: getEnv("RELIGHT_REDIS_PASSWORD", ""),
			DB:       getEnvInt("RELIGHT_REDIS_DB", 0),
		},
		ImageStore: ImageStore{
			Provider:  getEnv("RELIGHT_IMAGESTORE_PROVIDER", "local"),
			LocalPath: getEnv("RELIGHT_IMAGESTORE_LOCAL_PATH", "./data/images"),
			S3Bucket:  getEnv("RELIGHT_IMAGESTORE_S3_BUCKET", ""),
			S3Prefix:  getEnv("RELIGHT_IMAGESTORE_S3_PREFIX", "relight"),
			S3Region:  getEnv("RELIGHT_IMAGESTORE_S3_REGION", ""),
		},
		Imaging: Imaging{
			Provider: getEnv("RELIGHT_IMAGING_PROVIDER", "gemini"),
			APIKey:   getEnv("RELIGHT_IMAGING_API_KEY", ""),
			Model:    getEnv("RELIGHT_IMAGING_MODEL", ""),
		},
		Pipeline: Pipeline{
			MaxConcurrentJobs: getEnvInt("RELIGHT_MAX_CONCURRENT_JOBS", 4),
			Retention:         getEnvDuration("RELIGHT_JOB_RETENTION", 15*time.Minute),
			StageTimeout:      getEnvDuration("RELIGHT_STAGE_TIMEOUT", 2*time.Minute),
			QCThresholdsPath:  getEnv("RELIGHT_QC_THRESHOLDS_PATH", ""),
		},
		RateLimits: RateLimits{
			Generation: RateLimit{
				RequestsPerWindow: getEnvInt("RELIGHT_RATE_GENERATION_REQUESTS", 10),
				Window:            getEnvDuration("RELIGHT_RATE_GENERATION_WINDOW", time.Minute),
				BaseDelay:         getEnvDuration("RELIGHT_RATE_GENERATION_BASE_DELAY", 2*time.Second),
				MaxDelay:          getEnvDuration("RELIGHT_RATE_GENERATION_MAX_DELAY", time.Minute),
				MaxAttempts:       getEnvInt("RELIGHT_RATE_GENERATION_MAX_ATTEMPTS", 3),
			},
			LargeFile: RateLimit{
				RequestsPerWindow: getEnvInt("RELIGHT_RATE_LARGEFILE_REQUESTS", 30),
				Window:            getEnvDuration("RELIGHT_RATE_LARGEFILE_WINDOW", time.Minute),
				BaseDelay:         getEnvDuration("RELIGHT_RATE_LARGEFILE_BASE_DELAY", 0),
				MaxDelay:          getEnvDuration("RELIGHT_RATE_LARGEFILE_MAX_DELAY", 30*time.Second),
				MaxAttempts:       getEnvInt("RELIGHT_RATE_LARGEFILE_MAX_ATTEMPTS", 3),
			},
		},
		Notifications: Notifications{
			Enabled:  getEnvBool("RELIGHT_NOTIFY_ENABLED", false),
			Provider: getEnv("RELIGHT_NOTIFY_PROVIDER", "console"),
			From:     getEnv("RELIGHT_NOTIFY_FROM", "noreply@relight.local"),
			To:       getEnvList("RELIGHT_NOTIFY_TO", nil),
			Region:   getEnv("RELIGHT_NOTIFY_SES_REGION", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ImageStore.Provider {
	case "local":
	case "s3":
		if c.ImageStore.S3Bucket == "" {
			return configErrors.New(ErrInvalid).
				WithDetail("field", "RELIGHT_IMAGESTORE_S3_BUCKET").
				WithDetail("reason", "required when the s3 provider is selected")
		}
	default:
		return configErrors.New(ErrInvalid).
			WithDetail("field", "RELIGHT_IMAGESTORE_PROVIDER").
			WithDetail("value", c.ImageStore.Provider)
	}

	switch c.Imaging.Provider {
	case "gemini", "openai":
		if c.Imaging.APIKey == "" {
			return configErrors.New(ErrInvalid).
				WithDetail("field", "RELIGHT_IMAGING_API_KEY").
				WithDetail("reason", fmt.Sprintf("required for the %s provider", c.Imaging.Provider))
		}
	default:
		return configErrors.New(ErrInvalid).
			WithDetail("field", "RELIGHT_IMAGING_PROVIDER").
			WithDetail("value", c.Imaging.Provider)
	}

	switch c.Notifications.Provider {
	case "console", "ses":
	default:
		return configErrors.New(ErrInvalid).
			WithDetail("field", "RELIGHT_NOTIFY_PROVIDER").
			WithDetail("value", c.Notifications.Provider)
	}
	if c.Notifications.Enabled && len(c.Notifications.To) == 0 {
		return configErrors.New(ErrInvalid).
			WithDetail("field", "RELIGHT_NOTIFY_TO").
			WithDetail("reason", "required when notifications are enabled")
	}

	return nil
}
