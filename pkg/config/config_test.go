package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/relightlabs/relight/pkg/config"
)

func setImagingEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RELIGHT_IMAGING_API_KEY", "test-key")
}

func TestLoad_Defaults(t *testing.T) {
	setImagingEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "INFO" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
	if cfg.Database.Enabled() {
		t.Fatal("database should be disabled by default")
	}
	if cfg.Redis.Enabled() {
		t.Fatal("redis should be disabled by default")
	}
	if cfg.ImageStore.Provider != "local" {
		t.Fatalf("imagestore provider = %q", cfg.ImageStore.Provider)
	}
	if cfg.Pipeline.MaxConcurrentJobs != 4 {
		t.Fatalf("max concurrent jobs = %d", cfg.Pipeline.MaxConcurrentJobs)
	}
	if cfg.Pipeline.Retention != 15*time.Minute {
		t.Fatalf("retention = %v", cfg.Pipeline.Retention)
	}
	if cfg.Pipeline.StageTimeout != 2*time.Minute {
		t.Fatalf("stage timeout = %v", cfg.Pipeline.StageTimeout)
	}
	if cfg.RateLimits.Generation.RequestsPerWindow != 10 {
		t.Fatalf("generation requests = %d", cfg.RateLimits.Generation.RequestsPerWindow)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setImagingEnv(t)
	t.Setenv("RELIGHT_LOG_LEVEL", "DEBUG")
	t.Setenv("RELIGHT_MAX_CONCURRENT_JOBS", "8")
	t.Setenv("RELIGHT_JOB_RETENTION", "1h")
	t.Setenv("RELIGHT_STAGE_TIMEOUT", "45s")
	t.Setenv("RELIGHT_REDIS_ADDR", "localhost:6379")
	t.Setenv("RELIGHT_NOTIFY_ENABLED", "true")
	t.Setenv("RELIGHT_NOTIFY_TO", "a@x.dev, b@x.dev")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
	if cfg.Pipeline.MaxConcurrentJobs != 8 {
		t.Fatalf("max concurrent jobs = %d", cfg.Pipeline.MaxConcurrentJobs)
	}
	if cfg.Pipeline.Retention != time.Hour {
		t.Fatalf("retention = %v", cfg.Pipeline.Retention)
	}
	if cfg.Pipeline.StageTimeout != 45*time.Second {
		t.Fatalf("stage timeout = %v", cfg.Pipeline.StageTimeout)
	}
	if !cfg.Redis.Enabled() {
		t.Fatal("redis should be enabled")
	}
	if len(cfg.Notifications.To) != 2 || cfg.Notifications.To[1] != "b@x.dev" {
		t.Fatalf("notify to = %v", cfg.Notifications.To)
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	setImagingEnv(t)
	t.Setenv("RELIGHT_MAX_CONCURRENT_JOBS", "lots")
	t.Setenv("RELIGHT_JOB_RETENTION", "soon")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.MaxConcurrentJobs != 4 {
		t.Fatalf("max concurrent jobs = %d, want default", cfg.Pipeline.MaxConcurrentJobs)
	}
	if cfg.Pipeline.Retention != 15*time.Minute {
		t.Fatalf("retention = %v, want default", cfg.Pipeline.Retention)
	}
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	setImagingEnv(t)
	t.Setenv("RELIGHT_IMAGESTORE_PROVIDER", "s3")

	_, err := config.Load()
	if err == nil || !strings.Contains(err.Error(), "CONFIG_INVALID") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_ImagingRequiresAPIKey(t *testing.T) {
	_, err := config.Load()
	if err == nil || !strings.Contains(err.Error(), "CONFIG_INVALID") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_UnknownImagingProviderRejected(t *testing.T) {
	setImagingEnv(t)
	t.Setenv("RELIGHT_IMAGING_PROVIDER", "dalle-9000")

	_, err := config.Load()
	if err == nil || !strings.Contains(err.Error(), "CONFIG_INVALID") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_NotificationsRequireRecipients(t *testing.T) {
	setImagingEnv(t)
	t.Setenv("RELIGHT_NOTIFY_ENABLED", "true")

	_, err := config.Load()
	if err == nil || !strings.Contains(err.Error(), "CONFIG_INVALID") {
		t.Fatalf("err = %v", err)
	}
}
