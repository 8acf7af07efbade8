package runtime

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t, "SITE_ID", "SITE_NAME", "WORKER_CONCURRENCY", "HA_ENABLED")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SiteID != 1 {
		t.Fatalf("expected default SiteID 1, got %d", cfg.SiteID)
	}
	if cfg.WorkerConcurrency != 2 {
		t.Fatalf("expected default concurrency 2, got %d", cfg.WorkerConcurrency)
	}
	if cfg.HAEnabled {
		t.Fatalf("expected HA disabled by default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t, "SITE_ID", "WORKER_CONCURRENCY", "HA_ENABLED")
	os.Setenv("SITE_ID", "7")
	os.Setenv("WORKER_CONCURRENCY", "4")
	os.Setenv("HA_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SiteID != 7 {
		t.Fatalf("expected SiteID 7, got %d", cfg.SiteID)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.WorkerConcurrency)
	}
	if !cfg.HAEnabled {
		t.Fatalf("expected HA enabled")
	}
}

func TestLoadConfigRejectsInvalidSiteID(t *testing.T) {
	clearEnv(t, "SITE_ID")
	os.Setenv("SITE_ID", "not-a-number")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for invalid SITE_ID")
	}
}
