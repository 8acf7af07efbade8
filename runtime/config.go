// Package runtime holds the process-wide startup configuration (Config)
// and the static equipment fixture. It does not hold the collaborators:
// main builds each one from Config and injects it into the Gate, Ticker
// and Worker Pool individually, rather than through package-level
// globals. Configuration is
// environment-variable driven, parsed with `os.Getenv` + `fmt.Sscanf` —
// no flag/config-file library.
package runtime

import (
	"fmt"
	"os"
	"time"
)

// Config is the full set of environment-derived startup parameters for
// one site process.
type Config struct {
	SiteID      int
	SiteName    string
	SiteClass   string // "standard" or "therapy"
	LogicDir    string

	RedisAddr    string
	DatabaseURL  string

	WorkerConcurrency int
	ReserveWait       time.Duration

	HAEnabled  bool
	NodeID     string
	LeaseTTL   time.Duration

	HTTPAddr string
}

// LoadConfig reads Config from the process environment, applying the
// defaults a developer running this locally would expect.
func LoadConfig() (Config, error) {
	cfg := Config{
		SiteName:          getenv("SITE_NAME", "default-site"),
		SiteClass:         getenv("SITE_CLASS", "standard"),
		LogicDir:          getenv("LOGIC_DIR", ""),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL:       getenv("DATABASE_URL", ""),
		WorkerConcurrency: 2,
		ReserveWait:       5 * time.Second,
		HAEnabled:         getenv("HA_ENABLED", "false") == "true",
		NodeID:            getenv("NODE_ID", hostnameOrDefault()),
		LeaseTTL:          10 * time.Second,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
	}

	siteIDStr := getenv("SITE_ID", "1")
	if _, err := fmt.Sscanf(siteIDStr, "%d", &cfg.SiteID); err != nil {
		return Config{}, fmt.Errorf("runtime: parse SITE_ID %q: %w", siteIDStr, err)
	}

	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &cfg.WorkerConcurrency); err != nil {
			return Config{}, fmt.Errorf("runtime: parse WORKER_CONCURRENCY %q: %w", v, err)
		}
	}

	if v := os.Getenv("LEASE_TTL_SECONDS"); v != "" {
		var secs int
		if _, err := fmt.Sscanf(v, "%d", &secs); err != nil {
			return Config{}, fmt.Errorf("runtime: parse LEASE_TTL_SECONDS %q: %w", v, err)
		}
		cfg.LeaseTTL = time.Duration(secs) * time.Second
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "node-unknown"
	}
	return h
}
