package rebuild

import (
	"os"
	"strconv"
	"time"
)

// RebuildConfig controls job queue and worker behavior.
type RebuildConfig struct {
	Concurrency   int           // Max concurrent workers. Default 1.
	MaxRetries    int           // Max retry attempts per job. Default 3.
	PollInterval  time.Duration // How often workers poll for new jobs. Default 5s.
	ClaimTimeout  time.Duration // Max time a job may stay "running" before considered stuck. Default 30m.
	RetentionDays int           // How long to keep terminal jobs. Default 7.
	Enabled       bool          // Whether the worker pool is active. Default true.
}

// DefaultRebuildConfig returns the default configuration. Concurrency
// defaults to 1 because two overlapping rebuilds of the same type only
// cost extra conflicts.
func DefaultRebuildConfig() *RebuildConfig {
	return &RebuildConfig{
		Concurrency:   1,
		MaxRetries:    3,
		PollInterval:  5 * time.Second,
		ClaimTimeout:  30 * time.Minute,
		RetentionDays: 7,
		Enabled:       true,
	}
}

// RebuildConfigFromEnv loads config from environment variables.
// PATHKEEPER_REBUILD_CONCURRENCY, PATHKEEPER_REBUILD_MAX_RETRIES,
// PATHKEEPER_REBUILD_POLL_INTERVAL_SECONDS,
// PATHKEEPER_REBUILD_CLAIM_TIMEOUT_MINUTES,
// PATHKEEPER_REBUILD_RETENTION_DAYS, PATHKEEPER_REBUILD_ENABLED
func RebuildConfigFromEnv() *RebuildConfig {
	cfg := DefaultRebuildConfig()

	if v := os.Getenv("PATHKEEPER_REBUILD_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("PATHKEEPER_REBUILD_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("PATHKEEPER_REBUILD_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("PATHKEEPER_REBUILD_CLAIM_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClaimTimeout = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("PATHKEEPER_REBUILD_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetentionDays = n
		}
	}
	if v := os.Getenv("PATHKEEPER_REBUILD_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
