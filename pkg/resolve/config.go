package resolve

import (
	"os"
	"strconv"
	"time"

	"github.com/solaius/pathkeeper/pkg/pathdb"
)

// ResolverConfig controls inbound resolution behavior.
type ResolverConfig struct {
	MaxPathLength      int           // Longest accepted request path, in bytes. Default 2000.
	ProbeSlashVariants bool          // Also probe slash-padded legacy variants. Default true.
	CacheEnabled       bool          // Cache redirect/miss outcomes. Default true.
	CacheSize          int           // Max cached outcomes. Default 1024.
	CacheTTL           time.Duration // Outcome TTL. Default 60s.
}

// DefaultResolverConfig returns the default configuration.
func DefaultResolverConfig() *ResolverConfig {
	return &ResolverConfig{
		MaxPathLength:      pathdb.MaxFullPathLength,
		ProbeSlashVariants: true,
		CacheEnabled:       true,
		CacheSize:          1024,
		CacheTTL:           60 * time.Second,
	}
}

// ResolverConfigFromEnv loads config from environment variables.
// PATHKEEPER_RESOLVER_MAX_PATH_LENGTH, PATHKEEPER_RESOLVER_PROBE_VARIANTS,
// PATHKEEPER_RESOLVER_CACHE_ENABLED, PATHKEEPER_RESOLVER_CACHE_SIZE,
// PATHKEEPER_RESOLVER_CACHE_TTL_SECONDS
func ResolverConfigFromEnv() *ResolverConfig {
	cfg := DefaultResolverConfig()

	if v := os.Getenv("PATHKEEPER_RESOLVER_MAX_PATH_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPathLength = n
		}
	}
	if v := os.Getenv("PATHKEEPER_RESOLVER_PROBE_VARIANTS"); v != "" {
		cfg.ProbeSlashVariants, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("PATHKEEPER_RESOLVER_CACHE_ENABLED"); v != "" {
		cfg.CacheEnabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("PATHKEEPER_RESOLVER_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheSize = n
		}
	}
	if v := os.Getenv("PATHKEEPER_RESOLVER_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTL = time.Duration(n) * time.Second
		}
	}

	return cfg
}
