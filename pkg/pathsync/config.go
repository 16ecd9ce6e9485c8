package pathsync

import (
	"os"
	"strconv"

	"github.com/solaius/pathkeeper/pkg/pathdb"
)

// EngineConfig controls engine limits.
type EngineConfig struct {
	MaxPathLength    int // Longest full path accepted, in bytes. Default 2000.
	RebuildBatchSize int // Default batch size for bulk rebuilds. Default 100.
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxPathLength:    pathdb.MaxFullPathLength,
		RebuildBatchSize: 100,
	}
}

// EngineConfigFromEnv loads config from environment variables.
// PATHKEEPER_MAX_PATH_LENGTH, PATHKEEPER_REBUILD_BATCH_SIZE
func EngineConfigFromEnv() *EngineConfig {
	cfg := DefaultEngineConfig()

	if v := os.Getenv("PATHKEEPER_MAX_PATH_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= pathdb.MaxFullPathLength {
			cfg.MaxPathLength = n
		}
	}
	if v := os.Getenv("PATHKEEPER_REBUILD_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RebuildBatchSize = n
		}
	}

	return cfg
}
