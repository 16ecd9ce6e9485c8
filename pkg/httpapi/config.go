// Package httpapi assembles the HTTP surface: the public resolver endpoint
// that serves every inbound content URL, and the administrative path API.
package httpapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	ListenAddr      string        // Address to listen on. Default ":8080".
	CORSEnabled     bool          // Enable CORS middleware. Default true.
	AllowedOrigins  []string      // CORS allowed origins.
	RequestLogging  bool          // Log each request with status and duration. Default true.
	ShutdownTimeout time.Duration // Graceful shutdown deadline. Default 30s.
}

// DefaultServerConfig returns the default configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:      ":8080",
		CORSEnabled:     true,
		AllowedOrigins:  []string{"https://*", "http://*"},
		RequestLogging:  true,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ServerConfigFromEnv loads config from environment variables.
// PATHKEEPER_LISTEN_ADDR, PATHKEEPER_CORS_ENABLED,
// PATHKEEPER_CORS_ALLOWED_ORIGINS (comma-separated),
// PATHKEEPER_REQUEST_LOGGING, PATHKEEPER_SHUTDOWN_TIMEOUT_SECONDS
func ServerConfigFromEnv() *ServerConfig {
	cfg := DefaultServerConfig()

	if v := os.Getenv("PATHKEEPER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PATHKEEPER_CORS_ENABLED"); v != "" {
		cfg.CORSEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PATHKEEPER_CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.AllowedOrigins = origins
	}
	if v := os.Getenv("PATHKEEPER_REQUEST_LOGGING"); v != "" {
		cfg.RequestLogging = v == "true" || v == "1"
	}
	if v := os.Getenv("PATHKEEPER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.ShutdownTimeout = time.Duration(secs) * time.Second
		}
	}

	return cfg
}
