// Package config provides centralized configuration management.
// Environment variables override defaults; everything else in the
// codebase reads from here.
package config

import (
	"os"
	"strconv"
)

// ServerConfig holds the public HTTP/websocket front end settings.
type ServerConfig struct {
	Port       int
	MaxWSPerIP int // concurrent websocket connections per client IP
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:       8080,
		MaxWSPerIP: 4,
	}
}

// ServerFromEnv returns server configuration with env overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if n := getEnvInt("MAX_WS_PER_IP", 0); n > 0 {
		cfg.MaxWSPerIP = n
	}

	return cfg
}

// RateLimitConfig holds HTTP rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimit returns production-safe rate limits.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// RateLimitFromEnv returns rate limits with env overrides.
func RateLimitFromEnv() RateLimitConfig {
	cfg := DefaultRateLimit()

	if rps := getEnvFloat("RATE_LIMIT_RPS", 0); rps > 0 {
		cfg.RequestsPerSecond = rps
	}
	if b := getEnvInt("RATE_LIMIT_BURST", 0); b > 0 {
		cfg.Burst = b
	}

	return cfg
}

// ObservabilityConfig holds debug server and event log settings.
type ObservabilityConfig struct {
	DebugAddr    string // localhost-only pprof + metrics listener
	EventLogPath string // JSONL match log; empty disables the file sink
}

// DefaultObservability returns the default observability settings.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		DebugAddr:    "127.0.0.1:6060",
		EventLogPath: "match-events.jsonl",
	}
}

// ObservabilityFromEnv returns observability settings with env
// overrides. Set EVENT_LOG_PATH to "off" to disable the file sink.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.DebugAddr = addr
	}
	if path := os.Getenv("EVENT_LOG_PATH"); path != "" {
		if path == "off" {
			cfg.EventLogPath = ""
		} else {
			cfg.EventLogPath = path
		}
	}

	return cfg
}

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server        ServerConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:        ServerFromEnv(),
		RateLimit:     RateLimitFromEnv(),
		Observability: ObservabilityFromEnv(),
	}
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
