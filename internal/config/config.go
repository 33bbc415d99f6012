// Package config loads all runtime settings from environment variables.
// Use a .env file for local development: cp .env.example .env && edit .env
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Scanner
	StartBlock       int64
	RetryBlockDelay  int64
	ProcessTimeout   time.Duration

	// Upstream endpoints
	UseLocalAPIsOnly         bool
	OrdinalsLocalCandidates  []string
	TxLocalCandidates        []string
	OrdinalsExternalFallback string
	TxExternalFallback       string

	// Storage
	DBPath string

	// Cache eviction tuning
	CacheTTL               time.Duration
	CachePressureThreshold float64
	CacheEmergencyMB       int

	// Adaptive controllers
	ConcurrencyMin     int
	ConcurrencyMax     int
	ConcurrencyInitial int
	BatchMin           int
	BatchMax           int
	BatchInitial       int

	// HTTP
	Port string
}

// Load reads the full configuration, exiting on missing required values.
func Load() Config {
	return Config{
		StartBlock:      requireInt64("START_BLOCK"),
		RetryBlockDelay: getInt64OrDefault("RETRY_BLOCK_DELAY", 10),
		ProcessTimeout:  time.Duration(getIntOrDefault("PROCESS_TIMEOUT_SECONDS", 600)) * time.Second,

		UseLocalAPIsOnly:         getBoolOrDefault("USE_LOCAL_APIS_ONLY", false),
		OrdinalsLocalCandidates:  splitList(os.Getenv("ORDINALS_LOCAL_CANDIDATES")),
		TxLocalCandidates:        splitList(os.Getenv("TX_LOCAL_CANDIDATES")),
		OrdinalsExternalFallback: getEnvOrDefault("ORDINALS_EXTERNAL_FALLBACK", "https://ordinals.com"),
		TxExternalFallback:       getEnvOrDefault("TX_EXTERNAL_FALLBACK", "https://mempool.space/api"),

		DBPath: getEnvOrDefault("DB_PATH", "./indexer.db"),

		CacheTTL:               time.Duration(getIntOrDefault("CACHE_TTL_MS", 300000)) * time.Millisecond,
		CachePressureThreshold: getFloatOrDefault("CACHE_PRESSURE_THRESHOLD", 0.85),
		CacheEmergencyMB:       getIntOrDefault("CACHE_EMERGENCY_MB", 3072),

		ConcurrencyMin:     getIntOrDefault("CONCURRENCY_MIN", 1),
		ConcurrencyMax:     getIntOrDefault("CONCURRENCY_MAX", 50),
		ConcurrencyInitial: getIntOrDefault("CONCURRENCY_INITIAL", 10),
		BatchMin:           getIntOrDefault("BATCH_MIN", 10),
		BatchMax:           getIntOrDefault("BATCH_MAX", 200),
		BatchInitial:       getIntOrDefault("BATCH_INITIAL", 50),

		Port: getEnvOrDefault("PORT", "5340"),
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func requireInt64(key string) int64 {
	val := requireEnv(key)
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		log.Fatalf("FATAL: %s must be an integer, got %q", key, val)
	}
	return n
}

func getInt64OrDefault(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		log.Fatalf("FATAL: %s must be an integer, got %q", key, val)
	}
	return n
}

func getIntOrDefault(key string, fallback int) int {
	return int(getInt64OrDefault(key, int64(fallback)))
}

func getFloatOrDefault(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		log.Fatalf("FATAL: %s must be a number, got %q", key, val)
	}
	return f
}

func getBoolOrDefault(key string, fallback bool) bool {
	val := strings.ToLower(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val == "true" || val == "1" || val == "yes"
}

// splitList parses a comma-separated list of base URLs.
func splitList(val string) []string {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.TrimRight(p, "/"))
		}
	}
	return out
}
