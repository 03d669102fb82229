// Package config loads collabedit's runtime configuration: environment
// variables (optionally from a .env file via godotenv), with flag
// overrides applied by cmd/editor-service.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the editor service needs to start.
type Config struct {
	Port string
	Env  string

	// DatabaseURL, when non-empty, selects PostgresStore; empty selects
	// MemoryStore (the base's original no-database dev mode).
	DatabaseURL string

	// OfflineStoreDir is where the server's own FileStore instances (used
	// for any server-held queues, e.g. a headless sync driver) persist.
	OfflineStoreDir string

	// MaxRetries is read from MAX_RETRIES. It is not passed to
	// offline.New: every offline.Manager uses offline.DefaultMaxRetries.
	MaxRetries int

	// AutoSaveInterval is how often editor.Service flushes in-memory
	// document content to the store.
	AutoSaveInterval time.Duration

	// ReachabilityPollInterval is read from REACHABILITY_POLL_INTERVAL as
	// a probe interval for offline.HTTPPoller; cmd/editor-service does not
	// start a poller, so nothing reads it there.
	ReachabilityPollInterval time.Duration
}

// Load reads configuration from the environment, loading envFile first if
// it exists (a missing .env file is not an error — the base's deployment
// model relies on real environment variables in production). An empty
// envFile loads ".env" from the working directory. A non-empty env
// overrides ENVIRONMENT.
func Load(envFile string, env string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Port:                     getEnv("PORT", "8080"),
		Env:                      firstNonEmpty(env, getEnv("ENVIRONMENT", "development")),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		OfflineStoreDir:          getEnv("OFFLINE_STORE_DIR", "./data/offline"),
		MaxRetries:               getEnvInt("MAX_RETRIES", 3),
		AutoSaveInterval:         getEnvDuration("AUTOSAVE_INTERVAL", 30*time.Second),
		ReachabilityPollInterval: getEnvDuration("REACHABILITY_POLL_INTERVAL", 10*time.Second),
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
