// Package config loads process configuration from the environment, with a
// .env file honored in development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Addr is the listen address, e.g. ":8081".
	Addr string
	// DatabaseURL selects the postgres backend when set. When empty the
	// server runs on the embedded SQLite file at SQLitePath.
	DatabaseURL string
	SQLitePath  string
	// AdminPassword seeds the first administrator on a fresh install.
	AdminPassword string
	SessionTTL    time.Duration
	// ForceSecureCookies marks session cookies Secure even when the
	// request itself did not arrive over TLS, for deployments behind a
	// terminating proxy that doesn't set X-Forwarded-Proto.
	ForceSecureCookies bool
	// Credential endpoints are throttled per client IP.
	LoginRatePerMinute int
	LoginRateBurst     int
	LogLevel           string
	Environment        string
	OTLPEndpoint       string
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Addr:               ":" + readString("PORT", "8081"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         readString("BANDTRACK_DB", "bandtrack.db"),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		SessionTTL:         time.Duration(readInt("SESSION_TTL_HOURS", 7*24)) * time.Hour,
		ForceSecureCookies: readBool("FORCE_SECURE_COOKIES", false),
		LoginRatePerMinute: readInt("LOGIN_RATE_PER_MINUTE", 10),
		LoginRateBurst:     readInt("LOGIN_RATE_BURST", 5),
		LogLevel:           readString("LOG_LEVEL", "info"),
		Environment:        readString("ENVIRONMENT", "development"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func readString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readInt(key string, fallback int) int {
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

func readBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
