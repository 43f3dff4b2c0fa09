// Package config loads engine configuration from environment variables,
// with optional .env file support for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all engine configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	PriceFeed PriceFeedConfig
	Engine    EngineConfig
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds the persistence configuration. Empty DatabaseURL
// selects the in-memory store; empty RedisURL disables the cache.
type DatabaseConfig struct {
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration
}

// PriceFeedConfig holds the quote source configuration. Empty URL selects
// the static development feed.
type PriceFeedConfig struct {
	URL            string
	Timeout        time.Duration
	RequestsPerSec float64
}

// EngineConfig holds trading and scheduling parameters.
type EngineConfig struct {
	FeeRate             decimal.Decimal // proportional trade fee, e.g. 0.002
	FeeMinimum          decimal.Decimal
	RevaluationInterval time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in when present.
func Load() (*Config, error) {
	// Missing .env is fine; explicit env vars win.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: envOr("PORT", "8080"),
		},
		Database: DatabaseConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			RedisURL:    os.Getenv("REDIS_URL"),
			CacheTTL:    envDuration("CACHE_TTL", 30*time.Second),
		},
		PriceFeed: PriceFeedConfig{
			URL:            os.Getenv("PRICE_FEED_URL"),
			Timeout:        envDuration("PRICE_FEED_TIMEOUT", 3*time.Second),
			RequestsPerSec: envFloat("PRICE_FEED_RPS", 50),
		},
		Engine: EngineConfig{
			RevaluationInterval: envDuration("REVALUATION_INTERVAL", time.Minute),
		},
	}

	feeRate, err := envDecimal("TRADE_FEE_RATE", "0.002")
	if err != nil {
		return nil, err
	}
	cfg.Engine.FeeRate = feeRate

	feeMin, err := envDecimal("TRADE_FEE_MINIMUM", "0")
	if err != nil {
		return nil, err
	}
	cfg.Engine.FeeMinimum = feeMin

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDecimal(key, def string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
