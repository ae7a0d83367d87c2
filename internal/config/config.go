// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the Polywatch engine.
type Config struct {
	// Polymarket APIs
	GammaAPIURL     string
	DataAPIURL      string
	PolymarketWSURL string

	// Scan scope
	MarketLimit    int
	TradeLimit     int
	WindowDuration time.Duration

	// Cycle scheduling
	CycleInterval time.Duration

	// Scoring thresholds
	MinBetSizeUSD float64
	NewWalletDays int

	// Alerting
	AlertThreshold    int
	AlertCooldown     time.Duration
	DiscordWebhookURL string
	RedisAddr         string
	RedisAlertChannel string

	// Fetch fan-out
	FetchConcurrency int
	FetchTimeout     time.Duration

	// Live feed
	EnableLiveFeed bool

	// Ops HTTP server
	OpsPort int

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// Polymarket
		GammaAPIURL:     getEnv("GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		DataAPIURL:      getEnv("DATA_API_URL", "https://data-api.polymarket.com"),
		PolymarketWSURL: getEnv("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/"),

		// Scan scope
		MarketLimit:    getEnvInt("MARKET_LIMIT", 50),
		TradeLimit:     getEnvInt("TRADE_LIMIT", 100),
		WindowDuration: time.Duration(getEnvInt("WINDOW_MINUTES", 60)) * time.Minute,

		// Scheduling
		CycleInterval: time.Duration(getEnvInt("CYCLE_INTERVAL_MINUTES", 5)) * time.Minute,

		// Thresholds
		MinBetSizeUSD: getEnvFloat("MIN_BET_SIZE_USD", 5000),
		NewWalletDays: getEnvInt("NEW_WALLET_DAYS", 30),

		// Alerting
		AlertThreshold:    getEnvInt("ALERT_THRESHOLD", 50),
		AlertCooldown:     time.Duration(getEnvInt("ALERT_COOLDOWN_MINUTES", 5)) * time.Minute,
		DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisAlertChannel: getEnv("REDIS_ALERT_CHANNEL", "polywatch:alerts"),

		// Fan-out
		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 5),
		FetchTimeout:     time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 15)) * time.Second,

		// Live feed
		EnableLiveFeed: getEnvBool("ENABLE_LIVE_FEED", false),

		// Ops
		OpsPort: getEnvInt("OPS_PORT", 8590),

		// UI
		EnableTUI:     getEnvBool("ENABLE_TUI", false),
		UIRefreshRate: time.Duration(getEnvInt("UI_REFRESH_MS", 500)) * time.Millisecond,

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.GammaAPIURL == "" {
		return fmt.Errorf("GAMMA_API_URL is required")
	}

	if c.DataAPIURL == "" {
		return fmt.Errorf("DATA_API_URL is required")
	}

	if c.MarketLimit < 1 {
		return fmt.Errorf("MARKET_LIMIT must be at least 1")
	}

	if c.TradeLimit < 1 {
		return fmt.Errorf("TRADE_LIMIT must be at least 1")
	}

	if c.WindowDuration <= 0 {
		return fmt.Errorf("WINDOW_MINUTES must be positive")
	}

	if c.CycleInterval <= 0 {
		return fmt.Errorf("CYCLE_INTERVAL_MINUTES must be positive")
	}

	if c.MinBetSizeUSD <= 0 {
		return fmt.Errorf("MIN_BET_SIZE_USD must be positive")
	}

	if c.NewWalletDays < 1 {
		return fmt.Errorf("NEW_WALLET_DAYS must be at least 1")
	}

	if c.AlertThreshold < 1 || c.AlertThreshold > 100 {
		return fmt.Errorf("ALERT_THRESHOLD must be between 1 and 100")
	}

	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be at least 1")
	}

	if c.OpsPort < 1 || c.OpsPort > 65535 {
		return fmt.Errorf("OPS_PORT must be between 1 and 65535")
	}

	return nil
}

// MaskedDiscordWebhook returns the webhook URL with most characters hidden for logging.
func (c *Config) MaskedDiscordWebhook() string {
	return maskSecret(c.DiscordWebhookURL)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
