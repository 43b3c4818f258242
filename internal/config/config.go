package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is loaded once at startup
// and treated as immutable for the lifetime of the run.
type Config struct {
	// Binance API
	BinanceAPIKey    string
	BinanceSecretKey string

	// Screening
	QuoteCurrency string
	Resolution    string
	Window        int
	MaxHalfLife   float64

	// Trading thresholds
	ZScoreThreshold    float64
	USDPerTrade        float64
	USDMinCollateral   float64
	CloseAtZScoreCross bool

	// Phases
	AbortAllPositions bool
	FindCointegrated  bool
	ManageExits       bool
	PlaceTrades       bool

	// Candidate pairs older than this are ignored by entry placement.
	PairMaxAge time.Duration

	// Loop / transport
	LoopDelay            time.Duration
	HTTPTimeout          time.Duration
	StreamReconnectDelay time.Duration
	LivePriceTTL         time.Duration

	// Persistence
	DatabasePath string

	// Notifications
	TelegramBotToken string
	TelegramChatID   string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceSecretKey: getEnv("BINANCE_API_SECRET", ""),

		QuoteCurrency: getEnv("QUOTE_CURRENCY", "BTC"),
		Resolution:    getEnv("RESOLUTION", "1h"),
		Window:        getEnvInt("WINDOW", 21),
		MaxHalfLife:   getEnvFloat("MAX_HALF_LIFE", 24),

		ZScoreThreshold:    getEnvFloat("ZSCORE_THRESH", 1.5),
		USDPerTrade:        getEnvFloat("USD_PER_TRADE", 10),
		USDMinCollateral:   getEnvFloat("USD_MIN_COLLATERAL", 100),
		CloseAtZScoreCross: getEnvBool("CLOSE_AT_ZSCORE_CROSS", true),

		AbortAllPositions: getEnvBool("ABORT_ALL_POSITIONS", false),
		FindCointegrated:  getEnvBool("FIND_COINTEGRATED", false),
		ManageExits:       getEnvBool("MANAGE_EXITS", false),
		PlaceTrades:       getEnvBool("PLACE_TRADES", false),

		PairMaxAge: getEnvDuration("PAIR_MAX_AGE_MS", 24*60*60*1000) * time.Millisecond,

		LoopDelay:            getEnvDuration("LOOP_DELAY_MS", 1000) * time.Millisecond,
		HTTPTimeout:          getEnvDuration("HTTP_TIMEOUT_MS", 5000) * time.Millisecond,
		StreamReconnectDelay: getEnvDuration("STREAM_RECONNECT_DELAY_MS", 1000) * time.Millisecond,
		LivePriceTTL:         getEnvDuration("LIVE_PRICE_TTL_MS", 5000) * time.Millisecond,

		DatabasePath: getEnv("DATABASE_PATH", "pairtrader.db"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	if cfg.Window < 2 {
		return nil, fmt.Errorf("WINDOW must be at least 2, got %d", cfg.Window)
	}
	if _, err := cfg.ResolutionDuration(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ResolutionDuration converts the candle resolution string (e.g. "1h")
// into a duration. Months and years are approximated as 30 and 365 days.
func (c *Config) ResolutionDuration() (time.Duration, error) {
	return ParseResolution(c.Resolution)
}

// ParseResolution parses a "<value><unit>" timeframe where unit is one of
// m, h, d, M, y.
func ParseResolution(resolution string) (time.Duration, error) {
	if len(resolution) < 2 {
		return 0, fmt.Errorf("invalid resolution %q", resolution)
	}
	value, err := strconv.Atoi(resolution[:len(resolution)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid resolution %q", resolution)
	}
	unit := resolution[len(resolution)-1]
	switch unit {
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'M':
		return time.Duration(value) * 30 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid resolution unit %q", string(unit))
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue int64) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(parsed)
		}
	}
	return time.Duration(defaultValue)
}
