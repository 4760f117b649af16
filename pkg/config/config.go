package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading service.
type Config struct {
	Port string

	// Database
	DBPath string

	// Strategy definitions
	StrategiesPath string

	// Paper trading account
	InitialCash float64
	MarketOpen  bool

	// Engine
	MaxConsecutiveFailures int
	AutoStart              bool

	// Risk limits
	MaxDailyLossPct    float64
	MaxPositionSizePct float64
	MaxTradesPerDay    int
	MaxOpenPositions   int
	MinBuyingPowerPct  float64

	// Auth
	JWTSecret        string
	OperatorEmail    string
	OperatorPassword string

	// API rate limiting (requests per second per client)
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/trading.db")
	}

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		DBPath:                 dbPath,
		StrategiesPath:         getEnv("STRATEGIES_PATH", "./strategies.yaml"),
		InitialCash:            getEnvFloat("INITIAL_CASH", 10000.0),
		MarketOpen:             getEnv("MARKET_OPEN", "true") == "true",
		MaxConsecutiveFailures: getEnvInt("MAX_CONSECUTIVE_FAILURES", 3),
		AutoStart:              getEnv("AUTO_START", "true") == "true",
		MaxDailyLossPct:        getEnvFloat("MAX_DAILY_LOSS_PCT", 2.0),
		MaxPositionSizePct:     getEnvFloat("MAX_POSITION_SIZE_PCT", 5.0),
		MaxTradesPerDay:        getEnvInt("MAX_TRADES_PER_DAY", 10),
		MaxOpenPositions:       getEnvInt("MAX_OPEN_POSITIONS", 20),
		MinBuyingPowerPct:      getEnvFloat("MIN_BUYING_POWER_PCT", 10.0),
		JWTSecret:              getEnv("JWT_SECRET", "dev-secret"),
		OperatorEmail:          getEnv("OPERATOR_EMAIL", "operator@local"),
		OperatorPassword:       os.Getenv("OPERATOR_PASSWORD"),
		RateLimitRPS:           getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:         getEnvInt("RATE_LIMIT_BURST", 20),
	}, nil
}

// RiskLimitEnv reports whether any risk limit was set explicitly, so
// startup can tell defaults from operator overrides.
func RiskLimitEnv() bool {
	for _, key := range []string{
		"MAX_DAILY_LOSS_PCT", "MAX_POSITION_SIZE_PCT", "MAX_TRADES_PER_DAY",
		"MAX_OPEN_POSITIONS", "MIN_BUYING_POWER_PCT",
	} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
