package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trade booking core.
type Config struct {
	Port string

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Localization / logging
	Language string // "en" or "zh"
	LogLevel string

	// Reference data seed (YAML). Empty uses the embedded default seed.
	RefDataPath string

	// Booking rules
	TradeIDBase         int64
	TradeDateMaxAgeDays int

	// Trade-id sequence backend. Empty keeps the sequence in SQLite.
	RedisURL string

	// Lifecycle event forwarding
	KafkaBroker string
	KafkaTopic  string

	// gRPC health endpoint; empty disables it.
	GRPCAddr string

	// Audit trail
	EnableAudit  bool
	AuditFlushMs int

	// HTTP
	RequestTimeoutSec int
	CORSOrigins       []string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/tradebook.db")
	}

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              dbPath,
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		Language:            getEnv("LANGUAGE", "en"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		RefDataPath:         os.Getenv("REFDATA_PATH"),
		TradeIDBase:         int64(getEnvInt("TRADE_ID_BASE", 10000)),
		TradeDateMaxAgeDays: getEnvInt("TRADE_DATE_MAX_AGE_DAYS", 30),
		RedisURL:            os.Getenv("REDIS_URL"),
		KafkaBroker:         os.Getenv("KAFKA_BROKER"),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "trade_lifecycle"),
		GRPCAddr:            getEnv("GRPC_ADDR", ":9090"),
		EnableAudit:         getEnv("ENABLE_AUDIT", "true") == "true",
		AuditFlushMs:        getEnvInt("AUDIT_FLUSH_MS", 500),
		RequestTimeoutSec:   getEnvInt("REQUEST_TIMEOUT_SEC", 30),
		CORSOrigins:         splitAndTrim(getEnv("CORS_ORIGINS", "*")),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
