package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort string
	AppEnv   string
	LogLevel string

	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	JWTSecret       string
	TokenExpiration time.Duration

	RedisURL           string // Empty disables rate limiting
	RateLimitPerMinute int

	WSPingInterval   time.Duration
	WSWriteTimeout   time.Duration
	WSReadTimeout    time.Duration
	WSMaxMessageSize int64
	WSSendBuffer     int

	CORSAllowedOrigins []string

	SlackBotToken  string
	SlackChannelID string
}

const defaultJWTSecret = "default-super-secret-key"

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
// Malformed numeric values fall back to their defaults with a warning.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded, using environment variables only")
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/buildtrack.db"),
		JWTSecret:          getEnv("JWT_SECRET", defaultJWTSecret), // CHANGE THIS IN PRODUCTION!
		TokenExpiration:    time.Hour * time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24)),
		RedisURL:           getEnv("REDIS_URL", ""),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		WSPingInterval:     getEnvMillis("WS_PING_INTERVAL_MS", 54*time.Second),
		WSWriteTimeout:     getEnvMillis("WS_WRITE_TIMEOUT_MS", 10*time.Second),
		WSReadTimeout:      getEnvMillis("WS_READ_TIMEOUT_MS", 60*time.Second),
		WSMaxMessageSize:   int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 64*1024)),
		WSSendBuffer:       getEnvInt("WS_SEND_BUFFER", 256),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		SlackBotToken:      getEnv("SLACK_BOT_TOKEN", ""),
		SlackChannelID:     getEnv("SLACK_CHANNEL_ID", ""),
	}

	switch cfg.DBDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL environment variable is not set")
		}
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (expected %s or %s)", cfg.DBDriver, DriverPostgres, DriverSQLite)
	}

	if cfg.JWTSecret == defaultJWTSecret && !cfg.IsDevelopment() {
		return nil, errors.New("JWT_SECRET must be set outside development")
	}
	if cfg.WSReadTimeout <= cfg.WSPingInterval {
		log.Warn().
			Dur("read_timeout", cfg.WSReadTimeout).
			Dur("ping_interval", cfg.WSPingInterval).
			Msg("WS_READ_TIMEOUT_MS must exceed WS_PING_INTERVAL_MS, using defaults")
		cfg.WSPingInterval, cfg.WSReadTimeout = 54*time.Second, 60*time.Second
	}

	log.Info().
		Str("port", cfg.HTTPPort).
		Str("env", cfg.AppEnv).
		Str("db_driver", cfg.DBDriver).
		Dur("token_expiration", cfg.TokenExpiration).
		Bool("rate_limit", cfg.RedisURL != "").
		Bool("slack_notifier", cfg.SlackEnabled()).
		Msg("configuration loaded")

	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev" || c.AppEnv == "test"
}

// SlackEnabled reports whether completion notifications should be sent.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Int("default", fallback).Msg("invalid integer, using default")
		return fallback
	}
	return v
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	ms := getEnvInt(key, int(fallback/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
