package config

import (
	"fmt"
	"os"
	"time"

	env "github.com/avvvet/idcard-services/configs"
)

type Config struct {
	Port           string
	MongoURI       string
	ConnectRetries int
	ConnectDelay   time.Duration

	JWTSecret     string
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string

	PageSize    int
	MaxPageSize int
	Location    *time.Location

	RateLimit int // requests per minute per IP

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatsCacheTTL time.Duration
}

// Load reads the card service configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:           env.GetEnv("CARD_SERVICE_PORT", "5000"),
		MongoURI:       env.GetEnv("MONGODB_URI", "mongodb://localhost:27017/identitycards"),
		ConnectRetries: env.GetInt("DB_CONNECT_ATTEMPTS", 10),
		ConnectDelay:   env.GetDuration("DB_CONNECT_DELAY", 3*time.Second),

		JWTSecret:     os.Getenv("JWT_SECRET_KEY"),
		TokenTTL:      env.GetDuration("TOKEN_TTL", 24*time.Hour),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		PageSize:    env.GetInt("PAGE_SIZE", 6),
		MaxPageSize: env.GetInt("MAX_PAGE_SIZE", 100),

		RateLimit: env.GetInt("RATE_LIMIT", 100),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       env.GetInt("REDIS_DB", 0),
		StatsCacheTTL: env.GetDuration("STATS_CACHE_TTL", 30*time.Second),
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET_KEY is required")
	}

	loc, err := time.LoadLocation(env.GetEnv("TIMEZONE", "UTC"))
	if err != nil {
		return cfg, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	return cfg, nil
}
