package config

import (
	"fmt"
	"os"
	"time"

	env "github.com/avvvet/idcard-services/configs"
)

type Config struct {
	Port           string
	PostgresURL    string
	ConnectRetries int
	ConnectDelay   time.Duration
	JWTSecret      string
	RateLimit      int
}

// Load reads the audit service configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:           env.GetEnv("AUDIT_SERVICE_PORT", "5002"),
		PostgresURL:    os.Getenv("POSTGRES_URL"),
		ConnectRetries: env.GetInt("DB_CONNECT_ATTEMPTS", 10),
		ConnectDelay:   env.GetDuration("DB_CONNECT_DELAY", 3*time.Second),
		JWTSecret:      os.Getenv("JWT_SECRET_KEY"),
		RateLimit:      env.GetInt("RATE_LIMIT", 100),
	}

	if cfg.PostgresURL == "" {
		return cfg, fmt.Errorf("POSTGRES_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET_KEY is required")
	}
	return cfg, nil
}
