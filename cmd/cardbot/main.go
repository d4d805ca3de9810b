package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/idcard-services/configs"
	"github.com/avvvet/idcard-services/internal/cardbot"
)

const SERVICE_NAME = "cardbot"

func init() {
	config.Logging(SERVICE_NAME)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	cfg := cardbot.Config{
		BaseURL:  config.GetEnv("CARDBOT_TARGET", "http://localhost:"+config.GetEnv("CARD_SERVICE_PORT", "5000")),
		Email:    os.Getenv("ADMIN_EMAIL"),
		Password: os.Getenv("ADMIN_PASSWORD"),
		Interval: config.GetDuration("CARDBOT_INTERVAL", 3*time.Second),
		Count:    config.GetInt("CARDBOT_COUNT", 0),
	}
	if cfg.Email == "" || cfg.Password == "" {
		log.Fatal("ADMIN_EMAIL and ADMIN_PASSWORD are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("card bot registering a card every %s against %s", cfg.Interval, cfg.BaseURL)
	if err := cardbot.New(cfg).Run(ctx); err != nil {
		log.Fatalf("card bot: %v", err)
	}
}
