package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/idcard-services/configs"
	"github.com/avvvet/idcard-services/internal/auditsvc/broker"
	auditcfg "github.com/avvvet/idcard-services/internal/auditsvc/config"
	"github.com/avvvet/idcard-services/internal/auditsvc/handlers"
	"github.com/avvvet/idcard-services/internal/auditsvc/store"
	"github.com/avvvet/idcard-services/internal/comm"
	"github.com/avvvet/idcard-services/internal/db"
	natscli "github.com/avvvet/idcard-services/internal/nats"
)

const SERVICE_NAME = "audit"

func init() {
	config.Logging(SERVICE_NAME + "_service")
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	instanceId := config.CreateUniqueInstance(SERVICE_NAME)

	cfg, err := auditcfg.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// pg connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	dbpool, err := db.ConnectPostgres(ctx, cfg.PostgresURL, cfg.ConnectRetries, cfg.ConnectDelay)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dbpool.Close()

	events := store.NewEventStore(dbpool)
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = events.EnsureSchema(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to prepare schema: %v", err)
	}

	// Connect to NATS
	n, err := natscli.Connect(SERVICE_NAME + "-" + instanceId)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	log.Infof("NATS connected at %s", n.Url)

	b := broker.NewBroker(n.Conn, events)
	sub, err := b.Subscribe(comm.SubjectCardEvents)
	if err != nil {
		log.Fatalf("Error: unable to subscribe to %s %v", comm.SubjectCardEvents, err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(config.CORS().Handler)
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	h := handlers.NewHandler(events)
	h.SetRoutes(r, jwtauth.New("HS256", []byte(cfg.JWTSecret), nil))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := sub.Unsubscribe(); err != nil {
		log.Warnf("unsubscribe %s: %v", comm.SubjectCardEvents, err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown failed: %+v", SERVICE_NAME, err)
	}
	n.Drain()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
