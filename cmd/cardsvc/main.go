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

	config "github.com/avvvet/idcard-services/configs"
	"github.com/avvvet/idcard-services/internal/cache"
	"github.com/avvvet/idcard-services/internal/cardsvc/auth"
	"github.com/avvvet/idcard-services/internal/cardsvc/broker"
	cardcfg "github.com/avvvet/idcard-services/internal/cardsvc/config"
	handlers "github.com/avvvet/idcard-services/internal/cardsvc/handlers"
	"github.com/avvvet/idcard-services/internal/cardsvc/service"
	"github.com/avvvet/idcard-services/internal/cardsvc/store"
	"github.com/avvvet/idcard-services/internal/comm"
	"github.com/avvvet/idcard-services/internal/db"
	"github.com/avvvet/idcard-services/internal/metrics"
	nats "github.com/avvvet/idcard-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "card"

func init() {
	config.Logging(SERVICE_NAME + "_service")
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	instanceId := config.CreateUniqueInstance(SERVICE_NAME)

	cfg, err := cardcfg.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// mongo connection, or the in-memory store for local runs
	var (
		cardRepo  service.CardRepository
		statsRepo service.StatsRepository
		mongo     *db.Mongo
	)
	if os.Getenv("CARD_STORE") == "memory" {
		mem := store.NewMemoryStore()
		cardRepo, statsRepo = mem, mem
		log.Warn("using in-memory card store, data is lost on exit")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		mongo, err = db.ConnectWithRetry(ctx, cfg.MongoURI, cfg.ConnectRetries, cfg.ConnectDelay)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}

		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		err = db.EnsureCardIndexes(ctx, mongo.DB, store.CardsCollection)
		cancel()
		if err != nil {
			log.Fatalf("Failed to create indexes: %v", err)
		}

		cardStore := store.NewCardStore(mongo.DB)
		cardRepo, statsRepo = cardStore, cardStore
	}

	opts := service.Options{
		PageSize:    cfg.PageSize,
		MaxPageSize: cfg.MaxPageSize,
		Location:    cfg.Location,
	}

	// stats cache is optional
	var statsCache service.Cache
	redisClient := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient.Ping(ctx)
		cancel()
		statsCache = redisClient
		defer redisClient.Close()
	}
	statsService := service.NewStatsService(statsRepo, statsCache, cfg.StatsCacheTTL, opts)

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME + "-" + instanceId)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	log.Printf("NATS connection established successfully %s", n.Url)

	m := metrics.New()
	b := broker.NewBroker(n.Conn, statsService)
	cardService := service.NewCardService(cardRepo, opts, b, statsService, m)
	b.CardService = cardService

	sub, err := b.SubscribeCardService(comm.SubjectCardService)
	if err != nil {
		log.Fatalf("Error: unable to subscribe to %s %v", comm.SubjectCardService, err)
	}

	authorizer := auth.NewJWTAuthorizer(cfg.JWTSecret, cfg.TokenTTL)
	login := auth.NewAdminLogin(cfg.AdminEmail, cfg.AdminPassword, authorizer)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()
	h := handlers.NewHandler(cardService, statsService, login, authorizer, m)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(m.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.Limit(cfg.RateLimit, 1*time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(h.RateLimited),
	))

	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop
	log.Infof("received %s, shutting down", sig)

	if err := sub.Unsubscribe(); err != nil {
		log.Warnf("unsubscribe %s: %v", comm.SubjectCardService, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// in-flight requests drain here; new connections are refused
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown failed: %+v", SERVICE_NAME, err)
	}

	n.Drain()

	if err := mongo.Close(ctx); err != nil {
		log.Errorf("mongodb disconnect: %v", err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
