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
	"github.com/avvvet/idcard-services/internal/comm"
	"github.com/avvvet/idcard-services/internal/nats"
	"github.com/avvvet/idcard-services/internal/socketsvc/broker"
	"github.com/avvvet/idcard-services/internal/socketsvc/handlers"
	"github.com/avvvet/idcard-services/internal/socketsvc/routes"
	"github.com/avvvet/idcard-services/internal/socketsvc/ws"
)

const SERVICE_NAME = "socket"

func init() {
	config.Logging(SERVICE_NAME + "_service")
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	instanceId := config.CreateUniqueInstance(SERVICE_NAME)

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		log.Fatal("JWT_SECRET_KEY is required")
	}

	rateLimit := config.GetInt("RATE_LIMIT", 100)
	port := config.GetEnv("SOCKET_SERVICE_PORT", "5001")

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME + "-" + instanceId)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	log.Printf("NATS connection established successfully %s", n.Url)

	r := chi.NewRouter()
	c := config.CORS()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	s := ws.NewWs()
	b := broker.NewBroker(n.Conn, s.Broadcast) // s.Broadcast dependency injection to broker
	s.Broker = b                               // websocket requests go to the card service through the broker

	tokenAuth := jwtauth.New("HS256", []byte(jwtKey), nil)
	routes.SetRoutes(r, handlers.NewHandler(s, config.OriginAllowed), tokenAuth)

	// every card mutation is pushed to connected dashboards
	sub, err := b.Subscribe(comm.SubjectCardEvents)
	if err != nil {
		log.Fatalf("Error: unable to subscribe to %s %v", comm.SubjectCardEvents, err)
	}

	// no write timeout, websocket connections are long lived
	server := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
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

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown failed: %+v", SERVICE_NAME, err)
	}
	n.Drain()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
