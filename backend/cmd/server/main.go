package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"fritter/backend/internal/api"
	"fritter/backend/internal/events"
	"fritter/backend/internal/fanout"
	"fritter/backend/pkg/config"
	"fritter/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting fan-out server...", zap.String("storage", cfg.Storage))

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open stores", zap.Error(err))
	}
	defer st.Close()

	if err := seedUsers(ctx, st.users, cfg.SeedUsers); err != nil {
		log.Fatal("Failed to seed users", zap.Error(err))
	}

	// NATS is optional; without it cascade failures only reach the caller
	var nc *nats.Conn
	var publisher fanout.CascadePublisher
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL, nats.Name("fritter-fanout"))
		if err != nil {
			log.Warn("NATS unavailable, cascade retries disabled", zap.String("url", cfg.NatsURL), zap.Error(err))
			nc = nil
		} else {
			publisher = events.NewPublisher(nc)
		}
	}

	registry := fanout.NewRegistry(st.groups, st.feeds, fanout.Options{
		Concurrency: cfg.FanoutConcurrency,
		BatchSize:   cfg.FanoutBatchSize,
	})
	relations := fanout.NewRelationshipGraph(st.edges, st.users)
	coord := fanout.NewCoordinator(registry, relations, st.users, st.feeds, publisher)

	var handler *events.Handler
	if nc != nil {
		handler = events.NewHandler(coord, cfg.CascadeTimeout)
		if _, err := handler.Subscribe(nc); err != nil {
			log.Fatal("Failed to subscribe to events", zap.Error(err))
		}
		log.Info("Subscribed to fan-out events", zap.String("url", cfg.NatsURL))
	}

	router := api.NewRouter(coord, log, cfg.IsProduction())

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if nc != nil {
		// stop taking new events, then let in-flight retries finish
		if err := nc.Drain(); err != nil {
			log.Warn("Failed to drain NATS connection", zap.Error(err))
		}
		handler.Wait()
	}

	log.Info("Server exited")
}
