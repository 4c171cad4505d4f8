package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/profile"
	"github.com/example/ride-dispatch/internal/registry"
	"github.com/example/ride-dispatch/internal/relay"
	"github.com/example/ride-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		panic(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	if cfg.PGDSN != "" && cfg.RunMigrations {
		runMigrations(cfg.PGDSN, logger)
	}

	pingers := make(map[string]httpapi.Pinger)

	var store storage.OrderStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
		pingers["postgres"] = ps
	} else {
		logger.Warn("PG_DSN not set, orders are in-memory only")
		store = storage.NewMemoryStore()
	}

	var reg registry.Registry
	if cfg.RedisAddr != "" {
		rr := registry.NewRedisRegistry(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		reg = rr
		pingers["redis"] = rr
	} else {
		logger.Warn("REDIS_ADDR not set, driver registry is in-memory only")
		reg = registry.NewMemoryRegistry()
	}

	sessions := relay.NewRouter()
	rel := relay.NewRelay(sessions, logger)

	coord := &dispatch.Coordinator{
		Store:    store,
		Registry: reg,
		Notifier: rel,
		Profiles: profile.NewClient(cfg.UserServiceURL),
		Pricer:   pricing.New(cfg.BaseFare, cfg.PerKmRate),
		Currency: cfg.Currency,
		Log:      logger,
	}

	var heartbeats *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		events := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		defer events.Close()
		coord.Events = events

		heartbeats = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.DriverStatusTopic)
		defer heartbeats.Close()
	}

	if cfg.StripeAPIKey != "" {
		coord.Payments = payments.NewStripeProvider(cfg.StripeAPIKey)
	}

	srv := httpapi.NewServer(coord, reg, sessions, rel, heartbeats, pingers, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_orders.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_orders.sql")
}
