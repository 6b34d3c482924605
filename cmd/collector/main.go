// Command collector runs the event ingestion service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/hookline-systems/hookline/internal/collector/config"
	"github.com/hookline-systems/hookline/internal/collector/dlq"
	"github.com/hookline-systems/hookline/internal/collector/handlers"
	"github.com/hookline-systems/hookline/internal/collector/ratelimit"
	"github.com/hookline-systems/hookline/internal/collector/repository"
	"github.com/hookline-systems/hookline/internal/collector/server"
	"github.com/hookline-systems/hookline/internal/collector/service"
	"github.com/hookline-systems/hookline/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrationsPath := flag.String("migrations", "migrations", "path to migration files")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("collector"))
	logging.SetDefault(logger)

	slog.Info("Starting collector service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
	)

	connString := cfg.Database.ConnString()

	slog.Info("Running database migrations")
	m, err := migrate.New("file://"+*migrationsPath, connString)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database migrations completed")

	repo, err := repository.NewPostgresRepository(context.Background(), connString)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()

	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rl, err := ratelimit.NewRedisRateLimiter(
			cfg.RateLimit.RedisURL,
			cfg.RateLimit.Requests,
			cfg.RateLimit.Window,
		)
		if err != nil {
			slog.Warn("Rate limiter unavailable, continuing without limiting",
				slog.String("error", err.Error()))
			limiter = &ratelimit.NoOpRateLimiter{}
		} else {
			limiter = rl
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.RateLimit.Requests),
				slog.String("window", cfg.RateLimit.Window.String()),
			)
		}
	} else {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	defer limiter.Close()

	var failedEvents dlq.Writer
	switch cfg.DLQ.Backend {
	case "jetstream":
		js, err := dlq.NewJetStreamQueue(context.Background(), cfg.DLQ.NATSURL)
		if err != nil {
			log.Fatalf("Failed to initialize JetStream DLQ: %v", err)
		}
		defer js.Close()
		failedEvents = js
		slog.Info("Dead letter queue enabled",
			slog.String("backend", "jetstream"),
			slog.String("nats_url", cfg.DLQ.NATSURL),
		)
	case "file":
		fq, err := dlq.NewFileQueue(cfg.DLQ.Path)
		if err != nil {
			log.Fatalf("Failed to initialize file DLQ: %v", err)
		}
		failedEvents = fq
		slog.Info("Dead letter queue enabled",
			slog.String("backend", "file"),
			slog.String("path", cfg.DLQ.Path),
		)
	case "":
		slog.Info("Dead letter queue disabled")
	default:
		log.Fatalf("Unknown DLQ backend: %s (supported: jetstream, file)", cfg.DLQ.Backend)
	}

	svc := service.NewIngestService(repo, failedEvents, logger)
	handler := handlers.NewHandler(svc, limiter, logger)
	router := server.NewRouter(handler, cfg.Auth.Token)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Collector listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slog.Info("Server stopped")
}
