/*
main.go - Application entry point

PURPOSE:
  Starts the recurring accounts service: HTTP API, projection scheduler,
  and optional Kafka publisher and Redis run lock.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build logger
  3. Open store (SQLite or PostgreSQL from DATABASE_URL)
  4. Wire publisher and run lock when configured
  5. Start scheduler and HTTP server
  6. Graceful shutdown on SIGINT/SIGTERM

COMMAND-LINE FLAGS (override environment):
  -port    HTTP server port
  -db      Database URL or SQLite path

EXAMPLES:
  ./server -db=":memory:"
  DATABASE_URL=postgres://erp@localhost/erp?sslmode=disable ./server
  KAFKA_BROKERS=localhost:9092 REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/recurring-engine/api"
	"github.com/warp/recurring-engine/config"
	"github.com/warp/recurring-engine/events/kafka"
	"github.com/warp/recurring-engine/lock"
	"github.com/warp/recurring-engine/logging"
	"github.com/warp/recurring-engine/recurring"
	"github.com/warp/recurring-engine/store/postgres"
	"github.com/warp/recurring-engine/store/sqlite"
)

// closableStore is what both SQL backends provide.
type closableStore interface {
	recurring.AccountStore
	recurring.RunRecorder
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbURL := flag.String("db", cfg.DatabaseURL, "Database URL (postgres://...) or SQLite path")
	flag.Parse()
	cfg.Port = *port
	cfg.DatabaseURL = *dbURL

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	// Initialize store
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	projector := recurring.NewProjector(store, log.With().Str("component", "projector").Logger())
	projector.Lookahead = cfg.LookaheadDays

	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		projector.Publisher = publisher
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing instance events to kafka")
	}

	if cfg.RedisAddr != "" {
		client, err := lock.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		projector.Locker = lock.NewRedisLocker(client, lock.DefaultKey, cfg.RunLockTTL, log)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis run lock")
	}

	handler := api.NewHandler(store, projector, log)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.CORSOrigins})

	scheduler := api.NewProjectionScheduler(projector, log)
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.CheckInterval = cfg.ProjectionInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // a run over a large tenant set can take a while
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (closableStore, error) {
	driver, dsn, err := cfg.Database()
	if err != nil {
		return nil, err
	}
	switch driver {
	case "postgres":
		return postgres.New(ctx, dsn)
	default:
		return sqlite.New(dsn)
	}
}
