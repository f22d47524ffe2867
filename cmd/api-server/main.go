package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-box-booking/internal/api"
	"github.com/hackgods/clinic-box-booking/internal/booking"
	"github.com/hackgods/clinic-box-booking/internal/config"
	"github.com/hackgods/clinic-box-booking/internal/db"
	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/logger"
	"github.com/hackgods/clinic-box-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-box-booking/internal/redis"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api-server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	log.Info("api-server starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.Duration("lock_ttl", cfg.LockTTL),
		zap.Duration("lock_wait", cfg.LockWait),
		zap.Bool("strict_granularity", cfg.StrictGranularity),
		zap.String("clinic_tz", cfg.Location.String()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	applied, err := db.Migrate(rootCtx, pgPool)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("migrations applied", zap.Int("count", applied))

	rdb, err := redisclient.Connect(rootCtx, cfg)
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	rec := metrics.New()
	scheduleRepo := schedule.NewPgRepository(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	bookingSvc := booking.NewService(booking.NewPgRepository(pgPool), scheduleRepo, locker, cfg, log.Named("booking"), rec)
	scheduleSvc := schedule.NewService(scheduleRepo, log.Named("schedule"))

	handler := api.NewRouter(api.RouterConfig{
		Booking:   bookingSvc,
		Schedules: scheduleSvc,
		Identity:  identity.NewJWTProvider(cfg.JWTSecret, cfg.TokenTTL),
		Postgres:  pgPool.Ping,
		Redis:     redisclient.Ping(rdb),
		Metrics:   rec,
		Logger:    log.Named("http"),
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("api-server stopped")
	return nil
}
