package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-box-booking/internal/booking"
	"github.com/hackgods/clinic-box-booking/internal/config"
	"github.com/hackgods/clinic-box-booking/internal/db"
	"github.com/hackgods/clinic-box-booking/internal/logger"
	"github.com/hackgods/clinic-box-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-box-booking/internal/redis"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

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

	log.Info("noshow-worker starting up",
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("grace", cfg.NoShowGrace),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.Connect(rootCtx, cfg)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	svc := booking.NewService(
		booking.NewPgRepository(pgPool),
		schedule.NewPgRepository(pgPool),
		locker,
		cfg,
		log.Named("booking"),
		metrics.New(),
	)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.NoShowGrace, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping noshow worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.NoShowGrace, log)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, grace time.Duration, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := svc.SweepNoShows(runCtx, grace)
	if err != nil {
		log.Error("no-show sweep failed", zap.Error(err))
		return
	}
	log.Info("no-show sweep complete",
		zap.Int("marked", marked),
		zap.Duration("took", time.Since(start)),
	)
}
