package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/common/database"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/common/logger"
	commonredis "github.com/TechnoShed-dev/technoshed-ble-scanner/common/redis"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/capture"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/config"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/consolidator"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/repository"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "ziggy-consolidator")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		zlog.Fatal("Failed to connect to canonical store", zap.Error(err))
	}
	defer db.Close()

	repo := repository.NewPostgresSightingRepository(db, cfg.Consolidator.InsertChunk, zlog)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		zlog.Fatal("Failed to ensure schema", zap.Error(err))
	}

	// A work dir two intervals old cannot belong to a live run.
	claimer, err := capture.NewClaimer(
		cfg.Capture.IncomingDir,
		cfg.Capture.WorkDir,
		cfg.Capture.ArchiveDir,
		2*cfg.Consolidator.Interval,
		zlog,
	)
	if err != nil {
		zlog.Fatal("Failed to open raw capture store", zap.Error(err))
	}

	var cache consolidator.KVStore
	if cfg.Redis.Enabled {
		redisClient := commonredis.NewRedisClient(&cfg.Redis.Settings)
		defer redisClient.Close()
		if err := commonredis.Ping(context.Background(), redisClient); err != nil {
			// The cache is an optimization; run without it.
			zlog.Warn("Redis unavailable, running without dedup cache", zap.Error(err))
		} else {
			cache = consolidator.NewRedisKVStore(redisClient)
		}
	}

	engine := consolidator.NewEngine(cfg, repo, claimer, cache, zlog)
	svc := service.NewConsolidatorService(engine, cfg.Consolidator.Interval, zlog)

	zlog.Info("Starting ziggy-consolidator",
		zap.Duration("interval", cfg.Consolidator.Interval),
		zap.String("incoming", cfg.Capture.IncomingDir),
		zap.Time("plausible_floor", cfg.Consolidator.PlausibleFloor))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		zlog.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	svc.Run(ctx)
}
