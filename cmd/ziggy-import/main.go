package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/common/database"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/common/logger"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/config"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/consolidator"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/importer"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/repository"

	"go.uber.org/zap"
)

// ziggy-import backfills historical exports (daily logs, master CSVs, xlsx
// exports) through the same repair/dedup engine as the steady-state
// pipeline. Safe to re-run on the same input.
func main() {
	flag.Usage = func() {
		log.Printf("usage: ziggy-import <glob> [glob...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	patterns := flag.Args()
	if len(patterns) == 0 {
		patterns = []string{
			"/app/ziggy_logs/ziggy_daily_log_*.csv",
			"/app/ziggy_logs/master*.csv",
		}
	}

	cfg := config.Load()

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "ziggy-import")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		zlog.Fatal("Failed to connect to canonical store", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()

	repo := repository.NewPostgresSightingRepository(db, cfg.Consolidator.InsertChunk, zlog)
	if err := repo.EnsureSchema(ctx); err != nil {
		zlog.Fatal("Failed to ensure schema", zap.Error(err))
	}

	// No claimer, no cache: imports read sources in place and lean on the
	// unique index alone.
	engine := consolidator.NewEngine(cfg, repo, nil, nil, zlog)
	imp := importer.New(engine, zlog)

	zlog.Info("Starting legacy import",
		zap.Strings("patterns", patterns),
		zap.Time("legacy_anchor", cfg.LegacyAnchor))

	totals, err := imp.ImportGlobs(ctx, patterns)
	zlog.Info("Legacy import finished",
		zap.Int("parsed", totals.Parsed),
		zap.Int("defects", totals.Defects),
		zap.Int("repaired", totals.Repaired),
		zap.Int("dup_run", totals.DupRun),
		zap.Int("dup_store", totals.DupStore),
		zap.Int64("inserted", totals.Inserted))
	if err != nil {
		zlog.Error("Import completed with errors", zap.Error(err))
		os.Exit(1)
	}
}
