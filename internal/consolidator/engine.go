package consolidator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/capture"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/config"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileStats counts what happened to one partition's records.
type FileStats struct {
	Parsed   int
	Defects  int
	Filtered int
	Repaired int
	DupRun   int // dropped against this run's batch
	DupCache int // dropped by the hot cache
	DupStore int // dropped by the canonical store's unique index
	Inserted int64
}

// RunStats summarizes one consolidation run.
type RunStats struct {
	RunID     string
	Files     int
	Committed int
	Failed    int
	Totals    FileStats
}

func (t *FileStats) add(s FileStats) {
	t.Parsed += s.Parsed
	t.Defects += s.Defects
	t.Filtered += s.Filtered
	t.Repaired += s.Repaired
	t.DupRun += s.DupRun
	t.DupCache += s.DupCache
	t.DupStore += s.DupStore
	t.Inserted += s.Inserted
}

// Engine is the merge/dedup/repair core. The consolidator runs it on a
// timer against claimed partitions; the legacy importer runs the same record
// path against old exports so backfills cannot diverge in semantics.
type Engine struct {
	cfg     *config.Config
	repo    repository.SightingRepository
	claimer *capture.Claimer
	cache   KVStore // optional
	logger  *zap.Logger
}

func NewEngine(cfg *config.Config, repo repository.SightingRepository, claimer *capture.Claimer, cache KVStore, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		repo:    repo,
		claimer: claimer,
		cache:   cache,
		logger:  logger,
	}
}

// Run executes one consolidation pass: claim, then per partition parse,
// repair, dedup, merge in one transaction, archive. A partition that fails
// to commit stays claimed-but-uncommitted and is retried next run; a store
// outage aborts before anything is claimed.
func (e *Engine) Run(ctx context.Context) (*RunStats, error) {
	if err := e.repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store unavailable, skipping run: %w", err)
	}

	stats := &RunStats{RunID: uuid.NewString()}

	files, err := e.claimer.Claim(stats.RunID)
	if err != nil {
		return nil, fmt.Errorf("claim failed: %w", err)
	}
	stats.Files = len(files)
	if len(files) == 0 {
		return stats, nil
	}

	// In-run dedup spans partitions: the same batch replayed into two
	// partitions must still collapse to one row.
	seen := make(map[string]struct{})

	for _, path := range files {
		fs, err := e.consolidateFile(ctx, path, seen)
		stats.Totals.add(fs)
		if err != nil {
			stats.Failed++
			e.logger.Error("Partition failed, keeping for retry",
				zap.String("partition", filepath.Base(path)),
				zap.Error(err))
			continue
		}
		if err := e.claimer.Archive(path); err != nil {
			// Rows are committed; replay of this partition is a no-op.
			stats.Failed++
			e.logger.Error("Archive failed after commit",
				zap.String("partition", filepath.Base(path)),
				zap.Error(err))
			continue
		}
		stats.Committed++
	}

	e.claimer.Release(stats.RunID)

	e.logger.Info("Consolidation run finished",
		zap.String("run_id", stats.RunID),
		zap.Int("partitions", stats.Files),
		zap.Int("committed", stats.Committed),
		zap.Int("failed", stats.Failed),
		zap.Int("parsed", stats.Totals.Parsed),
		zap.Int("defects", stats.Totals.Defects),
		zap.Int("filtered", stats.Totals.Filtered),
		zap.Int("repaired", stats.Totals.Repaired),
		zap.Int("dup_run", stats.Totals.DupRun),
		zap.Int("dup_cache", stats.Totals.DupCache),
		zap.Int("dup_store", stats.Totals.DupStore),
		zap.Int64("inserted", stats.Totals.Inserted))

	return stats, nil
}

func (e *Engine) consolidateFile(ctx context.Context, path string, seen map[string]struct{}) (FileStats, error) {
	res, err := capture.ParseFile(path)
	if err != nil {
		return FileStats{}, err
	}
	return e.ConsolidateRecords(ctx, res, seen)
}

// ConsolidateRecords runs steps 2-5 (normalize, repair, dedup, merge) on an
// already-parsed record set. seen may be nil for a standalone call.
func (e *Engine) ConsolidateRecords(ctx context.Context, res *capture.ParseResult, seen map[string]struct{}) (FileStats, error) {
	if seen == nil {
		seen = make(map[string]struct{})
	}

	stats := FileStats{
		Parsed:  len(res.Records),
		Defects: res.Defects,
	}

	survivors := make([]*domain.Sighting, 0, len(res.Records))
	keys := make([]string, 0, len(res.Records))
	for _, s := range res.Records {
		if p := e.cfg.Consolidator.DevicePrefix; p != "" && !strings.HasPrefix(s.DeviceName, p) {
			stats.Filtered++
			continue
		}

		if repairTimestamp(s, e.cfg.Consolidator.PlausibleFloor, e.cfg.Consolidator.RepairOffset, e.cfg.LegacyAnchor) {
			stats.Repaired++
		}
		s.TruncateObserved(e.cfg.Consolidator.DedupResolution)

		key := s.Key(e.cfg.Consolidator.DedupResolution)
		if _, dup := seen[key]; dup {
			stats.DupRun++
			continue
		}
		seen[key] = struct{}{}

		if e.cache != nil {
			hit, err := e.cache.Exists(ctx, key)
			if err != nil {
				// Cache down is a degradation, not an error: fall
				// through to the store's unique index.
				e.logger.Warn("Dedup cache unavailable", zap.Error(err))
			} else if hit {
				stats.DupCache++
				continue
			}
		}

		survivors = append(survivors, s)
		keys = append(keys, key)
	}

	inserted, err := e.repo.InsertBatch(ctx, survivors)
	if err != nil {
		return stats, fmt.Errorf("merge failed: %w", err)
	}
	stats.Inserted = inserted
	stats.DupStore = len(survivors) - int(inserted)

	// Cache keys only after the commit; a cache write failure just means
	// the unique index does the work next time.
	if e.cache != nil && len(keys) > 0 {
		if err := e.cache.MarkCommitted(ctx, keys, e.cfg.Redis.TTL); err != nil {
			e.logger.Warn("Failed to update dedup cache", zap.Error(err))
		}
	}
	return stats, nil
}
