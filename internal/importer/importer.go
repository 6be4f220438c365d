package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/capture"
	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/consolidator"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Importer backfills historical exports (daily CSV logs, master files,
// spreadsheet exports) through the consolidator's record path. Source files
// are never touched, so a backfill can be re-run any number of times; the
// dedup key collapses repeats.
type Importer struct {
	engine *consolidator.Engine
	logger *zap.Logger
}

func New(engine *consolidator.Engine, logger *zap.Logger) *Importer {
	return &Importer{engine: engine, logger: logger}
}

// ImportGlobs imports every file matching the given patterns, oldest first.
// One bad file does not stop the rest.
func (i *Importer) ImportGlobs(ctx context.Context, patterns []string) (consolidator.FileStats, error) {
	var files []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return consolidator.FileStats{}, fmt.Errorf("bad glob %q: %w", p, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return consolidator.FileStats{}, fmt.Errorf("no files matched %v", patterns)
	}
	sort.Strings(files)

	// Shared across the whole import so duplicates between daily and
	// master files collapse too.
	seen := make(map[string]struct{})

	var totals consolidator.FileStats
	var failed int
	for _, path := range files {
		stats, err := i.importFile(ctx, path, seen)
		if err != nil {
			failed++
			i.logger.Error("Import failed for file",
				zap.String("file", filepath.Base(path)),
				zap.Error(err))
			continue
		}
		i.logger.Info("Imported file",
			zap.String("file", filepath.Base(path)),
			zap.Int("parsed", stats.Parsed),
			zap.Int("defects", stats.Defects),
			zap.Int("repaired", stats.Repaired),
			zap.Int64("inserted", stats.Inserted))

		totals.Parsed += stats.Parsed
		totals.Defects += stats.Defects
		totals.Filtered += stats.Filtered
		totals.Repaired += stats.Repaired
		totals.DupRun += stats.DupRun
		totals.DupCache += stats.DupCache
		totals.DupStore += stats.DupStore
		totals.Inserted += stats.Inserted
	}

	if failed > 0 {
		return totals, fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return totals, nil
}

func (i *Importer) importFile(ctx context.Context, path string, seen map[string]struct{}) (consolidator.FileStats, error) {
	var (
		res *capture.ParseResult
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		res, err = parseXLSX(path)
	} else {
		res, err = capture.ParseFile(path)
	}
	if err != nil {
		return consolidator.FileStats{}, err
	}
	return i.engine.ConsolidateRecords(ctx, res, seen)
}

// parseXLSX flattens spreadsheet rows back into the flat-record layout and
// reuses the tolerant CSV parser, so spreadsheet exports get exactly the
// same defect handling as raw logs.
func parseXLSX(path string) (*capture.ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read xlsx rows: %w", err)
	}

	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(strings.Join(row, ","))
		sb.WriteString("\n")
	}
	return capture.Parse(strings.NewReader(sb.String()))
}
