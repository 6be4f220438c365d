package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Claimer moves closed raw partitions from the incoming directory into a
// per-run work directory, and archives them after a confirmed commit. A
// rename is atomic on one filesystem, so a partition is claimed by exactly
// one concurrent run: whoever loses the rename race skips the file.
//
// Crash recovery: files left in a dead run's work directory (crash before
// commit, or between commit and archive) are adopted by a later run and
// reprocessed; the dedup key makes a replay a no-op. A work dir younger than
// staleAfter may belong to a live concurrent run (deploy overlap, slow run)
// and is left alone, so a live run's claim is never stolen mid-flight.
type Claimer struct {
	incomingDir string
	workDir     string
	archiveDir  string
	staleAfter  time.Duration
	logger      *zap.Logger
}

// NewClaimer creates the claimer and its directories. staleAfter is the age a
// foreign work dir must reach before its files are adopted; zero disables the
// grace window (single-instance deployments, tests).
func NewClaimer(incomingDir, workDir, archiveDir string, staleAfter time.Duration, logger *zap.Logger) (*Claimer, error) {
	for _, dir := range []string{incomingDir, workDir, archiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
	}
	return &Claimer{
		incomingDir: incomingDir,
		workDir:     workDir,
		archiveDir:  archiveDir,
		staleAfter:  staleAfter,
		logger:      logger,
	}, nil
}

// Claim returns the partitions this run owns: stale leftovers adopted from
// dead runs plus newly claimed closed partitions from incoming.
func (c *Claimer) Claim(runID string) ([]string, error) {
	runDir := filepath.Join(c.workDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run dir: %w", err)
	}

	if err := c.adoptStale(runID, runDir); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(c.incomingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue // skip .open partitions and strays
		}
		src := filepath.Join(c.incomingDir, e.Name())
		dst := filepath.Join(runDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // another run claimed it first
			}
			return nil, fmt.Errorf("failed to claim %s: %w", e.Name(), err)
		}
	}

	claimed, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list run dir: %w", err)
	}
	var files []string
	for _, e := range claimed {
		if !e.IsDir() {
			files = append(files, filepath.Join(runDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// adoptStale moves files from dead runs' work dirs into this run's dir.
func (c *Claimer) adoptStale(runID, runDir string) error {
	dirs, err := os.ReadDir(c.workDir)
	if err != nil {
		return fmt.Errorf("failed to list work dir: %w", err)
	}
	for _, d := range dirs {
		if !d.IsDir() || d.Name() == runID {
			continue
		}
		staleDir := filepath.Join(c.workDir, d.Name())
		if c.staleAfter > 0 {
			info, err := os.Stat(staleDir)
			if err != nil || time.Since(info.ModTime()) < c.staleAfter {
				continue // possibly a live run, not ours to touch
			}
		}
		files, err := os.ReadDir(staleDir)
		if err != nil {
			continue
		}
		adopted := 0
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			src := filepath.Join(staleDir, f.Name())
			dst := filepath.Join(runDir, f.Name())
			if err := os.Rename(src, dst); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return fmt.Errorf("failed to adopt %s: %w", f.Name(), err)
			}
			adopted++
		}
		// Best effort: the dir only goes away once empty.
		_ = os.Remove(staleDir)
		if adopted > 0 && c.logger != nil {
			c.logger.Warn("Adopted partitions from stale run",
				zap.String("stale_run", d.Name()),
				zap.Int("partitions", adopted))
		}
	}
	return nil
}

// Archive marks a partition consumed after its rows are committed. Only
// called post-commit, so a crash right before this leaves the partition for
// an idempotent replay.
func (c *Claimer) Archive(path string) error {
	dst := filepath.Join(c.archiveDir, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		// Same partition archived by an earlier replay; keep both.
		dst = dst + ".dup"
	}
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("failed to archive %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Release removes the run directory once it is empty. Partitions that failed
// to commit stay behind for the next run to adopt.
func (c *Claimer) Release(runID string) {
	_ = os.Remove(filepath.Join(c.workDir, runID))
}
