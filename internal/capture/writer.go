package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// openSuffix marks the partition the receiver is still appending to. The
// claimer only ever touches closed (plain .csv) partitions.
const openSuffix = ".open"

// PartitionWriter appends record batches to the current raw capture
// partition and rotates it on a time or size boundary. It is an explicit,
// injectable handle: the receiver owns exactly one and passes it to every
// intake path. Appends are serialized; a batch lands in one partition with a
// single write.
type PartitionWriter struct {
	dir     string
	maxAge  time.Duration
	maxSize int64
	logger  *zap.Logger

	mu       sync.Mutex
	file     *os.File
	path     string
	openedAt time.Time
	size     int64
	seq      int

	// counters for /stats
	batches int64
	records int64
}

// NewPartitionWriter creates the writer and its directory.
func NewPartitionWriter(dir string, maxAge time.Duration, maxSize int64, logger *zap.Logger) (*PartitionWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create incoming dir: %w", err)
	}
	return &PartitionWriter{
		dir:     dir,
		maxAge:  maxAge,
		maxSize: maxSize,
		logger:  logger,
	}, nil
}

// Append durably writes a batch of raw lines. The batch is flushed before
// returning so the receiver can acknowledge the upload.
func (w *PartitionWriter) Append(lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensurePartition(); err != nil {
		return err
	}

	payload := strings.Join(lines, "\n") + "\n"
	n, err := w.file.WriteString(payload)
	if err != nil {
		return fmt.Errorf("failed to append batch: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync partition: %w", err)
	}

	w.size += int64(n)
	w.batches++
	w.records += int64(len(lines))
	return nil
}

// ensurePartition opens a fresh partition if none is active or the active
// one hit a rotation boundary. Caller holds the lock.
func (w *PartitionWriter) ensurePartition() error {
	if w.file != nil {
		age := time.Since(w.openedAt)
		if (w.maxAge > 0 && age >= w.maxAge) || (w.maxSize > 0 && w.size >= w.maxSize) {
			if err := w.closePartition(); err != nil {
				return err
			}
		}
	}
	if w.file != nil {
		return nil
	}

	w.seq++
	name := fmt.Sprintf("ziggy_raw_%s_%04d.csv", time.Now().UTC().Format("20060102T150405"), w.seq)
	path := filepath.Join(w.dir, name+openSuffix)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open partition: %w", err)
	}
	n, err := f.WriteString(Header + "\n")
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to write partition header: %w", err)
	}

	w.file = f
	w.path = path
	w.openedAt = time.Now()
	w.size = int64(n)

	if w.logger != nil {
		w.logger.Info("Opened raw capture partition", zap.String("partition", name))
	}
	return nil
}

// closePartition closes the active file and strips the .open suffix, making
// the partition visible to the claimer. Caller holds the lock.
func (w *PartitionWriter) closePartition() error {
	if w.file == nil {
		return nil
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close partition: %w", err)
	}
	closed := strings.TrimSuffix(w.path, openSuffix)
	if err := os.Rename(w.path, closed); err != nil {
		return fmt.Errorf("failed to close out partition: %w", err)
	}
	if w.logger != nil {
		w.logger.Info("Rotated raw capture partition", zap.String("partition", filepath.Base(closed)))
	}
	w.file = nil
	w.path = ""
	w.size = 0
	return nil
}

// Rotate forces the active partition closed.
func (w *PartitionWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closePartition()
}

// Close rotates out the active partition; call on shutdown so no records sit
// in an .open file forever.
func (w *PartitionWriter) Close() error {
	return w.Rotate()
}

// ActivePartition returns the current partition file name, or "".
func (w *PartitionWriter) ActivePartition() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.path == "" {
		return ""
	}
	return filepath.Base(w.path)
}

// Stats reports accepted batch/record counts.
func (w *PartitionWriter) Stats() (batches, records int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batches, w.records
}
