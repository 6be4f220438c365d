package repository

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"
)

// MemorySightingRepository is an in-memory canonical store for unit tests
// and DB-less development runs. It enforces the same dedup constraint as the
// Postgres unique index.
type MemorySightingRepository struct {
	mu   sync.Mutex
	rows map[string]*domain.Sighting
}

var _ SightingRepository = (*MemorySightingRepository)(nil)

func NewMemorySightingRepository() *MemorySightingRepository {
	return &MemorySightingRepository{rows: make(map[string]*domain.Sighting)}
}

func memKey(scannerID, deviceAddr string, observedAt time.Time) string {
	return scannerID + "|" + deviceAddr + "|" + strconv.FormatInt(observedAt.UnixNano(), 10)
}

func (r *MemorySightingRepository) EnsureSchema(ctx context.Context) error { return nil }

func (r *MemorySightingRepository) Ping(ctx context.Context) error { return nil }

func (r *MemorySightingRepository) InsertBatch(ctx context.Context, sightings []*domain.Sighting) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var inserted int64
	for _, s := range sightings {
		key := memKey(s.ScannerID, s.DeviceAddr, s.ObservedAt)
		if _, ok := r.rows[key]; ok {
			continue
		}
		cp := *s
		r.rows[key] = &cp
		inserted++
	}
	return inserted, nil
}

func (r *MemorySightingRepository) Exists(ctx context.Context, scannerID, deviceAddr string, observedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[memKey(scannerID, deviceAddr, observedAt)]
	return ok, nil
}

func (r *MemorySightingRepository) CountByScanner(ctx context.Context, scannerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.rows {
		if s.ScannerID == scannerID {
			n++
		}
	}
	return n, nil
}

// All returns a snapshot of committed rows, for test assertions.
func (r *MemorySightingRepository) All() []*domain.Sighting {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Sighting, 0, len(r.rows))
	for _, s := range r.rows {
		cp := *s
		out = append(out, &cp)
	}
	return out
}
