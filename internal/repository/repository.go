package repository

import (
	"context"
	"time"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"
)

// SightingRepository is the canonical store. Rows are immutable once
// committed; the unique (scanner_id, device_addr, observed_at) constraint is
// the storage-layer line of defense for the dedup invariant, so InsertBatch
// silently skips conflicting rows and reports how many actually landed.
type SightingRepository interface {
	EnsureSchema(ctx context.Context) error
	// Ping reports store reachability; a consolidation run aborts before
	// claiming anything when the store is down.
	Ping(ctx context.Context) error
	InsertBatch(ctx context.Context, sightings []*domain.Sighting) (inserted int64, err error)
	Exists(ctx context.Context, scannerID, deviceAddr string, observedAt time.Time) (bool, error)
	CountByScanner(ctx context.Context, scannerID string) (int64, error)
}
