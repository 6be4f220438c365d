package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"

	"go.uber.org/zap"
)

// PostgresSightingRepository stores sightings in the ble_sightings table.
type PostgresSightingRepository struct {
	db     *sql.DB
	logger *zap.Logger
	chunk  int
}

var _ SightingRepository = (*PostgresSightingRepository)(nil)

// NewPostgresSightingRepository creates the repository. chunk bounds the
// number of rows per INSERT statement.
func NewPostgresSightingRepository(db *sql.DB, chunk int, logger *zap.Logger) *PostgresSightingRepository {
	if chunk <= 0 {
		chunk = 500
	}
	return &PostgresSightingRepository{db: db, logger: logger, chunk: chunk}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ble_sightings (
	id          BIGSERIAL PRIMARY KEY,
	scanner_id  TEXT NOT NULL,
	device_addr TEXT NOT NULL,
	device_name TEXT NOT NULL DEFAULT '',
	rssi        INTEGER,
	channel     TEXT NOT NULL DEFAULT 'BLE',
	security    TEXT NOT NULL DEFAULT '',
	observed_at TIMESTAMPTZ NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL,
	repaired    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS ble_sightings_dedup_idx
	ON ble_sightings (scanner_id, device_addr, observed_at);
CREATE INDEX IF NOT EXISTS ble_sightings_observed_idx
	ON ble_sightings (observed_at);
CREATE INDEX IF NOT EXISTS ble_sightings_device_idx
	ON ble_sightings (device_addr, observed_at);
`

// EnsureSchema creates the table and indexes if missing.
func (r *PostgresSightingRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// InsertBatch inserts sightings inside a single transaction. Duplicate keys
// are dropped by ON CONFLICT DO NOTHING; the returned count is the number of
// rows that actually landed.
func (r *PostgresSightingRepository) InsertBatch(ctx context.Context, sightings []*domain.Sighting) (int64, error) {
	if len(sightings) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var inserted int64
	for start := 0; start < len(sightings); start += r.chunk {
		end := start + r.chunk
		if end > len(sightings) {
			end = len(sightings)
		}
		n, err := r.insertChunk(ctx, tx, sightings[start:end])
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

func (r *PostgresSightingRepository) insertChunk(ctx context.Context, tx *sql.Tx, sightings []*domain.Sighting) (int64, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO ble_sightings
		(scanner_id, device_addr, device_name, rssi, channel, security, observed_at, ingested_at, repaired)
		VALUES `)

	args := make([]interface{}, 0, len(sightings)*9)
	for i, s := range sightings {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 9
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))

		var rssi sql.NullInt64
		if s.RSSI != nil {
			rssi = sql.NullInt64{Int64: int64(*s.RSSI), Valid: true}
		}
		args = append(args,
			s.ScannerID, s.DeviceAddr, s.DeviceName, rssi,
			s.Channel, s.Security, s.ObservedAt, s.IngestedAt, s.Repaired)
	}
	sb.WriteString(" ON CONFLICT (scanner_id, device_addr, observed_at) DO NOTHING")

	res, err := tx.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sightings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// Exists reports whether the dedup key already has a committed row.
func (r *PostgresSightingRepository) Exists(ctx context.Context, scannerID, deviceAddr string, observedAt time.Time) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM ble_sightings WHERE scanner_id = $1 AND device_addr = $2 AND observed_at = $3 LIMIT 1`,
		scannerID, deviceAddr, observedAt).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query existence: %w", err)
	}
	return true, nil
}

// CountByScanner counts committed rows for one node.
func (r *PostgresSightingRepository) CountByScanner(ctx context.Context, scannerID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ble_sightings WHERE scanner_id = $1`, scannerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sightings: %w", err)
	}
	return n, nil
}

// Ping verifies the store is reachable before a consolidation run claims
// anything.
func (r *PostgresSightingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
