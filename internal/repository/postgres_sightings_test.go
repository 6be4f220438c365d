package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func newMockRepo(t *testing.T, chunk int) (*PostgresSightingRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresSightingRepository(db, chunk, zap.NewNop()), mock
}

func sampleSightings(n int) []*domain.Sighting {
	rssi := -61
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	out := make([]*domain.Sighting, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &domain.Sighting{
			ScannerID:  "node-A",
			DeviceAddr: "AA:BB:CC:DD:EE:01",
			DeviceName: "GAT01",
			RSSI:       &rssi,
			Channel:    "BLE",
			Security:   "open",
			ObservedAt: base.Add(time.Duration(i) * time.Second),
			IngestedAt: base.Add(5 * time.Second),
		})
	}
	return out
}

func TestInsertBatch_SingleChunk(t *testing.T) {
	repo, mock := newMockRepo(t, 500)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ble_sightings").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.InsertBatch(context.Background(), sampleSightings(2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_ConflictRowsNotCounted(t *testing.T) {
	repo, mock := newMockRepo(t, 500)

	// 3 rows sent, 1 already present: ON CONFLICT drops it.
	mock.ExpectBegin()
	mock.ExpectExec("ON CONFLICT \\(scanner_id, device_addr, observed_at\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.InsertBatch(context.Background(), sampleSightings(3))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_ChunksInOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t, 2)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ble_sightings").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO ble_sightings").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO ble_sightings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.InsertBatch(context.Background(), sampleSightings(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_ExecFailureRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t, 500)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ble_sightings").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	n, err := repo.InsertBatch(context.Background(), sampleSightings(2))
	assert.Error(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_Empty(t *testing.T) {
	repo, mock := newMockRepo(t, 500)

	n, err := repo.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_NilRSSI(t *testing.T) {
	repo, mock := newMockRepo(t, 500)

	s := sampleSightings(1)[0]
	s.RSSI = nil

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ble_sightings").
		WithArgs(s.ScannerID, s.DeviceAddr, s.DeviceName, sql.NullInt64{},
			s.Channel, s.Security, s.ObservedAt, s.IngestedAt, s.Repaired).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.InsertBatch(context.Background(), []*domain.Sighting{s})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	repo, mock := newMockRepo(t, 500)
	observed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT 1 FROM ble_sightings").
		WithArgs("node-A", "AA:01", observed).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	ok, err := repo.Exists(context.Background(), "node-A", "AA:01", observed)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("SELECT 1 FROM ble_sightings").
		WithArgs("node-A", "AA:02", observed).
		WillReturnError(sql.ErrNoRows)

	ok, err = repo.Exists(context.Background(), "node-A", "AA:02", observed)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByScanner(t *testing.T) {
	repo, mock := newMockRepo(t, 500)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM ble_sightings").
		WithArgs("node-A").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := repo.CountByScanner(context.Background(), "node-A")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t, 500)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ble_sightings").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
