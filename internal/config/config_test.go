package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":5001", cfg.HTTP.Addr)
	assert.Equal(t, "/app/ziggy_logs/incoming", cfg.Capture.IncomingDir)
	assert.Equal(t, 60*time.Second, cfg.Capture.MaxPartitionAge)
	assert.Equal(t, int64(262144), cfg.Capture.MaxPartitionSize)

	assert.Equal(t, 60*time.Second, cfg.Consolidator.Interval)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Consolidator.PlausibleFloor)
	assert.Equal(t, time.Second, cfg.Consolidator.DedupResolution)
	assert.Equal(t, "", cfg.Consolidator.DevicePrefix)
	assert.Equal(t, 500, cfg.Consolidator.InsertChunk)

	assert.Equal(t, time.Date(2025, 11, 19, 0, 0, 0, 0, time.UTC), cfg.LegacyAnchor)

	assert.Equal(t, "ziggy_main", cfg.Database.Database)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "ziggy/+/sightings", cfg.MQTT.Topic)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("PLAUSIBLE_FLOOR", "2023-06-15")
	t.Setenv("LEGACY_ANCHOR", "2025-01-02")
	t.Setenv("DEDUP_RESOLUTION", "500ms")
	t.Setenv("DEVICE_PREFIX", "GAT")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("MAX_PARTITION_BYTES", "1024")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), cfg.Consolidator.PlausibleFloor)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), cfg.LegacyAnchor)
	assert.Equal(t, 500*time.Millisecond, cfg.Consolidator.DedupResolution)
	assert.Equal(t, "GAT", cfg.Consolidator.DevicePrefix)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, int64(1024), cfg.Capture.MaxPartitionSize)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("PLAUSIBLE_FLOOR", "yesterday")
	t.Setenv("CONSOLIDATE_INTERVAL", "often")
	t.Setenv("INSERT_CHUNK", "lots")

	cfg := Load()
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Consolidator.PlausibleFloor)
	assert.Equal(t, 60*time.Second, cfg.Consolidator.Interval)
	assert.Equal(t, 500, cfg.Consolidator.InsertChunk)
}
