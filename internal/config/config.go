package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "github.com/TechnoShed-dev/technoshed-ble-scanner/common/config"
)

// Config holds settings for every Ziggy pipeline process. Each binary reads
// the subset it needs; unknown env vars are simply left at their defaults.
type Config struct {
	HTTP struct {
		Addr string
	}

	// Raw capture store layout. The receiver appends to IncomingDir, the
	// consolidator claims into WorkDir and archives into ArchiveDir.
	Capture struct {
		IncomingDir      string
		WorkDir          string
		ArchiveDir       string
		MaxPartitionAge  time.Duration
		MaxPartitionSize int64
	}

	Consolidator struct {
		Interval time.Duration
		// Timestamps before PlausibleFloor are considered ghost dates and
		// are shifted onto the ingest clock.
		PlausibleFloor time.Time
		// RepairOffset is subtracted from the ingest time to build the
		// repair anchor (accounts for buffer-and-blast upload delay).
		RepairOffset time.Duration
		// DedupResolution rounds observed timestamps before keying.
		DedupResolution time.Duration
		// DevicePrefix keeps only sightings whose advertised name starts
		// with the fleet prefix. Empty means no filtering.
		DevicePrefix string
		// InsertChunk bounds multi-row INSERT statements.
		InsertChunk int
	}

	// LegacyAnchor is where ghost timelines from offline exports restart
	// (the real date the legacy logs began).
	LegacyAnchor time.Time

	Database commoncfg.DatabaseConfig

	Redis struct {
		Enabled  bool
		TTL      time.Duration
		Settings commoncfg.RedisConfig
	}

	MQTT struct {
		Enabled  bool
		Topic    string
		Settings commoncfg.MQTTConfig
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables with defaults that
// match the original TechnoShed deployment.
func Load() *Config {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":5001")

	cfg.Capture.IncomingDir = getEnv("INCOMING_DIR", "/app/ziggy_logs/incoming")
	cfg.Capture.WorkDir = getEnv("WORK_DIR", "/app/ziggy_logs/work")
	cfg.Capture.ArchiveDir = getEnv("ARCHIVE_DIR", "/app/ziggy_logs/archive")
	cfg.Capture.MaxPartitionAge = parseDuration(getEnv("MAX_PARTITION_AGE", "60s"), 60*time.Second)
	cfg.Capture.MaxPartitionSize = int64(parseInt(getEnv("MAX_PARTITION_BYTES", "262144"), 262144))

	cfg.Consolidator.Interval = parseDuration(getEnv("CONSOLIDATE_INTERVAL", "60s"), 60*time.Second)
	cfg.Consolidator.PlausibleFloor = parseDate(getEnv("PLAUSIBLE_FLOOR", "2024-01-01"), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg.Consolidator.RepairOffset = parseDuration(getEnv("REPAIR_OFFSET", "0s"), 0)
	cfg.Consolidator.DedupResolution = parseDuration(getEnv("DEDUP_RESOLUTION", "1s"), time.Second)
	cfg.Consolidator.DevicePrefix = getEnv("DEVICE_PREFIX", "")
	cfg.Consolidator.InsertChunk = parseInt(getEnv("INSERT_CHUNK", "500"), 500)

	cfg.LegacyAnchor = parseDate(getEnv("LEGACY_ANCHOR", "2025-11-19"), time.Date(2025, 11, 19, 0, 0, 0, 0, time.UTC))

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "ziggy_main")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.TTL = parseDuration(getEnv("DEDUP_CACHE_TTL", "24h"), 24*time.Hour)
	cfg.Redis.Settings.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Settings.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.Settings.DB = 0

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "ziggy/+/sightings")
	cfg.MQTT.Settings.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.Settings.ClientID = getEnv("MQTT_CLIENT_ID", "ziggy-receiver")
	cfg.MQTT.Settings.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Settings.Password = getEnv("MQTT_PASSWORD", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func parseDate(s string, def time.Time) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return def
	}
	return t.UTC()
}
