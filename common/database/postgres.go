package database

import (
	"database/sql"
	"fmt"

	"github.com/TechnoShed-dev/technoshed-ble-scanner/common/config"

	_ "github.com/lib/pq"
)

// NewPostgresDB opens a Postgres connection and verifies it with a ping.
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.GetDSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close closes the database connection if open.
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
