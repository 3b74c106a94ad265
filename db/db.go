package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		controller TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (controller, key)
	)`,
	`CREATE TABLE IF NOT EXISTS actuator_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity TEXT NOT NULL,
		active BOOLEAN NOT NULL,
		at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_actuator_transitions_entity ON actuator_transitions (entity, id)`,
}

// Open opens the sqlite database at path, creating it and its schema if needed.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)

	if err := ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("Database ready")
	return conn, nil
}

func ApplyMigrations(db *sql.DB) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	for _, stmt := range migrations {
		if _, err := tx.Exec(stmt); err != nil {
			RollbackTransaction(tx)
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return CommitTransaction(tx)
}
