package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema for the SQLite store.
const schemaV1 = `
-- One row per replay
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    scenario TEXT NOT NULL,
    world INTEGER NOT NULL,
    agent INTEGER NOT NULL,
    horizon INTEGER NOT NULL,
    steps INTEGER NOT NULL,
    status TEXT NOT NULL,  -- 'consistent', 'mismatch', 'horizon_exceeded', ...
    error TEXT,

    max_position_x REAL NOT NULL DEFAULT 0,
    max_position_y REAL NOT NULL DEFAULT 0,
    max_heading REAL NOT NULL DEFAULT 0,
    max_speed REAL NOT NULL DEFAULT 0,

    started_at TEXT NOT NULL,
    duration_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- Per-step checks
CREATE TABLE IF NOT EXISTS run_steps (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    action_dx REAL NOT NULL,
    action_dy REAL NOT NULL,
    action_dyaw REAL NOT NULL,
    position_x REAL NOT NULL,
    position_y REAL NOT NULL,
    expected_x REAL NOT NULL,
    expected_y REAL NOT NULL,
    heading REAL NOT NULL,
    expected_heading REAL NOT NULL,
    speed REAL NOT NULL,
    expected_speed REAL NOT NULL,
    dev_x REAL NOT NULL,
    dev_y REAL NOT NULL,
    dev_heading REAL NOT NULL,
    dev_speed REAL NOT NULL,
    consistent INTEGER NOT NULL,
    PRIMARY KEY (run_id, idx)
);

-- Schema version
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema initializes the database schema.
// It creates all tables and applies migrations as needed.
// Runs integrity validation before migrations on existing databases.
func InitSchema(ctx context.Context, db *sql.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// Schema version table doesn't exist yet, create fresh schema
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if err := ValidateIntegrity(ctx, db); err != nil {
		return fmt.Errorf("database integrity check failed: %w", err)
	}

	if currentVersion > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, SchemaVersion)
	}

	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns 0 and an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// createSchema creates the initial database schema.
func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// ValidateIntegrity runs SQLite integrity checks on the database.
// It runs PRAGMA integrity_check and PRAGMA foreign_key_check.
// Returns an error if any issues are found.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity_check failed: %s", result)
		}
	}

	fkRows, err := db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer fkRows.Close()

	var fkErrors []string
	for fkRows.Next() {
		var table, rowid, parent, fkid string
		if err := fkRows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign_key_check result: %w", err)
		}
		fkErrors = append(fkErrors, fmt.Sprintf("table=%s rowid=%s parent=%s fkid=%s", table, rowid, parent, fkid))
	}

	if len(fkErrors) > 0 {
		return fmt.Errorf("foreign_key_check failed: %v", fkErrors)
	}

	return nil
}
