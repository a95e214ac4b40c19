package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations are written in the SQL subset shared by SQLite and PostgreSQL.
// Timestamps are unix nanoseconds so both drivers scan them the same way.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_schema_version_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at BIGINT NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "create_analyses_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS analyses (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL,
				subject_id TEXT NOT NULL DEFAULT '',
				text TEXT NOT NULL,
				result TEXT NOT NULL,
				status TEXT NOT NULL,
				flagged INTEGER NOT NULL DEFAULT 0,
				truth_index DOUBLE PRECISION NOT NULL DEFAULT 0,
				risk_index DOUBLE PRECISION NOT NULL DEFAULT 0,
				awakening_index DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_analyses_owner_created ON analyses(owner_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_analyses_subject ON analyses(subject_id);
			CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
		`,
	},
	{
		Version: 3,
		Name:    "create_drift_snapshots_table",
		SQL: `
			CREATE TABLE IF NOT EXISTS drift_snapshots (
				id TEXT PRIMARY KEY,
				subject_id TEXT NOT NULL,
				truth DOUBLE PRECISION NOT NULL,
				lie DOUBLE PRECISION NOT NULL,
				coherence DOUBLE PRECISION NOT NULL,
				recorded_at BIGINT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_drift_snapshots_subject ON drift_snapshots(subject_id, recorded_at);
		`,
	},
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	ctx := context.Background()
	logger := slog.Default().With("component", "migrations", "driver", db.driver)

	if _, err := db.conn.ExecContext(ctx, migrations[0].SQL); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err := db.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	logger.Info("current schema version", "version", currentVersion)

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			logger.Debug("skipping migration", "version", migration.Version, "name", migration.Name)
			continue
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.ExecContext(ctx, db.rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"),
			migration.Version, time.Now().UnixNano()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		logger.Info("applied migration", "version", migration.Version, "name", migration.Name)
	}

	return nil
}

// SchemaVersion returns the highest applied migration
func (db *DB) SchemaVersion() (int, error) {
	var v int
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}
