// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/lastseen/internal/domain"
	embeddedmigrations "github.com/adiadia/lastseen/migrations"
)

// SchemaOptions controls EnsureSchema.
type SchemaOptions struct {
	Logger *slog.Logger
	// Strict turns a stored version different from domain.SchemaVersion into
	// an error instead of a warning.
	Strict bool
}

// EnsureSchema applies the embedded migrations inside one transaction each,
// records the schema version on first run and compares it afterwards. It
// returns the stored version.
func EnsureSchema(ctx context.Context, db *sql.DB, opts SchemaOptions) (int, error) {
	if db == nil {
		return 0, errors.New("nil database")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := time.Now()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)
	`); err != nil {
		return 0, fmt.Errorf("create schema_migrations table: %w", err)
	}

	migrations, err := embeddedmigrations.Ordered(embeddedmigrations.SQLite)
	if err != nil {
		return 0, fmt.Errorf("load embedded migrations: %w", err)
	}

	applied := 0
	for _, migration := range migrations {
		var n int
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE filename = ?`,
			migration.Name,
		).Scan(&n); err != nil {
			return 0, fmt.Errorf("check migration %s: %w", migration.Name, err)
		}
		if n > 0 {
			continue
		}

		logger.Info("applying migration", "file", migration.Name)
		if err := applyMigration(ctx, db, migration); err != nil {
			return 0, fmt.Errorf("apply migration %s: %w", migration.Name, err)
		}
		applied++
	}

	version, err := checkVersion(ctx, db, logger, opts.Strict)
	if err != nil {
		return version, err
	}

	logger.Info("schema bootstrap complete",
		"applied", applied,
		"schema_version", version,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return version, SchemaReady(ctx, db)
}

func applyMigration(ctx context.Context, db *sql.DB, migration embeddedmigrations.File) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES (?)`, migration.Name); err != nil {
		return err
	}

	return tx.Commit()
}

func checkVersion(ctx context.Context, db *sql.DB, logger *slog.Logger, strict bool) (int, error) {
	var stored int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version ORDER BY rowid ASC LIMIT 1`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, domain.SchemaVersion); err != nil {
			return 0, fmt.Errorf("record schema version: %w", err)
		}
		logger.Info("schema version recorded", "schema_version", domain.SchemaVersion)
		return domain.SchemaVersion, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	if stored != domain.SchemaVersion {
		if strict {
			return stored, fmt.Errorf("%w: stored %d, expected %d", domain.ErrSchemaMismatch, stored, domain.SchemaVersion)
		}
		logger.Warn("schema version mismatch; continuing without migration",
			"stored", stored,
			"expected", domain.SchemaVersion,
		)
	}
	return stored, nil
}

// SchemaReady reports whether the schema version table exists and is readable.
func SchemaReady(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("nil database")
	}

	for _, table := range []string{"schema_version", "records"} {
		var n int
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&n); err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if n == 0 {
			return fmt.Errorf("required table missing: %s", table)
		}
	}

	var version int
	if err := db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	return nil
}
