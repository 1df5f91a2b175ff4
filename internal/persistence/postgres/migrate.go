// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adiadia/lastseen/internal/domain"
	embeddedmigrations "github.com/adiadia/lastseen/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaMigrationLockID int64 = 0x4c53545f4d494752 // "LST_MIGR"

var requiredTables = []string{
	"schema_version",
	"records",
}

// SchemaOptions controls EnsureSchema.
type SchemaOptions struct {
	Logger *slog.Logger
	// Strict turns a stored version different from domain.SchemaVersion into
	// an error instead of a warning.
	Strict bool
}

// EnsureSchema applies the embedded migrations once, records the schema
// version on first run and compares it on every later run. It returns the
// stored version. Existing data is never migrated in place.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, opts SchemaOptions) (int, error) {
	if pool == nil {
		return 0, errors.New("nil database pool")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := time.Now()
	logger.Info("schema bootstrap starting")

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire db connection for schema bootstrap: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, schemaMigrationLockID); err != nil {
		return 0, fmt.Errorf("acquire schema bootstrap lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, unlockErr := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, schemaMigrationLockID); unlockErr != nil {
			logger.Error("schema bootstrap unlock failed", "error", unlockErr)
		}
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, fmt.Errorf("create schema_migrations table: %w", err)
	}

	migrations, err := embeddedmigrations.Ordered(embeddedmigrations.Postgres)
	if err != nil {
		return 0, fmt.Errorf("load embedded migrations: %w", err)
	}
	if len(migrations) == 0 {
		return 0, errors.New("no embedded migrations found")
	}

	applied := 0
	skipped := 0

	for _, migration := range migrations {
		var alreadyApplied bool
		if err := conn.QueryRow(
			ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`,
			migration.Name,
		).Scan(&alreadyApplied); err != nil {
			return 0, fmt.Errorf("check migration %s: %w", migration.Name, err)
		}

		if alreadyApplied {
			skipped++
			continue
		}

		logger.Info("applying migration", "file", migration.Name)
		if err := applyMigration(ctx, conn, migration); err != nil {
			return 0, fmt.Errorf("apply migration %s: %w", migration.Name, err)
		}
		applied++
	}

	version, err := checkVersion(ctx, conn, logger, opts.Strict)
	if err != nil {
		return version, err
	}

	logger.Info("schema bootstrap complete",
		"applied", applied,
		"skipped", skipped,
		"schema_version", version,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return version, SchemaReady(ctx, pool)
}

func applyMigration(ctx context.Context, conn *pgxpool.Conn, migration embeddedmigrations.File) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, migration.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_migrations (filename)
		VALUES ($1)
	`, migration.Name); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// checkVersion inserts the current version when none is stored yet and
// otherwise compares it.
func checkVersion(ctx context.Context, conn *pgxpool.Conn, logger *slog.Logger, strict bool) (int, error) {
	var stored int
	err := conn.QueryRow(ctx, `SELECT version FROM schema_version ORDER BY created_at ASC LIMIT 1`).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := conn.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, domain.SchemaVersion); err != nil {
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

// SchemaReady reports whether the required tables exist and the schema version
// is readable.
func SchemaReady(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil database pool")
	}

	missingTables := make([]string, 0, len(requiredTables))
	for _, table := range requiredTables {
		var relationName *string
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1)`, "public."+table).Scan(&relationName); err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if relationName == nil || strings.TrimSpace(*relationName) == "" {
			missingTables = append(missingTables, table)
		}
	}
	if len(missingTables) > 0 {
		return fmt.Errorf("required tables missing: %s", strings.Join(missingTables, ", "))
	}

	var version int
	if err := pool.QueryRow(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	return nil
}
