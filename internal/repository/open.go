// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/domain"
	"github.com/adiadia/lastseen/internal/persistence/postgres"
	"github.com/adiadia/lastseen/internal/persistence/sqlite"
)

// Store is the full record store surface shared by both drivers.
type Store interface {
	HealthCheck(ctx context.Context) bool
	Upsert(ctx context.Context, res domain.Result) error
	LatestPerSource(ctx context.Context) ([]domain.LatestRecord, error)
	History(ctx context.Context, sourceID string, limit int) ([]domain.StoredRecord, error)
}

// Handle is an opened store with its schema ensured.
type Handle struct {
	Store
	Driver string
	// SchemaVersion is the version stored in the database.
	SchemaVersion int
	close         func()
}

func (h *Handle) Close() {
	if h != nil && h.close != nil {
		h.close()
	}
}

// Open connects to the store selected by cfg.StoreDriver and runs
// EnsureSchema. With cfg.SchemaStrict a version mismatch closes the store and
// returns an error wrapping domain.ErrSchemaMismatch.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		version, err := postgres.EnsureSchema(ctx, pool, postgres.SchemaOptions{Logger: logger, Strict: cfg.SchemaStrict})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return &Handle{
			Store:         NewRecordRepository(pool, logger),
			Driver:        config.DriverPostgres,
			SchemaVersion: version,
			close:         pool.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		version, err := sqlite.EnsureSchema(ctx, db, sqlite.SchemaOptions{Logger: logger, Strict: cfg.SchemaStrict})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return &Handle{
			Store:         NewSQLiteRecordRepository(db, logger),
			Driver:        config.DriverSQLite,
			SchemaVersion: version,
			close:         func() { _ = db.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
