// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/lastseen/internal/domain"
	"github.com/adiadia/lastseen/internal/persistence/sqlite"
)

// SQLiteRecordRepository is the single-file record store.
type SQLiteRecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteRecordRepository(db *sql.DB, logger *slog.Logger) *SQLiteRecordRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &SQLiteRecordRepository{
		db:     db,
		logger: logger,
	}
}

func (r *SQLiteRecordRepository) HealthCheck(ctx context.Context) bool {
	if err := sqlite.SchemaReady(ctx, r.db); err != nil {
		r.logger.Warn("store health check failed", "error", err)
		return false
	}
	return true
}

func (r *SQLiteRecordRepository) Upsert(ctx context.Context, res domain.Result) error {
	if err := writable(res); err != nil {
		return err
	}
	res = res.Sanitized()

	out, err := r.db.ExecContext(ctx, `
		INSERT INTO records (
			source_id, source_name, observed_at, observed_at_utc, raw_timestamp,
			description, event_kind, activity_url, source_url, raw_payload, is_error
		)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`,
		res.SourceID,
		res.SourceName,
		nullable(res.ObservedAt),
		nullable(orderingKey(res)),
		nullable(res.RawTimestamp),
		nullable(res.Description),
		nullable(res.EventKind),
		nullable(res.ActivityURL),
		nullable(res.SourceURL),
		nullable(res.RawPayload),
		res.IsError,
	)
	if err != nil {
		r.logger.Error("insert record failed",
			"source_id", res.SourceID,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
	}

	id, _ := out.LastInsertId()
	r.logger.Debug("record inserted", "source_id", res.SourceID, "id", id)
	return nil
}

func (r *SQLiteRecordRepository) LatestPerSource(ctx context.Context) ([]domain.LatestRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source_id, source_name, observed_at, description, event_kind, activity_url, source_url
		FROM (
			SELECT *,
			       ROW_NUMBER() OVER (
			           PARTITION BY source_id
			           ORDER BY observed_at_utc IS NULL, observed_at_utc DESC, id DESC
			       ) AS rn
			FROM records
			WHERE is_error = 0
		)
		WHERE rn = 1
		ORDER BY source_id
	`)
	if err != nil {
		r.logger.Error("latest per source query failed", "error", err)
		return nil, fmt.Errorf("latest per source: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LatestRecord, 0, len(domain.KnownSources))
	for rows.Next() {
		var rec domain.LatestRecord
		var observed, desc, kind, activityURL, sourceURL *string
		if err := rows.Scan(
			&rec.SourceID,
			&rec.SourceName,
			&observed,
			&desc,
			&kind,
			&activityURL,
			&sourceURL,
		); err != nil {
			r.logger.Error("scan latest row failed", "error", err)
			return nil, fmt.Errorf("latest per source: %w", err)
		}
		rec.ObservedAt = deref(observed)
		rec.Description = deref(desc)
		rec.EventKind = deref(kind)
		rec.ActivityURL = deref(activityURL)
		rec.SourceURL = deref(sourceURL)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("latest rows iteration failed", "error", err)
		return nil, fmt.Errorf("latest per source: %w", err)
	}

	return out, nil
}

func (r *SQLiteRecordRepository) History(ctx context.Context, sourceID string, limit int) ([]domain.StoredRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, source_name, observed_at, raw_timestamp, description,
		       event_kind, activity_url, source_url, is_error, inserted_at
		FROM records
		WHERE source_id = ?
		ORDER BY id DESC
		LIMIT ?
	`,
		sourceID,
		ClampHistoryLimit(limit),
	)
	if err != nil {
		r.logger.Error("history query failed", "source_id", sourceID, "error", err)
		return nil, fmt.Errorf("history %s: %w", sourceID, err)
	}
	defer rows.Close()

	out := make([]domain.StoredRecord, 0, 16)
	for rows.Next() {
		var rec domain.StoredRecord
		var observed, raw, desc, kind, activityURL, sourceURL *string
		var insertedAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.SourceID,
			&rec.SourceName,
			&observed,
			&raw,
			&desc,
			&kind,
			&activityURL,
			&sourceURL,
			&rec.IsError,
			&insertedAt,
		); err != nil {
			r.logger.Error("scan history row failed", "source_id", sourceID, "error", err)
			return nil, fmt.Errorf("history %s: %w", sourceID, err)
		}
		rec.ObservedAt = deref(observed)
		rec.RawTimestamp = deref(raw)
		rec.Description = deref(desc)
		rec.EventKind = deref(kind)
		rec.ActivityURL = deref(activityURL)
		rec.SourceURL = deref(sourceURL)
		if t, err := time.Parse(time.RFC3339Nano, insertedAt); err == nil {
			rec.InsertedAt = t
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("history rows iteration failed", "source_id", sourceID, "error", err)
		return nil, fmt.Errorf("history %s: %w", sourceID, err)
	}

	return out, nil
}
