// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adiadia/lastseen/internal/domain"
	"github.com/adiadia/lastseen/internal/persistence/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordRepository is the Postgres record store.
type RecordRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewRecordRepository(pool *pgxpool.Pool, logger *slog.Logger) *RecordRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &RecordRepository{
		pool:   pool,
		logger: logger,
	}
}

// HealthCheck reports whether the schema is present and queryable.
func (r *RecordRepository) HealthCheck(ctx context.Context) bool {
	if err := postgres.SchemaReady(ctx, r.pool); err != nil {
		r.logger.Warn("store health check failed", "error", err)
		return false
	}
	return true
}

// Upsert appends r as a new row. Error results are stored like any other.
func (r *RecordRepository) Upsert(ctx context.Context, res domain.Result) error {
	if err := writable(res); err != nil {
		return err
	}
	res = res.Sanitized()

	var id int64
	if err := r.pool.QueryRow(ctx, `
		INSERT INTO records (
			source_id, source_name, observed_at, observed_at_utc, raw_timestamp,
			description, event_kind, activity_url, source_url, raw_payload, is_error
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
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
	).Scan(&id); err != nil {
		r.logger.Error("insert record failed",
			"source_id", res.SourceID,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
	}

	r.logger.Debug("record inserted", "source_id", res.SourceID, "id", id)
	return nil
}

// LatestPerSource returns, per source, the newest non-error row by its UTC
// observation time, then by id. Undated rows rank below any dated row.
func (r *RecordRepository) LatestPerSource(ctx context.Context) ([]domain.LatestRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (source_id)
			source_id, source_name, observed_at, description, event_kind, activity_url, source_url
		FROM records
		WHERE NOT is_error
		ORDER BY source_id, observed_at_utc DESC NULLS LAST, id DESC
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

// History returns the most recent rows of one source, errors included, newest
// insertion first. Raw payloads are not loaded.
func (r *RecordRepository) History(ctx context.Context, sourceID string, limit int) ([]domain.StoredRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, source_id, source_name, observed_at, raw_timestamp, description,
		       event_kind, activity_url, source_url, is_error, inserted_at
		FROM records
		WHERE source_id = $1
		ORDER BY id DESC
		LIMIT $2
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
			&rec.InsertedAt,
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
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("history rows iteration failed", "source_id", sourceID, "error", err)
		return nil, fmt.Errorf("history %s: %w", sourceID, err)
	}

	return out, nil
}
