// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/adiadia/lastseen/internal/domain"
	"github.com/adiadia/lastseen/internal/logging"
	"github.com/adiadia/lastseen/internal/persistence/sqlite"
)

func newSQLiteRepo(t *testing.T) *SQLiteRecordRepository {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, sqlite.Memory)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := sqlite.EnsureSchema(ctx, db, sqlite.SchemaOptions{Logger: logging.Discard()}); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return NewSQLiteRecordRepository(db, logging.Discard())
}

func observed(id, at, desc string) domain.Result {
	r := domain.BaseResult(id, strings.ToUpper(id), "https://example.com/"+id, "")
	r.ObservedAt = at
	r.Description = desc
	return r
}

func mustUpsert(t *testing.T, repo *SQLiteRecordRepository, rs ...domain.Result) {
	t.Helper()
	for _, r := range rs {
		if err := repo.Upsert(context.Background(), r); err != nil {
			t.Fatalf("upsert %s: %v", r.SourceID, err)
		}
	}
}

func latestByID(t *testing.T, repo *SQLiteRecordRepository) map[string]domain.LatestRecord {
	t.Helper()
	rows, err := repo.LatestPerSource(context.Background())
	if err != nil {
		t.Fatalf("latest per source: %v", err)
	}
	out := make(map[string]domain.LatestRecord, len(rows))
	for _, r := range rows {
		if _, dup := out[r.SourceID]; dup {
			t.Fatalf("source %s returned twice", r.SourceID)
		}
		out[r.SourceID] = r
	}
	return out
}

func TestSQLiteHealthCheck(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.Memory)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	repo := NewSQLiteRecordRepository(db, logging.Discard())
	if repo.HealthCheck(ctx) {
		t.Fatal("expected unhealthy store before schema bootstrap")
	}
	if _, err := sqlite.EnsureSchema(ctx, db, sqlite.SchemaOptions{Logger: logging.Discard()}); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if !repo.HealthCheck(ctx) {
		t.Fatal("expected healthy store after schema bootstrap")
	}
}

func TestLatestExcludesErrorRows(t *testing.T) {
	repo := newSQLiteRepo(t)

	mustUpsert(t, repo,
		observed("github", "2024-01-01 00:00:00", "PushEvent at repo a/b"),
		domain.ErrorResult("github", "GITHUB", "", "github: transport failure"),
	)

	latest := latestByID(t, repo)
	got, ok := latest["github"]
	if !ok {
		t.Fatal("expected github row")
	}
	if got.Description != "PushEvent at repo a/b" {
		t.Fatalf("expected the older successful row, got %q", got.Description)
	}
}

func TestLatestTieBreaksOnInsertionID(t *testing.T) {
	repo := newSQLiteRepo(t)

	mustUpsert(t, repo,
		observed("tg", "2024-05-01 10:00:00", "first"),
		observed("tg", "2024-05-01 10:00:00", "second"),
	)

	if got := latestByID(t, repo)["tg"].Description; got != "second" {
		t.Fatalf("expected higher insertion id to win, got %q", got)
	}
}

func TestLatestPrefersNewestObservation(t *testing.T) {
	repo := newSQLiteRepo(t)

	mustUpsert(t, repo,
		observed("inat", "2024-05-02 08:00:00", "newer"),
		observed("inat", "2024-05-01 08:00:00", "older but inserted later"),
	)

	if got := latestByID(t, repo)["inat"].Description; got != "newer" {
		t.Fatalf("expected newest observed_at to win, got %q", got)
	}
}

func TestLatestOrdersAcrossUTCOffsets(t *testing.T) {
	repo := newSQLiteRepo(t)

	// 10:00 at +03:00 is 07:00Z; 08:00 at -05:00 is 13:00Z.
	east := observed("inat", "2024-05-01 10:00:00", "Observation 1")
	east.ObservedAtUTC = "2024-05-01 07:00:00"
	west := observed("inat", "2024-05-01 08:00:00", "Observation 2")
	west.ObservedAtUTC = "2024-05-01 13:00:00"

	mustUpsert(t, repo, west, east)

	got := latestByID(t, repo)["inat"]
	if got.Description != "Observation 2" {
		t.Fatalf("expected the later instant to win, got %q", got.Description)
	}
	if got.ObservedAt != "2024-05-01 08:00:00" {
		t.Fatalf("expected the source wall clock displayed, got %q", got.ObservedAt)
	}
}

func TestLatestUndatedRowNeverDisplacesDatedOne(t *testing.T) {
	repo := newSQLiteRepo(t)

	empty := observed("lastfm", "", "no qualifying activity")
	mustUpsert(t, repo, empty)
	if got := latestByID(t, repo)["lastfm"]; got.Description != "no qualifying activity" || got.ObservedAt != "" {
		t.Fatalf("expected undated row visible when alone, got %+v", got)
	}

	mustUpsert(t, repo, observed("lastfm", "2024-05-01 10:15:00", "Listening to A - B"), empty)
	if got := latestByID(t, repo)["lastfm"].Description; got != "Listening to A - B" {
		t.Fatalf("expected dated row to win, got %q", got)
	}
}

func TestReupsertIsIdempotentForReaders(t *testing.T) {
	repo := newSQLiteRepo(t)
	r := observed("flightradar", "2024-05-02 00:00:00", "New flight recorded")

	mustUpsert(t, repo, r)
	before := latestByID(t, repo)

	mustUpsert(t, repo, r, r)
	after := latestByID(t, repo)

	if before["flightradar"] != after["flightradar"] {
		t.Fatalf("latest changed after re-upsert: %+v vs %+v", before["flightradar"], after["flightradar"])
	}

	history, err := repo.History(context.Background(), "flightradar", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 history rows, got %d", len(history))
	}
}

func TestHistoryIncludesErrorsNewestFirst(t *testing.T) {
	repo := newSQLiteRepo(t)

	mustUpsert(t, repo,
		observed("github", "2024-01-01 00:00:00", "ok"),
		domain.ErrorResult("github", "GITHUB", "", "github: boom"),
		observed("inat", "2024-01-01 00:00:00", "other source"),
	)

	history, err := repo.History(context.Background(), "github", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(history))
	}
	if !history[0].IsError || history[0].Description != "github: boom" {
		t.Fatalf("expected newest error row first, got %+v", history[0])
	}
	if history[0].ID <= history[1].ID {
		t.Fatal("expected descending ids")
	}
	if history[0].InsertedAt.IsZero() || time.Since(history[0].InsertedAt) > time.Hour {
		t.Fatalf("unexpected inserted_at %s", history[0].InsertedAt)
	}

	limited, err := repo.History(context.Background(), "github", 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit honoured, got %d", len(limited))
	}
}

func TestUpsertStoresNullsAndPayload(t *testing.T) {
	repo := newSQLiteRepo(t)
	r := domain.BaseResult("tg", "Telegram", "", "<html/>")

	mustUpsert(t, repo, r)

	var observedAt, sourceURL *string
	var payload string
	var isError bool
	if err := repo.db.QueryRowContext(context.Background(),
		`SELECT observed_at, source_url, raw_payload, is_error FROM records WHERE source_id = 'tg'`,
	).Scan(&observedAt, &sourceURL, &payload, &isError); err != nil {
		t.Fatalf("select: %v", err)
	}
	if observedAt != nil || sourceURL != nil {
		t.Fatal("expected absent fields stored as NULL")
	}
	if payload != "<html/>" || isError {
		t.Fatalf("unexpected payload=%q is_error=%v", payload, isError)
	}
}

func TestUpsertCleansPayloadText(t *testing.T) {
	repo := newSQLiteRepo(t)
	r := domain.BaseResult("tg", "Telegram", "", "")
	r.RawPayload = "<p>\x00caf\xe9</p>"
	r.Description = "tail\x00"

	mustUpsert(t, repo, r)

	var payload, desc string
	if err := repo.db.QueryRowContext(context.Background(),
		`SELECT raw_payload, description FROM records WHERE source_id = 'tg'`,
	).Scan(&payload, &desc); err != nil {
		t.Fatalf("select: %v", err)
	}
	if payload != "<p>caf\uFFFD</p>" || desc != "tail" {
		t.Fatalf("unexpected stored text payload=%q description=%q", payload, desc)
	}
}

func TestUpsertStoresUTCKey(t *testing.T) {
	repo := newSQLiteRepo(t)
	legacy := observed("gh", "2024-05-01 10:00:00", "no key")
	keyed := observed("fr", "2024-05-01 10:00:00", "keyed")
	keyed.ObservedAtUTC = "2024-05-01 07:00:00"

	mustUpsert(t, repo, legacy, keyed)

	for id, want := range map[string]string{"gh": "2024-05-01 10:00:00", "fr": "2024-05-01 07:00:00"} {
		var key *string
		if err := repo.db.QueryRowContext(context.Background(),
			`SELECT observed_at_utc FROM records WHERE source_id = ?`, id,
		).Scan(&key); err != nil {
			t.Fatalf("select %s: %v", id, err)
		}
		if key == nil || *key != want {
			t.Fatalf("%s: expected key %q, got %v", id, want, key)
		}
	}
}

func TestUpsertRejectsResultWithoutSource(t *testing.T) {
	repo := newSQLiteRepo(t)

	err := repo.Upsert(context.Background(), domain.Result{Description: "orphan"})
	if !errors.Is(err, domain.ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite, got %v", err)
	}
}

func TestUpsertWithoutSchemaFails(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.Memory)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	repo := NewSQLiteRecordRepository(db, logging.Discard())
	if err := repo.Upsert(ctx, observed("github", "", "")); !errors.Is(err, domain.ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite, got %v", err)
	}
}

func TestClampHistoryLimit(t *testing.T) {
	cases := map[int]int{-1: 20, 0: 20, 5: 5, 200: 200, 201: 200}
	for in, want := range cases {
		if got := ClampHistoryLimit(in); got != want {
			t.Fatalf("ClampHistoryLimit(%d): expected %d got %d", in, want, got)
		}
	}
}
