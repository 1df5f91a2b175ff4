// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/adiadia/lastseen/internal/domain"
	"github.com/adiadia/lastseen/internal/source"
)

func TestRouter_LatestUpdates(t *testing.T) {
	records := &mockRecordReader{
		healthy: true,
		latest: []domain.LatestRecord{{
			SourceID:    domain.SourceGitHub,
			SourceName:  "GitHub",
			ObservedAt:  "2024-01-01 00:00:00",
			Description: "pushed to main",
		}},
	}
	router := NewRouter(Deps{Records: records, Logger: discardLogger()})

	rec := serve(router, http.MethodGet, "/api/updates", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp []domain.LatestRecord
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].SourceID != domain.SourceGitHub {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp[0].ObservedAt != "2024-01-01 00:00:00" {
		t.Fatalf("expected observed_at to pass through, got %q", resp[0].ObservedAt)
	}
}

func TestRouter_LatestUpdatesAbsentFieldsAreNull(t *testing.T) {
	records := &mockRecordReader{
		healthy: true,
		latest:  []domain.LatestRecord{{SourceID: domain.SourceLinkedIn, SourceName: "LinkedIn", Description: "manual"}},
	}
	router := NewRouter(Deps{Records: records, Logger: discardLogger()})

	rec := serve(router, http.MethodGet, "/api/updates", "")

	var resp []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || len(resp[0]) != 7 {
		t.Fatalf("expected one object with 7 keys, got %v", resp)
	}
	for _, key := range []string{"observed_at", "event_kind", "activity_url", "source_url"} {
		if v, ok := resp[0][key]; !ok || v != nil {
			t.Fatalf("expected %s to be null, got %v (present=%v)", key, v, ok)
		}
	}
}

func TestRouter_LatestUpdatesEmptyIsArray(t *testing.T) {
	router := NewRouter(Deps{Records: &mockRecordReader{healthy: true}, Logger: discardLogger()})

	rec := serve(router, http.MethodGet, "/api/updates", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty array got %s", body)
	}
}

func TestRouter_LatestUpdatesUnhealthyStore(t *testing.T) {
	records := &mockRecordReader{healthy: false}
	router := NewRouter(Deps{Records: records, Logger: discardLogger()})

	rec := serve(router, http.MethodGet, "/api/updates", "")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 got %d", rec.Code)
	}
	if records.latestCalled {
		t.Fatal("expected LatestPerSource not to be called when store is unhealthy")
	}
}

func TestRouter_LatestUpdatesQueryError(t *testing.T) {
	records := &mockRecordReader{healthy: true, latestErr: errors.New("query failed")}
	router := NewRouter(Deps{Records: records, Logger: discardLogger()})

	rec := serve(router, http.MethodGet, "/api/updates", "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
}

func TestRouter_History(t *testing.T) {
	records := &mockRecordReader{
		healthy: true,
		history: []domain.StoredRecord{
			{ID: 2, Result: domain.Result{SourceID: domain.SourceINat, IsError: true, Description: "upstream status 500"}},
			{ID: 1, Result: domain.Result{SourceID: domain.SourceINat, ObservedAt: "2024-03-02 08:15:00"}},
		},
	}
	router := NewRouter(Deps{Records: records, Logger: discardLogger()})

	rec := serve(router, http.MethodGet, "/api/updates/inat/history?limit=5", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if records.historySource != domain.SourceINat || records.historyLimit != 5 {
		t.Fatalf("expected History(inat, 5) got History(%s, %d)", records.historySource, records.historyLimit)
	}

	var resp struct {
		SourceID string                `json:"source_id"`
		Records  []domain.StoredRecord `json:"records"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SourceID != domain.SourceINat || len(resp.Records) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !resp.Records[0].IsError {
		t.Fatal("expected history to include error rows")
	}
}

func TestRouter_HistoryValidation(t *testing.T) {
	router := NewRouter(Deps{Records: &mockRecordReader{healthy: true}, Logger: discardLogger()})

	cases := []struct {
		name string
		path string
		want int
	}{
		{name: "unknown source", path: "/api/updates/myspace/history", want: http.StatusNotFound},
		{name: "non numeric limit", path: "/api/updates/github/history?limit=abc", want: http.StatusBadRequest},
		{name: "negative limit", path: "/api/updates/github/history?limit=-1", want: http.StatusBadRequest},
		{name: "default limit", path: "/api/updates/github/history", want: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(router, http.MethodGet, tc.path, "")
			if rec.Code != tc.want {
				t.Fatalf("expected status %d got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRouter_Sources(t *testing.T) {
	lister := &mockSourceLister{statuses: []source.Status{
		{ID: domain.SourceGitHub, Name: "GitHub", Configured: true},
		{ID: domain.SourceTelegram, Name: "Telegram", Configured: false, Reason: "not configured"},
	}}
	router := NewRouter(Deps{Records: &mockRecordReader{healthy: true}, Sources: lister, Logger: discardLogger()})

	rec := serve(router, http.MethodGet, "/api/sources", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp struct {
		Sources []source.Status `json:"sources"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Sources) != 2 || resp.Sources[1].Configured {
		t.Fatalf("unexpected sources %+v", resp.Sources)
	}
}

func TestRouter_Readyz(t *testing.T) {
	healthy := NewRouter(Deps{Records: &mockRecordReader{healthy: true}, Logger: discardLogger()})
	if rec := serve(healthy, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	unhealthy := NewRouter(Deps{Records: &mockRecordReader{}, Logger: discardLogger()})
	if rec := serve(unhealthy, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 got %d", rec.Code)
	}
}

func TestRouter_Version(t *testing.T) {
	router := NewRouter(Deps{
		Records: &mockRecordReader{healthy: true},
		Logger:  discardLogger(),
		Version: "1.2.3",
	})

	rec := serve(router, http.MethodGet, "/version", "")

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["version"] != "1.2.3" || resp["commit"] != "none" || resp["build_date"] != "unknown" {
		t.Fatalf("unexpected version payload %v", resp)
	}
}

func TestRouter_ErrorReport(t *testing.T) {
	router := NewRouter(Deps{Records: &mockRecordReader{healthy: true}, Logger: discardLogger()})

	rec := serve(router, http.MethodPost, "/api/errors", `{"message":"TypeError: x is undefined","stack":"at main.js:1"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "accepted" {
		t.Fatalf("expected accepted status got %v", resp)
	}
}

func TestRouter_ErrorReportRejectsBadBodies(t *testing.T) {
	router := NewRouter(Deps{Records: &mockRecordReader{healthy: true}, Logger: discardLogger()})

	for _, body := range []string{
		"",
		"not json",
		`{"message":"   "}`,
		`{"message":"x","extra":true}`,
		`{"message":"x"}{"message":"y"}`,
	} {
		rec := serve(router, http.MethodPost, "/api/errors", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected status 400 got %d", body, rec.Code)
		}
	}
}

func TestRouter_ErrorReportRateLimited(t *testing.T) {
	router := NewRouter(Deps{
		Records:            &mockRecordReader{healthy: true},
		Logger:             discardLogger(),
		ErrorReportsPerMin: 2,
	})

	for i := 0; i < 2; i++ {
		rec := serve(router, http.MethodPost, "/api/errors", `{"message":"boom"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected status 202 got %d", i+1, rec.Code)
		}
	}

	rec := serve(router, http.MethodPost, "/api/errors", `{"message":"boom"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 got %d", rec.Code)
	}
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockRecordReader struct {
	healthy       bool
	latest        []domain.LatestRecord
	latestErr     error
	latestCalled  bool
	history       []domain.StoredRecord
	historyErr    error
	historySource string
	historyLimit  int
}

func (m *mockRecordReader) HealthCheck(ctx context.Context) bool {
	return m.healthy
}

func (m *mockRecordReader) LatestPerSource(ctx context.Context) ([]domain.LatestRecord, error) {
	m.latestCalled = true
	return m.latest, m.latestErr
}

func (m *mockRecordReader) History(ctx context.Context, sourceID string, limit int) ([]domain.StoredRecord, error) {
	m.historySource = sourceID
	m.historyLimit = limit
	return m.history, m.historyErr
}

type mockSourceLister struct {
	statuses []source.Status
}

func (m *mockSourceLister) Statuses() []source.Status {
	return m.statuses
}
