// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/adiadia/lastseen/internal/domain"
	"github.com/adiadia/lastseen/internal/metrics"
	"github.com/adiadia/lastseen/internal/transport/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxErrorReportBytes = 64 << 10
	maxLoggedStackBytes = 4 << 10
)

type errorReport struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

type Deps struct {
	Records RecordReader
	// Sources is optional; /api/sources is only mounted when set.
	Sources SourceLister
	Logger  *slog.Logger
	// ErrorReportsPerMin limits POST /api/errors per client address.
	ErrorReportsPerMin int
	Version            string
	Commit             string
	BuildDate          string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")
	reportsPerMin := deps.ErrorReportsPerMin
	if reportsPerMin <= 0 {
		reportsPerMin = 30
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))
	r.Use(chimiddleware.Recoverer)

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Records == nil || !deps.Records.HealthCheck(r.Context()) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	// ---------------- METRICS ----------------

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	r.Route("/api", func(api chi.Router) {

		// ---------------- LATEST PER SOURCE ----------------

		api.Get("/updates", func(w http.ResponseWriter, r *http.Request) {
			if deps.Records == nil || !deps.Records.HealthCheck(r.Context()) {
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}

			latest, err := deps.Records.LatestPerSource(r.Context())
			if err != nil {
				logger.Error("latest per source failed", "error", err)
				http.Error(w, "failed to load updates", http.StatusInternalServerError)
				return
			}
			if latest == nil {
				latest = []domain.LatestRecord{}
			}

			writeJSON(w, http.StatusOK, latest)
		})

		// ---------------- HISTORY ----------------

		api.Get("/updates/{source_id}/history", func(w http.ResponseWriter, r *http.Request) {
			sourceID := chi.URLParam(r, "source_id")
			if !knownSource(sourceID) {
				http.Error(w, "unknown source", http.StatusNotFound)
				return
			}

			limit, err := parseLimit(r.URL.Query().Get("limit"))
			if err != nil {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}

			if deps.Records == nil || !deps.Records.HealthCheck(r.Context()) {
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}

			history, err := deps.Records.History(r.Context(), sourceID, limit)
			if err != nil {
				logger.Error("history failed", "source_id", sourceID, "error", err)
				http.Error(w, "failed to load history", http.StatusInternalServerError)
				return
			}
			if history == nil {
				history = []domain.StoredRecord{}
			}

			writeJSON(w, http.StatusOK, struct {
				SourceID string                `json:"source_id"`
				Records  []domain.StoredRecord `json:"records"`
			}{
				SourceID: sourceID,
				Records:  history,
			})
		})

		// ---------------- SOURCES ----------------

		if deps.Sources != nil {
			api.Get("/sources", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{
					"sources": deps.Sources.Statuses(),
				})
			})
		}

		// ---------------- CLIENT ERROR REPORTS ----------------

		api.With(middleware.ClientRateLimit(reportsPerMin, logger)).Post("/errors", func(w http.ResponseWriter, r *http.Request) {
			report, err := decodeErrorReport(w, r)
			if err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			reqID, _ := requestIDFromContext(r.Context())
			logger.Warn("client error reported",
				"request_id", reqID,
				"message", report.Message,
				"stack", truncate(report.Stack, maxLoggedStackBytes),
				"user_agent", r.UserAgent(),
			)

			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeErrorReport(w http.ResponseWriter, r *http.Request) (errorReport, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return errorReport{}, errors.New("empty body")
	}

	var report errorReport
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxErrorReportBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&report); err != nil {
		return errorReport{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errorReport{}, errors.New("request body must contain a single JSON object")
	}

	report.Message = strings.TrimSpace(report.Message)
	if report.Message == "" {
		return errorReport{}, errors.New("message is required")
	}
	return report, nil
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

func knownSource(id string) bool {
	for _, known := range domain.KnownSources {
		if known == id {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func valueOrDefault(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}
