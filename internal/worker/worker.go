// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/lastseen/internal/domain"
	"github.com/adiadia/lastseen/internal/metrics"
	"github.com/adiadia/lastseen/internal/source"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store is the part of the record store a cycle writes to.
type Store interface {
	HealthCheck(ctx context.Context) bool
	Upsert(ctx context.Context, r domain.Result) error
}

// Sources yields the adapters of one cycle, in a stable order.
type Sources interface {
	Build() []source.Adapter
}

type Deps struct {
	Store   Store
	Sources Sources
	Logger  *slog.Logger
	// Concurrency bounds how many adapters run at once inside a cycle.
	Concurrency int
	// WriteTimeout bounds a single Upsert and the health check.
	WriteTimeout time.Duration
}

// Worker runs fetch cycles: every configured adapter is executed once and its
// result handed to the store.
type Worker struct {
	store        Store
	sources      Sources
	logger       *slog.Logger
	concurrency  int
	writeTimeout time.Duration
}

func New(deps Deps) *Worker {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	writeTimeout := deps.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return &Worker{
		store:        deps.Store,
		sources:      deps.Sources,
		logger:       l,
		concurrency:  concurrency,
		writeTimeout: writeTimeout,
	}
}

// CycleReport summarizes one RunCycle call.
type CycleReport struct {
	CycleID uuid.UUID
	Skipped bool
	// Results holds one entry per adapter that ran, in registry order.
	Results       []domain.Result
	Written       int
	WriteFailures int
	Duration      time.Duration
}

// RunCycle executes every adapter once and stores each result.
//
// The cycle is skipped when the store is unhealthy; that is the only case in
// which no adapter runs, and the returned error wraps domain.ErrStorageUnavailable.
// A failing adapter or a failing write never stops the remaining adapters.
// Cancelling ctx stops new adapters from starting; adapters already running
// finish and their results are still written.
func (w *Worker) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{CycleID: uuid.New()}
	logger := w.logger.With("cycle_id", report.CycleID)
	started := time.Now()

	if !w.healthy(ctx) {
		report.Skipped = true
		report.Duration = time.Since(started)
		metrics.IncCycle(metrics.CycleSkipped)
		logger.Warn("cycle skipped: store unhealthy")
		return report, fmt.Errorf("cycle %s: %w", report.CycleID, domain.ErrStorageUnavailable)
	}

	adapters := w.sources.Build()
	logger.Info("cycle started", "sources", len(adapters))

	type slot struct {
		ran     bool
		result  domain.Result
		written bool
	}
	slots := make([]slot, len(adapters))

	var g errgroup.Group
	g.SetLimit(w.concurrency)

	for i, a := range adapters {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// a slot may free up only after shutdown began
			if ctx.Err() != nil {
				return nil
			}
			res, written := w.process(ctx, logger, a)
			slots[i] = slot{ran: true, result: res, written: written}
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range slots {
		if !s.ran {
			continue
		}
		report.Results = append(report.Results, s.result)
		if s.written {
			report.Written++
		} else {
			report.WriteFailures++
		}
	}
	report.Duration = time.Since(started)

	outcome := metrics.CycleCompleted
	if skipped := len(adapters) - len(report.Results); skipped > 0 {
		outcome = metrics.CycleInterrupted
		logger.Warn("cycle interrupted", "not_started", skipped)
	}
	metrics.IncCycle(outcome)
	metrics.ObserveCycleDuration(report.Duration)

	logger.Info("cycle finished",
		"outcome", outcome,
		"results", len(report.Results),
		"written", report.Written,
		"write_failures", report.WriteFailures,
		"duration_ms", report.Duration.Milliseconds(),
	)

	return report, nil
}

// process runs one adapter and writes its result. In-flight work is detached
// from ctx so a shutdown does not cut a fetch or a write in half.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, a source.Adapter) (domain.Result, bool) {
	work := context.WithoutCancel(ctx)

	out := source.Attempt(work, a, logger)
	metrics.IncAdapterResult(a.ID(), out.Kind)
	metrics.ObserveAdapterDuration(a.ID(), out.Duration)

	if err := w.write(work, out.Result); err != nil {
		metrics.IncStoreWrite(metrics.WriteError)
		logger.Error("store write failed",
			"source_id", a.ID(),
			"kind", domain.ErrorKind(err),
			"error", err,
		)
		return out.Result, false
	}

	metrics.IncStoreWrite(metrics.WriteOK)
	logger.Info("result stored",
		"source_id", a.ID(),
		"kind", out.Kind,
		"is_error", out.Result.IsError,
		"observed_at", out.Result.ObservedAt,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out.Result, true
}

func (w *Worker) write(ctx context.Context, r domain.Result) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrStorageWrite, p)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, w.writeTimeout)
	defer cancel()

	return w.store.Upsert(ctx, r)
}

func (w *Worker) healthy(ctx context.Context) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("store health check panicked", "panic", p)
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, w.writeTimeout)
	defer cancel()

	return w.store.HealthCheck(ctx)
}
