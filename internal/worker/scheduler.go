// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adiadia/lastseen/internal/metrics"
)

type State string

const (
	StateIdle    State = "idle"
	StateWaiting State = "waiting"
	StateTicking State = "ticking"
	StateStopped State = "stopped"
)

var ErrSchedulerStarted = errors.New("scheduler already started")

type SchedulerDeps struct {
	// Cycle is the job run on every tick.
	Cycle         func(ctx context.Context) error
	Interval      time.Duration
	FirstRunDelay time.Duration
	// MisfireGrace is how late a tick may fire before it is reported. A late
	// tick still runs exactly once.
	MisfireGrace time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Scheduler runs a cycle on a fixed interval, never more than one at a time.
// Ticks missed while a cycle overruns are collapsed into a single immediate
// run after it completes.
type Scheduler struct {
	cycle      func(ctx context.Context) error
	interval   time.Duration
	firstDelay time.Duration
	grace      time.Duration
	logger     *slog.Logger
	now        func() time.Time

	started atomic.Bool
	running atomic.Bool
	runs    atomic.Int64

	mu    sync.Mutex
	state State
}

func NewScheduler(deps SchedulerDeps) *Scheduler {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	firstDelay := deps.FirstRunDelay
	if firstDelay < 0 {
		firstDelay = 0
	}

	grace := deps.MisfireGrace
	if grace <= 0 {
		grace = interval / 2
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		cycle:      deps.Cycle,
		interval:   interval,
		firstDelay: firstDelay,
		grace:      grace,
		logger:     l.With("component", "scheduler"),
		now:        now,
		state:      StateIdle,
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Runs reports how many cycles have completed.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()

	if prev != st {
		s.logger.Debug("scheduler state changed", "from", prev, "to", st)
	}
}

// Run blocks until ctx is cancelled. A cycle in progress at cancellation is
// allowed to return before Run does.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSchedulerStarted
	}
	defer s.setState(StateStopped)

	s.logger.Info("scheduler started",
		"interval", s.interval,
		"first_run_delay", s.firstDelay,
	)

	next := s.now().Add(s.firstDelay)
	s.setState(StateWaiting)

	timer := time.NewTimer(s.firstDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "runs", s.runs.Load())
			return nil
		case <-timer.C:
		}

		if late := s.now().Sub(next); late > s.grace {
			metrics.IncSchedulerMisfire()
			s.logger.Warn("tick misfired", "late_by", late)
		}

		s.setState(StateTicking)
		s.RunOnce(ctx)

		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped", "runs", s.runs.Load())
			return nil
		}

		now := s.now()
		next = next.Add(s.interval)
		if !next.After(now) {
			s.logger.Warn("cycle overran interval; running next tick now",
				"interval", s.interval,
				"behind_by", now.Sub(next),
			)
			next = now
		}

		s.setState(StateWaiting)
		timer.Reset(next.Sub(now))
	}
}

// RunOnce runs the cycle unless one is already in progress, in which case the
// call is coalesced into the running one and RunOnce returns false.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("tick coalesced: cycle already running")
		return false
	}
	defer s.running.Store(false)

	if err := s.safeCycle(ctx); err != nil {
		s.logger.Error("cycle failed", "error", err)
	}
	s.runs.Add(1)
	return true
}

func (s *Scheduler) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cycle panic: %v", p)
		}
	}()
	if s.cycle == nil {
		return errors.New("no cycle configured")
	}
	return s.cycle(ctx)
}
