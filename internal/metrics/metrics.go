// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/adiadia/lastseen/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Cycle outcomes.
const (
	CycleCompleted   = "completed"
	CycleSkipped     = "skipped"
	CycleInterrupted = "interrupted"
)

// Store write outcomes.
const (
	WriteOK    = "ok"
	WriteError = "error"
)

var (
	initOnce sync.Once

	cyclesTotalCounter      *prometheus.CounterVec
	cycleDurationMetric     prometheus.Histogram
	adapterResultsCounter   *prometheus.CounterVec
	adapterDurationMetric   *prometheus.HistogramVec
	storeWritesCounter      *prometheus.CounterVec
	schedulerMisfireCounter prometheus.Counter
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		cyclesTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastseen_cycles_total",
				Help: "Total number of fetch cycles by outcome.",
			},
			[]string{"outcome"},
		)

		cycleDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lastseen_cycle_duration_seconds",
				Help:    "Duration of complete fetch cycles in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		adapterResultsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastseen_adapter_results_total",
				Help: "Total number of adapter results by source and error kind.",
			},
			[]string{"source_id", "kind"},
		)

		adapterDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lastseen_adapter_fetch_duration_seconds",
				Help:    "Duration of single adapter executions in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source_id"},
		)

		storeWritesCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lastseen_store_writes_total",
				Help: "Total number of result writes by outcome.",
			},
			[]string{"outcome"},
		)

		schedulerMisfireCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lastseen_scheduler_misfires_total",
				Help: "Total number of ticks that fired later than the misfire grace time.",
			},
		)

		prometheus.MustRegister(
			cyclesTotalCounter,
			cycleDurationMetric,
			adapterResultsCounter,
			adapterDurationMetric,
			storeWritesCounter,
			schedulerMisfireCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, outcome := range []string{CycleCompleted, CycleSkipped, CycleInterrupted} {
			cyclesTotalCounter.WithLabelValues(outcome)
		}
		for _, outcome := range []string{WriteOK, WriteError} {
			storeWritesCounter.WithLabelValues(outcome)
		}
		for _, id := range domain.KnownSources {
			adapterResultsCounter.WithLabelValues(id, domain.KindOK)
		}
	})
}

func IncCycle(outcome string) {
	Init()
	cyclesTotalCounter.WithLabelValues(outcome).Inc()
}

func ObserveCycleDuration(d time.Duration) {
	Init()
	cycleDurationMetric.Observe(d.Seconds())
}

func IncAdapterResult(sourceID, kind string) {
	Init()
	adapterResultsCounter.WithLabelValues(sourceID, kind).Inc()
}

func ObserveAdapterDuration(sourceID string, d time.Duration) {
	Init()
	adapterDurationMetric.WithLabelValues(sourceID).Observe(d.Seconds())
}

func IncStoreWrite(outcome string) {
	Init()
	storeWritesCounter.WithLabelValues(outcome).Inc()
}

func IncSchedulerMisfire() {
	Init()
	schedulerMisfireCounter.Inc()
}
