// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/logging"
	"github.com/adiadia/lastseen/internal/metrics"
	"github.com/adiadia/lastseen/internal/repository"
	"github.com/adiadia/lastseen/internal/source"
	"github.com/adiadia/lastseen/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("dev", "worker").Error("load config failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Env, "worker")
	metrics.Init()

	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("store bootstrap failed", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("store ready", "driver", store.Driver, "schema_version", store.SchemaVersion)

	registry := source.NewRegistry(source.RegistryDeps{Config: cfg, Logger: logger})
	for _, st := range registry.Statuses() {
		if !st.Configured {
			logger.Info("source not configured", "source_id", st.ID, "reason", st.Reason)
		}
	}

	w := worker.New(worker.Deps{
		Store:       store,
		Sources:     registry,
		Logger:      logger,
		Concurrency: cfg.FetchConcurrency,
	})

	scheduler := worker.NewScheduler(worker.SchedulerDeps{
		Cycle: func(ctx context.Context) error {
			_, err := w.RunCycle(ctx)
			return err
		},
		Interval:      cfg.FetchInterval,
		FirstRunDelay: cfg.FirstRunDelay,
		MisfireGrace:  cfg.MisfireGrace,
		Logger:        logger,
	})

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		r := chi.NewRouter()
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(scheduler.State()))
		})
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("worker metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	logger.Info("worker started",
		"interval", cfg.FetchInterval,
		"concurrency", cfg.FetchConcurrency,
	)

	if err := scheduler.Run(ctx); err != nil {
		logger.Error("scheduler failed", "error", err)
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	logger.Info("worker stopped", "runs", scheduler.Runs())
}
