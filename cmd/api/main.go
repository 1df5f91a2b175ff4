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
	"github.com/adiadia/lastseen/internal/repository"
	"github.com/adiadia/lastseen/internal/source"
	httptransport "github.com/adiadia/lastseen/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
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
		logging.NewLogger("dev", "api").Error("load config failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Env, "api")

	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("store bootstrap failed", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	handler := httptransport.NewRouter(httptransport.Deps{
		Records:            store,
		Sources:            source.NewRegistry(source.RegistryDeps{Config: cfg, Logger: logger}),
		Logger:             logger,
		ErrorReportsPerMin: cfg.ErrorReportsPerMin,
		Version:            Version,
		Commit:             Commit,
		BuildDate:          BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"driver", store.Driver,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
