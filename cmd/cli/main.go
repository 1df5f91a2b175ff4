// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/logging"
	"github.com/adiadia/lastseen/internal/repository"
	"github.com/adiadia/lastseen/internal/source"
	"github.com/adiadia/lastseen/internal/worker"
)

func main() {
	// ENV is read directly: validate runs without loading config.
	logger := logging.NewLoggerTo(os.Stderr, os.Getenv("ENV"), "cli")

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := os.Args[1]
	if cmd == "validate" {
		if err := runValidate(ctx, logger); err != nil {
			logger.Error("validation failed", "error", err)
			os.Exit(1)
		}
		logger.Info("validation passed")
		return
	}

	run, ok := commands[cmd]
	if !ok {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

type command func(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error

var commands = map[string]command{
	"schema":  runSchema,
	"once":    runOnce,
	"latest":  runLatest,
	"sources": runSources,
}

// runSchema ensures the schema exists and reports the stored version.
func runSchema(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return writeJSON(out, map[string]any{
		"driver":         store.Driver,
		"schema_version": store.SchemaVersion,
	})
}

// runOnce runs a single fetch cycle and prints what each source returned.
func runOnce(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	w := worker.New(worker.Deps{
		Store:       store,
		Sources:     source.NewRegistry(source.RegistryDeps{Config: cfg, Logger: logger}),
		Logger:      logger,
		Concurrency: cfg.FetchConcurrency,
	})

	report, err := w.RunCycle(ctx)
	if err != nil {
		return err
	}

	return writeJSON(out, map[string]any{
		"cycle_id":       report.CycleID,
		"written":        report.Written,
		"write_failures": report.WriteFailures,
		"duration_ms":    report.Duration.Milliseconds(),
		"results":        report.Results,
	})
}

func runLatest(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	latest, err := store.LatestPerSource(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		return writeJSON(out, []any{})
	}
	return writeJSON(out, latest)
}

// runSources needs no store: it only reports which adapters would run.
func runSources(_ context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	registry := source.NewRegistry(source.RegistryDeps{Config: cfg, Logger: logger})
	return writeJSON(out, registry.Statuses())
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: lastseen-cli <schema|once|latest|sources|validate>")
}
