// Smart Eligibility - rule and ML scoring of citizen benefit eligibility.
// Copyright (c) 2025 khannas43
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/khannas43/smart-eligibility/internal/api"
	"github.com/khannas43/smart-eligibility/internal/config"
	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/khannas43/smart-eligibility/internal/scheduler"
	"github.com/khannas43/smart-eligibility/internal/worker"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "eligibility",
		Short:         "Citizen benefit eligibility scoring and detection engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML config file (or CONFIG_FILE)")

	rootCmd.AddCommand(
		serveCmd(),
		evaluateCmd(),
		batchCmd(),
		detectCmd(),
		worklistCmd(),
		initDecisionConfigCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, then the config file and ELIG_* overrides, and
// installs the process logger.
func loadConfig() (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := configFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(newLogger(cfg.Logging))
	return cfg, nil
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func serveCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event worker and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			slog.Info("starting smart-eligibility",
				"version", Version,
				"commit", Commit,
				"build_date", BuildDate,
			)
			slog.Info("configuration loaded",
				"repository", cfg.Repository.Driver,
				"cache", cfg.Cache.Type,
				"eventbus", cfg.EventBus.Type,
				"tracing", cfg.Tracing.Enabled,
			)

			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.close()

			w := worker.NewWorker(a.bus, a.evaluator, a.detector, a.cache, a.metrics)
			if err := w.Start(worker.Config{Schemes: cfg.Scheduler.Schemes, DebounceWindow: debounce}); err != nil {
				return fmt.Errorf("start worker: %w", err)
			}

			sched, err := scheduler.New(cfg.Scheduler, a.batches, a.detector, a.metrics)
			if err != nil {
				_ = w.Stop()
				return err
			}
			sched.Start()

			srv := api.NewServer(cfg.Server, api.Deps{
				Repo:        a.repo,
				Cache:       a.cache,
				Bus:         a.bus,
				Evaluator:   a.evaluator,
				Batches:     a.batches,
				Prioritizer: a.prioritizer,
				Detector:    a.detector,
				Bander:      a.bander,
				Rules:       a.rules,
				Models:      a.models,
				Version:     Version,
			}, a.metrics, nil)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			slog.Info("smart-eligibility is ready",
				"host", cfg.Server.Host,
				"port", cfg.Server.Port,
				"scheduled_jobs", sched.Entries(),
				"worker_topics", w.GetStats().Topics,
			)

			var serveErr error
			select {
			case <-ctx.Done():
				slog.Info("shutting down...")
			case serveErr = <-errCh:
				slog.Error("server failed", "error", serveErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := w.Stop(); err != nil {
				slog.Error("failed to stop worker", "error", err)
			}
			if err := sched.Stop(shutdownCtx); err != nil {
				slog.Error("scheduled jobs still running at shutdown", "error", err)
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("server forced to shutdown", "error", err)
			}

			slog.Info("smart-eligibility shutdown complete")
			return serveErr
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 30*time.Second, "Window in which repeated family updates are evaluated once")
	return cmd
}
