package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chipdeck/internal/application"
	"chipdeck/internal/command"
	"chipdeck/internal/config"
	"chipdeck/internal/dashboard"
	"chipdeck/internal/logging"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		LoadConfig:   config.LoadConfig,
		RunServe:     runServe,
		RunRender:    runRender,
		RunCheck:     runCheck,
		RunMigrateUp: runMigrateUp,
	})
	if err := app.RunContext(rootCtx, os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "chipdeck: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.NewLogger(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: os.Stderr})
}

func startOptions(cfg config.Config, logger *slog.Logger) application.StartOptions {
	return application.StartOptions{
		ConfigDir:    cfg.ConfigDir,
		Dashboard:    cfg.Dashboard,
		DBPath:       cfg.DBPath,
		HassURL:      cfg.HassURL,
		HassToken:    cfg.HassToken,
		LocalHost:    cfg.LocalHost,
		LocalPort:    cfg.LocalPort,
		User:         cfg.User,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger,
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)
	app, err := application.StartApplication(ctx, startOptions(cfg, logger))
	if err != nil {
		return err
	}
	logger.Info("chipdeck started",
		"local_api", app.LocalAPIBaseURL(),
		"dashboard", app.DashboardPath(),
		"history_db", app.DBPath(),
	)
	return app.Run(ctx)
}

func runRender(ctx context.Context, cfg config.Config, wait time.Duration) ([]dashboard.Rendered, error) {
	opts := startOptions(cfg, newLogger(cfg))
	opts.DisableHistory = true
	return application.RenderOnce(ctx, opts, wait)
}

func runCheck(cfg config.Config) (string, []string, error) {
	return application.Check(startOptions(cfg, newLogger(cfg)))
}

func runMigrateUp(_ context.Context, cfg config.Config) error {
	logger := newLogger(cfg)
	path, err := application.MigrateUp(startOptions(cfg, logger))
	if err != nil {
		return err
	}
	logger.Info("render history migrated", "db_path", path)
	return nil
}
