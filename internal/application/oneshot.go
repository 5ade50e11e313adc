package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"chipdeck/internal/chip"
	"chipdeck/internal/dashboard"
	"chipdeck/internal/dashconfig"
	dbmodel "chipdeck/internal/db"
	"chipdeck/internal/hass"
	"chipdeck/internal/taskqueue"
)

const connectTimeout = 15 * time.Second

// RenderOnce connects to Home Assistant, mounts the dashboard, lets live bindings deliver for
// settle and returns what every widget shows at that point.
func RenderOnce(ctx context.Context, opts StartOptions, settle time.Duration) ([]dashboard.Rendered, error) {
	r, err := resolveSettings(opts)
	if err != nil {
		return nil, err
	}
	if err := r.requireToken(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	reg := chip.NewRegistry(chip.DefaultOptions())
	dash, err := loadDashboard(dashconfig.NewStore(r.dashboardPath), reg, logger)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	queue := taskqueue.New(logger)
	go func() { _ = queue.Run(runCtx) }()

	connected := make(chan struct{}, 1)
	var host *dashboard.Host
	session := hass.NewSession(hass.SessionOptions{
		URL:          r.hassURL,
		Token:        r.hassToken,
		Dialer:       opts.Dialer,
		Logger:       logger,
		PingInterval: r.ping,
		OnConnect: func(ctx context.Context, c *hass.Client) error {
			if err := syncStates(ctx, c, host, nil); err != nil {
				return err
			}
			select {
			case connected <- struct{}{}:
			default:
			}
			return nil
		},
	})
	host, err = dashboard.New(runCtx, dashboard.Options{
		Queue:      queue,
		Registry:   reg,
		Evaluator:  hass.NewTemplateEvaluator(session, logger),
		User:       r.user,
		PictureURL: pictureResolver(r.hassURL),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	sessionErr := make(chan error, 1)
	go func() { sessionErr <- session.Run(runCtx) }()

	if err := host.Apply(runCtx, dash); err != nil {
		return nil, err
	}
	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()
	select {
	case <-connected:
	case err := <-sessionErr:
		if err == nil {
			err = ctx.Err()
		}
		return nil, err
	case <-timer.C:
		return nil, errors.New("timed out connecting to home assistant")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return host.Snapshot(runCtx)
}

// Check loads and validates the dashboard file without connecting anywhere.
func Check(opts StartOptions) (path string, warnings []string, err error) {
	r, err := resolveSettings(opts)
	if err != nil {
		return "", nil, err
	}
	store := dashconfig.NewStore(r.dashboardPath)
	dash, err := store.Load()
	if err != nil {
		return store.Path(), nil, err
	}
	warnings, err = dashconfig.Validate(dash, chip.NewRegistry(chip.DefaultOptions()))
	return store.Path(), warnings, err
}

// MigrateUp opens the render history database, applying schema and data migrations.
func MigrateUp(opts StartOptions) (string, error) {
	r, err := resolveSettings(opts)
	if err != nil {
		return "", err
	}
	gdb, err := dbmodel.OpenSQLiteWithMigrations(r.dbPath)
	if err != nil {
		return r.dbPath, err
	}
	return r.dbPath, dbmodel.Close(gdb)
}
