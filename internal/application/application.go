// Package application wires the Home Assistant session, the dashboard host, render history
// and the local API into one process.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"chipdeck/internal/chip"
	"chipdeck/internal/dashboard"
	"chipdeck/internal/dashconfig"
	dbmodel "chipdeck/internal/db"
	"chipdeck/internal/hass"
	"chipdeck/internal/historydb"
	"chipdeck/internal/lifecycle"
	"chipdeck/internal/localapi"
	"chipdeck/internal/metric"
	"chipdeck/internal/taskqueue"
)

const httpShutdownTimeout = 3 * time.Second

type Application struct {
	localAPIBaseURL string
	dashboardPath   string
	dbPath          string

	logger   *slog.Logger
	registry *chip.Registry
	queue    *taskqueue.Queue
	host     *dashboard.Host
	session  *hass.Session
	store    *dashconfig.Store
	gdb      *gorm.DB
	mgr      *lifecycle.Manager
	http     *http.Server
}

// StartApplication builds every component. Nothing runs until Run.
func StartApplication(ctx context.Context, opts StartOptions) (*Application, error) {
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

	app := &Application{
		dashboardPath: r.dashboardPath,
		logger:        logger,
		registry:      chip.NewRegistry(chip.DefaultOptions()),
		queue:         taskqueue.New(logger.With("module", "taskqueue")),
		store:         dashconfig.NewStore(r.dashboardPath),
		mgr:           lifecycle.NewManager(logger),
	}
	dash, err := loadDashboard(app.store, app.registry, logger)
	if err != nil {
		return nil, err
	}

	metrics, err := metric.New()
	if err != nil {
		return nil, err
	}
	var local *localapi.Server
	app.session = hass.NewSession(hass.SessionOptions{
		URL:          r.hassURL,
		Token:        r.hassToken,
		Dialer:       opts.Dialer,
		Logger:       logger.With("module", "hass"),
		PingInterval: r.ping,
		OnConnect: func(ctx context.Context, c *hass.Client) error {
			if err := syncStates(ctx, c, app.host, metrics.StateEvent); err != nil {
				return err
			}
			metrics.SetConnected(true)
			local.PublishConnection(true)
			logger.Info("home assistant connected", "version", c.Version())
			return nil
		},
		OnDisconnect: func(err error) {
			logger.Warn("home assistant disconnected", "err", err)
			metrics.SetConnected(false)
			local.PublishConnection(false)
		},
	})

	app.host, err = dashboard.New(ctx, dashboard.Options{
		Queue:      app.queue,
		Registry:   app.registry,
		Evaluator:  hass.NewTemplateEvaluator(app.session, logger),
		Observer:   metrics,
		User:       r.user,
		PictureURL: pictureResolver(r.hassURL),
		Logger:     logger,
		Sinks:      []dashboard.Sink{metrics},
	})
	if err != nil {
		return nil, err
	}

	var history localapi.History
	if r.history {
		app.gdb, err = dbmodel.OpenSQLiteWithMigrations(r.dbPath)
		if err != nil {
			return nil, fmt.Errorf("open render history: %w", err)
		}
		app.dbPath = r.dbPath
		store, err := historydb.NewStore(app.gdb)
		if err != nil {
			_ = dbmodel.Close(app.gdb)
			return nil, err
		}
		recorder := historydb.NewRecorder(store, r.historyKeep, logger)
		app.host.AddSink(recorder)
		app.mgr.AddRun("history-recorder", recorder.Run)
		app.mgr.AddShutdown("close-db", func(context.Context) error { return dbmodel.Close(app.gdb) })
		history = store
	}

	local = localapi.NewServer(localapi.Deps{
		Host:      app.host,
		Registry:  app.registry,
		Dashboard: app.store,
		Reload:    app.Reload,
		History:   history,
		Metrics:   metrics.Handler(),
		Connected: func() bool { return app.session.Client() != nil },
		Logger:    logger,
	})
	app.host.AddSink(local)

	addr := net.JoinHostPort(r.host, strconv.Itoa(r.port))
	app.localAPIBaseURL = "http://" + addr
	app.http = &http.Server{Addr: addr, Handler: local.Handler(), ReadHeaderTimeout: 10 * time.Second}

	app.mgr.AddRun("task-queue", app.queue.Run)
	app.mgr.AddRun("mount-dashboard", func(ctx context.Context) error {
		return app.host.Apply(ctx, dash)
	})
	app.mgr.AddRun("hass-session", app.session.Run)
	app.mgr.AddRun("local-events", local.Run)
	app.mgr.AddRun("http-server", func(runCtx context.Context) error {
		go func() {
			<-runCtx.Done()
			_ = app.shutdownHTTP()
		}()
		if err := app.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	app.mgr.AddShutdown("http-server-shutdown", func(context.Context) error { return app.shutdownHTTP() })
	return app, nil
}

func loadDashboard(store *dashconfig.Store, reg *chip.Registry, logger *slog.Logger) (dashconfig.Dashboard, error) {
	dash, err := store.Load()
	if err != nil {
		return dashconfig.Dashboard{}, fmt.Errorf("load dashboard %s: %w", store.Path(), err)
	}
	warnings, err := dashconfig.Validate(dash, reg)
	if err != nil {
		return dashconfig.Dashboard{}, fmt.Errorf("dashboard %s: %w", store.Path(), err)
	}
	for _, w := range warnings {
		logger.Warn("dashboard warning", "path", store.Path(), "warning", w)
	}
	return dash, nil
}

// syncStates loads the full state snapshot, follows state_changed events and re-opens every
// live binding on the new connection.
func syncStates(ctx context.Context, c *hass.Client, host *dashboard.Host, onEvent func()) error {
	states, err := c.FetchStates(ctx)
	if err != nil {
		return fmt.Errorf("fetch states: %w", err)
	}
	host.ReplaceStates(states)
	if _, err := c.SubscribeStateChanged(ctx, func(ch hass.StateChange) {
		if onEvent != nil {
			onEvent()
		}
		host.ApplyStateChange(ch)
	}); err != nil {
		return fmt.Errorf("subscribe state_changed: %w", err)
	}
	return host.Remount(ctx)
}

// Reload re-reads the dashboard file and applies it to the running host.
func (a *Application) Reload(ctx context.Context) ([]string, error) {
	dash, err := a.store.Load()
	if err != nil {
		return nil, err
	}
	warnings, err := dashconfig.Validate(dash, a.registry)
	if err != nil {
		return warnings, err
	}
	if err := a.host.Apply(ctx, dash); err != nil {
		return warnings, err
	}
	a.logger.Info("dashboard reloaded", "path", a.store.Path(), "widgets", len(dash.Widgets()))
	return warnings, nil
}

func (a *Application) shutdownHTTP() error {
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := a.http.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *Application) LocalAPIBaseURL() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.localAPIBaseURL)
}

func (a *Application) DashboardPath() string {
	if a == nil {
		return ""
	}
	return a.dashboardPath
}

// DBPath is empty when render history is disabled.
func (a *Application) DBPath() string {
	if a == nil {
		return ""
	}
	return a.dbPath
}

func (a *Application) Host() *dashboard.Host {
	return a.host
}

// Run blocks until ctx ends or a component fails.
func (a *Application) Run(ctx context.Context) error {
	if a == nil || a.mgr == nil {
		return nil
	}
	return a.mgr.StartAndWait(ctx)
}

func (a *Application) Shutdown(context.Context) error {
	if a == nil || a.http == nil {
		return nil
	}
	return a.shutdownHTTP()
}
