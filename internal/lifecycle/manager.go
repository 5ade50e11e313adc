// Package lifecycle runs long-lived jobs together and tears them down in reverse order.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

type job struct {
	name string
	run  func(context.Context) error
}

type Manager struct {
	mu              sync.Mutex
	runJobs         []job
	shutdownJobs    []job
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Manager{logger: logger.With("module", "lifecycle"), shutdownTimeout: defaultShutdownTimeout}
}

// AddRun registers a job that runs until its context ends. A job returning early with an
// error stops every other job.
func (m *Manager) AddRun(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.runJobs = append(m.runJobs, job{name: name, run: fn})
	m.mu.Unlock()
}

// AddShutdown registers a cleanup. Cleanups run after all run jobs returned, last added first.
func (m *Manager) AddShutdown(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.shutdownJobs = append(m.shutdownJobs, job{name: name, run: fn})
	m.mu.Unlock()
}

func (m *Manager) StartAndWait(parent context.Context, sig ...os.Signal) error {
	ctx := parent
	if len(sig) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(parent, sig...)
		defer stop()
	}

	m.mu.Lock()
	runJobs := append([]job(nil), m.runJobs...)
	shutdownJobs := append([]job(nil), m.shutdownJobs...)
	m.mu.Unlock()

	g, runCtx := errgroup.WithContext(ctx)
	for _, j := range runJobs {
		g.Go(func() error {
			m.logger.Debug("job started", "job", j.name)
			err := j.run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("job failed", "job", j.name, "err", err)
				return fmt.Errorf("%s: %w", j.name, err)
			}
			m.logger.Debug("job stopped", "job", j.name)
			return nil
		})
	}
	runErr := g.Wait()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.shutdownTimeout)
	defer cancel()
	var shutdownErr error
	for i := len(shutdownJobs) - 1; i >= 0; i-- {
		j := shutdownJobs[i]
		if err := j.run(sctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("shutdown step failed", "job", j.name, "err", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("%s: %w", j.name, err))
		}
	}
	return errors.Join(runErr, shutdownErr)
}
