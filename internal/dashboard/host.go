// Package dashboard mounts the configured widgets on one task queue, keeps the entity-state
// store they read from and fans every render out to the registered sinks.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"chipdeck/internal/binding"
	"chipdeck/internal/chip"
	"chipdeck/internal/dashconfig"
	"chipdeck/internal/hass"
	"chipdeck/internal/taskqueue"
)

var ErrNotFound = errors.New("widget not found")

// Rendered is one published render of one widget.
type Rendered struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	Visual chip.Visual `json:"visual"`
	At     time.Time   `json:"at"`
}

// Sink receives renders whose visual changed. Publish runs on the task queue and must not block.
type Sink interface {
	Publish(r Rendered)
}

type SinkFunc func(r Rendered)

func (f SinkFunc) Publish(r Rendered) { f(r) }

type Options struct {
	Queue      *taskqueue.Queue
	Registry   *chip.Registry
	Evaluator  binding.Evaluator
	Observer   binding.Observer
	User       string
	PictureURL func(string) string
	Logger     *slog.Logger
	Sinks      []Sink
	Now        func() time.Time
}

type mount struct {
	id     string
	widget chip.Widget
}

// Host owns the mounted widgets. Everything except the exported methods runs on the queue.
type Host struct {
	ctx    context.Context
	queue  *taskqueue.Queue
	reg    *chip.Registry
	opts   Options
	logger *slog.Logger

	states  hass.States
	mounts  map[string]*mount
	order   []string
	dirty   map[string]bool
	flush   bool
	last    map[string]Rendered
	renders int
}

func New(ctx context.Context, opts Options) (*Host, error) {
	if opts.Queue == nil {
		return nil, errors.New("dashboard host requires a task queue")
	}
	if opts.Registry == nil {
		opts.Registry = chip.NewRegistry(chip.DefaultOptions())
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Host{
		ctx:    ctx,
		queue:  opts.Queue,
		reg:    opts.Registry,
		opts:   opts,
		logger: opts.Logger.With("module", "dashboard"),
		states: hass.States{},
		mounts: map[string]*mount{},
		dirty:  map[string]bool{},
		last:   map[string]Rendered{},
	}, nil
}

// AddSink registers s. It must be called before the queue starts running.
func (h *Host) AddSink(s Sink) {
	if s != nil {
		h.opts.Sinks = append(h.opts.Sinks, s)
	}
}

// Apply mounts dash: widgets whose id is new are created and attached, known ids receive
// the new configuration, ids no longer present are detached.
func (h *Host) Apply(ctx context.Context, dash dashconfig.Dashboard) error {
	var err error
	if callErr := h.queue.Call(ctx, func() { err = h.apply(dash) }); callErr != nil {
		return callErr
	}
	return err
}

func (h *Host) apply(dash dashconfig.Dashboard) error {
	cfgs := dash.Widgets()
	keep := make(map[string]bool, len(cfgs))
	order := make([]string, 0, len(cfgs))
	var errs []error
	for _, cfg := range cfgs {
		if cfg.ID == "" {
			errs = append(errs, fmt.Errorf("widget of type %q has no id", cfg.Type))
			continue
		}
		if keep[cfg.ID] {
			errs = append(errs, fmt.Errorf("%w: %s", dashconfig.ErrDuplicateID, cfg.ID))
			continue
		}
		if err := h.upsert(cfg); err != nil {
			errs = append(errs, fmt.Errorf("widget %s: %w", cfg.ID, err))
			continue
		}
		keep[cfg.ID] = true
		order = append(order, cfg.ID)
	}
	for id := range h.mounts {
		if !keep[id] {
			h.unmount(id)
		}
	}
	h.order = order
	return errors.Join(errs...)
}

func (h *Host) upsert(cfg chip.Config) error {
	if m, ok := h.mounts[cfg.ID]; ok {
		if m.widget.Type() == chip.NormalizeType(cfg.Type) {
			return m.widget.SetConfig(cfg)
		}
		h.unmount(cfg.ID)
	}
	w, err := h.reg.New(h.env(cfg.ID), cfg)
	if err != nil {
		return err
	}
	h.mounts[cfg.ID] = &mount{id: cfg.ID, widget: w}
	w.Attach()
	h.requestRender(cfg.ID)
	return nil
}

func (h *Host) unmount(id string) {
	m, ok := h.mounts[id]
	if !ok {
		return
	}
	m.widget.Detach()
	delete(h.mounts, id)
	delete(h.dirty, id)
	delete(h.last, id)
}

func (h *Host) env(id string) chip.Env {
	logger := h.logger.With("widget", id)
	return chip.Env{
		Ctx:           h.ctx,
		Scheduler:     h.queue,
		Evaluator:     h.opts.Evaluator,
		States:        h.states,
		User:          h.opts.User,
		RequestRender: func() { h.requestRender(id) },
		Reporter: binding.ReporterFunc(func(k binding.Key, err error) {
			logger.Warn("binding teardown failed", "key", k.String(), "err", err)
		}),
		Observer:   h.opts.Observer,
		Logger:     logger,
		PictureURL: h.opts.PictureURL,
	}
}

// requestRender marks id dirty; all dirty widgets render together on a later queue turn.
func (h *Host) requestRender(id string) {
	h.dirty[id] = true
	if h.flush {
		return
	}
	h.flush = true
	h.queue.Post(h.flushRenders)
}

func (h *Host) flushRenders() {
	h.flush = false
	if len(h.dirty) == 0 {
		return
	}
	now := h.opts.Now()
	var rendered []*mount
	for _, id := range h.order {
		if !h.dirty[id] {
			continue
		}
		delete(h.dirty, id)
		m, ok := h.mounts[id]
		if !ok {
			continue
		}
		r := Rendered{ID: id, Type: m.widget.Type(), Visual: m.widget.Render(), At: now}
		h.renders++
		rendered = append(rendered, m)
		if prev, ok := h.last[id]; ok && reflect.DeepEqual(prev.Visual, r.Visual) {
			continue
		}
		h.last[id] = r
		for _, s := range h.opts.Sinks {
			s.Publish(r)
		}
	}
	clear(h.dirty)
	for _, m := range rendered {
		if _, ok := h.mounts[m.id]; ok {
			m.widget.Updated()
		}
	}
}

// ReplaceStates installs a full state snapshot, as fetched after (re)connecting.
func (h *Host) ReplaceStates(states hass.States) {
	h.queue.Post(func() {
		clear(h.states)
		for id, st := range states {
			h.states[id] = st
		}
		h.statesChanged()
	})
}

// ApplyStateChange folds one state_changed event into the store.
func (h *Host) ApplyStateChange(ch hass.StateChange) {
	h.queue.Post(func() {
		h.states.Apply(ch)
		h.statesChanged()
	})
}

func (h *Host) statesChanged() {
	for _, id := range h.order {
		if m, ok := h.mounts[id]; ok {
			m.widget.StateChanged()
			h.requestRender(id)
		}
	}
}

// Remount detaches and re-attaches every widget, re-opening all live bindings. Used after
// the evaluation connection was replaced.
func (h *Host) Remount(ctx context.Context) error {
	return h.queue.Call(ctx, func() {
		for _, id := range h.order {
			if m, ok := h.mounts[id]; ok {
				m.widget.Detach()
				m.widget.Attach()
				h.requestRender(id)
			}
		}
	})
}

// Close detaches every widget.
func (h *Host) Close(ctx context.Context) error {
	return h.queue.Call(ctx, func() {
		for id := range h.mounts {
			h.unmount(id)
		}
		h.order = nil
	})
}

// Snapshot returns the last published render of every widget in display order.
func (h *Host) Snapshot(ctx context.Context) ([]Rendered, error) {
	var out []Rendered
	err := h.queue.Call(ctx, func() {
		out = make([]Rendered, 0, len(h.order))
		for _, id := range h.order {
			if r, ok := h.last[id]; ok {
				out = append(out, r)
			}
		}
	})
	return out, err
}

// Widget returns the last render and the configuration of id.
func (h *Host) Widget(ctx context.Context, id string) (Rendered, chip.Config, error) {
	var (
		r   Rendered
		cfg chip.Config
		err error
	)
	if callErr := h.queue.Call(ctx, func() {
		m, ok := h.mounts[id]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrNotFound, id)
			return
		}
		cfg = m.widget.Config()
		r, ok = h.last[id]
		if !ok {
			r = Rendered{ID: id, Type: m.widget.Type(), Visual: m.widget.Render(), At: h.opts.Now()}
		}
	}); callErr != nil {
		return Rendered{}, chip.Config{}, callErr
	}
	return r, cfg, err
}

// UpdateConfig replaces the configuration of a mounted widget.
func (h *Host) UpdateConfig(ctx context.Context, cfg chip.Config) error {
	var err error
	if callErr := h.queue.Call(ctx, func() {
		if _, ok := h.mounts[cfg.ID]; !ok {
			err = fmt.Errorf("%w: %s", ErrNotFound, cfg.ID)
			return
		}
		err = h.upsert(cfg)
	}); callErr != nil {
		return callErr
	}
	return err
}

// Stats reports counters for health output.
type Stats struct {
	Widgets  int `json:"widgets"`
	Entities int `json:"entities"`
	Renders  int `json:"renders"`
}

func (h *Host) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := h.queue.Call(ctx, func() {
		s = Stats{Widgets: len(h.mounts), Entities: len(h.states), Renders: h.renders}
	})
	return s, err
}
