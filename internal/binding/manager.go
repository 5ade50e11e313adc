package binding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

const defaultTimeout = 10 * time.Second

type handleState int

const (
	stateConnecting handleState = iota
	stateConnected
	stateDisconnecting
)

func (s handleState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

type handle struct {
	state           handleState
	sub             Subscription
	cancelRequested bool
}

type Options struct {
	Evaluator Evaluator
	Scheduler Scheduler
	// OnChange is called on the scheduler after every result cache mutation and after
	// every released handle.
	OnChange func()
	Reporter Reporter
	Observer Observer
	Logger   *slog.Logger
	Timeout  time.Duration
}

// Manager owns the subscription table and result cache of one widget. All methods must be
// called from the widget's scheduler; asynchronous outcomes are posted back to it.
type Manager struct {
	ctx       context.Context
	evaluator Evaluator
	scheduler Scheduler
	onChange  func()
	reporter  Reporter
	observer  Observer
	logger    *slog.Logger
	timeout   time.Duration

	handles map[Key]*handle
	results map[Key]string
	// failed remembers the expression that failed to establish, per key, so the
	// post-render reconnect pass does not retry it in a loop.
	failed map[Key]string
}

func NewManager(ctx context.Context, opts Options) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	m := &Manager{
		ctx:       ctx,
		evaluator: opts.Evaluator,
		scheduler: opts.Scheduler,
		onChange:  opts.OnChange,
		reporter:  opts.Reporter,
		observer:  opts.Observer,
		logger:    opts.Logger,
		timeout:   opts.Timeout,
		handles:   map[Key]*handle{},
		results:   map[Key]string{},
		failed:    map[Key]string{},
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if m.timeout <= 0 {
		m.timeout = defaultTimeout
	}
	return m
}

// Connect opens a live evaluation for req.Key unless a handle already exists.
func (m *Manager) Connect(req Request) {
	if _, ok := m.handles[req.Key]; ok {
		return
	}
	h := &handle{state: stateConnecting}
	m.handles[req.Key] = h
	if m.evaluator == nil || m.scheduler == nil {
		m.settleConnect(req, h, nil, ErrNoEvaluator)
		return
	}

	m.logger.Debug("binding connect", "key", req.Key)
	ev, sched := m.evaluator, m.scheduler
	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
		defer cancel()
		sub, err := ev.Subscribe(ctx, req, func(v string) {
			sched.Post(func() { m.deliver(req.Key, h, v) })
		})
		sched.Post(func() { m.settleConnect(req, h, sub, err) })
	}()
}

func (m *Manager) deliver(k Key, h *handle, v string) {
	if m.handles[k] != h || h.cancelRequested || h.state == stateDisconnecting {
		return
	}
	m.results[k] = v
	m.observer.Delivered(k)
	m.changed()
}

func (m *Manager) settleConnect(req Request, h *handle, sub Subscription, err error) {
	k := req.Key
	m.observer.ConnectSettled(k, err)
	if m.handles[k] != h {
		// The handle was dropped without waiting for us; never leave the remote side open.
		if err == nil && sub != nil {
			m.cancel(k, &handle{state: stateConnected, sub: sub})
		}
		return
	}
	if err != nil {
		if h.cancelRequested {
			m.release(k)
			return
		}
		delete(m.handles, k)
		m.logger.Warn("binding connect failed, using literal", "key", k, "err", err)
		m.failed[k] = req.Template
		m.results[k] = req.Template
		m.changed()
		return
	}
	h.sub = sub
	h.state = stateConnected
	if h.cancelRequested {
		m.cancel(k, h)
	}
}

// Disconnect tears down the handle for k. The handle and cached result are released only
// after the cancel settles; a connecting handle is torn down as soon as its connect settles.
func (m *Manager) Disconnect(k Key) {
	h, ok := m.handles[k]
	if !ok {
		return
	}
	switch h.state {
	case stateConnecting:
		h.cancelRequested = true
	case stateConnected:
		m.cancel(k, h)
	case stateDisconnecting:
	}
}

func (m *Manager) cancel(k Key, h *handle) {
	h.state = stateDisconnecting
	sub := h.sub
	if sub == nil || m.scheduler == nil {
		m.settleDisconnect(k, h, nil)
		return
	}
	sched := m.scheduler
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), m.timeout)
		defer cancel()
		err := sub.Cancel(ctx)
		sched.Post(func() { m.settleDisconnect(k, h, err) })
	}()
}

func (m *Manager) settleDisconnect(k Key, h *handle, err error) {
	if err != nil && errors.Is(err, ErrAlreadyClosed) {
		m.logger.Debug("binding already closed remotely", "key", k, "err", err)
		err = nil
	}
	m.observer.DisconnectSettled(k, err)
	if err != nil {
		if m.reporter != nil {
			m.reporter.ReportError(k, err)
		} else {
			m.logger.Warn("binding disconnect failed", "key", k, "err", err)
		}
	}
	if m.handles[k] != h {
		return
	}
	m.release(k)
}

// release forgets k's handle and result and always requests a render, so the post-render
// pass can bind whatever the current configuration holds for k.
func (m *Manager) release(k Key) {
	delete(m.handles, k)
	delete(m.results, k)
	m.changed()
}

func (m *Manager) dropResult(k Key) {
	if _, ok := m.results[k]; !ok {
		return
	}
	delete(m.results, k)
	m.changed()
}

// DisconnectAll tears down every handle and forgets failure fallbacks. Safe to call repeatedly.
func (m *Manager) DisconnectAll() {
	for _, k := range Keys {
		if _, ok := m.handles[k]; ok {
			m.Disconnect(k)
			continue
		}
		m.dropResult(k)
	}
	clear(m.failed)
}

// Reconcile disconnects every key whose raw value changed between prev and next, and every
// key when the entity, the entity ids or the declared variables changed.
// It must run before ConnectAll(next) for the same update.
func (m *Manager) Reconcile(prev, next Config) {
	for _, k := range Keys {
		if !changed(prev, next, k) {
			continue
		}
		delete(m.failed, k)
		if _, ok := m.handles[k]; ok {
			m.Disconnect(k)
			continue
		}
		// leftover literal fallback from a failed connect
		m.dropResult(k)
	}
}

// ConnectAll connects every expression key of cfg that has no handle. Keys whose
// expression already failed stay on their fallback until ClearFailures or Reconcile.
func (m *Manager) ConnectAll(cfg Config) {
	for _, k := range Keys {
		raw, ok := cfg.Value(k)
		if !IsExpression(raw, ok) {
			continue
		}
		if _, busy := m.handles[k]; busy {
			continue
		}
		if failedRaw, ok := m.failed[k]; ok && failedRaw == raw {
			continue
		}
		m.Connect(Request{
			Key:       k,
			Template:  raw,
			EntityIDs: cfg.EntityIDs,
			Variables: cfg.RequestVariables(),
		})
	}
}

// ClearFailures allows failed keys to be retried by the next ConnectAll.
func (m *Manager) ClearFailures() {
	clear(m.failed)
}

func (m *Manager) Result(k Key) (string, bool) {
	v, ok := m.results[k]
	return v, ok
}

// Handles returns the number of handles currently in the table.
func (m *Manager) Handles() int {
	return len(m.handles)
}

// HandleState returns the lifecycle state of k's handle, or "absent".
func (m *Manager) HandleState(k Key) string {
	h, ok := m.handles[k]
	if !ok {
		return "absent"
	}
	return h.state.String()
}

func (m *Manager) Results() int {
	return len(m.results)
}

// View binds cfg and the matching override to the current result cache for one render.
func (m *Manager) View(cfg Config, override *StateOverride) View {
	return View{Config: cfg, Override: override, results: m.Result}
}

func (m *Manager) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}
