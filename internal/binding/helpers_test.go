package binding

import (
	"context"
	"sync"
	"testing"
	"time"
)

type manualQueue struct {
	ch chan func()
}

func newManualQueue() *manualQueue {
	return &manualQueue{ch: make(chan func(), 64)}
}

func (q *manualQueue) Post(fn func()) {
	q.ch <- fn
}

// runOne waits for the next posted callback and runs it on the test goroutine.
func (q *manualQueue) runOne(t *testing.T) {
	t.Helper()
	select {
	case fn := <-q.ch:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for posted callback")
	}
}

func (q *manualQueue) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case <-q.ch:
		t.Fatalf("unexpected posted callback")
	case <-time.After(30 * time.Millisecond):
	}
}

type fakeSub struct {
	req      Request
	onResult func(string)
	decide   chan error

	mu        sync.Mutex
	cancelErr error
	cancelled int
}

func (s *fakeSub) Cancel(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled++
	return s.cancelErr
}

func (s *fakeSub) setCancelErr(err error) {
	s.mu.Lock()
	s.cancelErr = err
	s.mu.Unlock()
}

func (s *fakeSub) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

type fakeEvaluator struct {
	calls chan *fakeSub
}

func newFakeEvaluator() *fakeEvaluator {
	return &fakeEvaluator{calls: make(chan *fakeSub, 16)}
}

func (f *fakeEvaluator) Subscribe(ctx context.Context, req Request, onResult func(string)) (Subscription, error) {
	s := &fakeSub{req: req, onResult: onResult, decide: make(chan error, 1)}
	f.calls <- s
	select {
	case err := <-s.decide:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeEvaluator) next(t *testing.T) *fakeSub {
	t.Helper()
	select {
	case s := <-f.calls:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for subscribe call")
		return nil
	}
}

func (f *fakeEvaluator) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case s := <-f.calls:
		t.Fatalf("unexpected subscribe for key %s", s.req.Key)
	case <-time.After(30 * time.Millisecond):
	}
}

type recordingReporter struct {
	errs map[Key]error
}

func (r *recordingReporter) ReportError(k Key, err error) {
	if r.errs == nil {
		r.errs = map[Key]error{}
	}
	r.errs[k] = err
}

type managerFixture struct {
	q       *manualQueue
	ev      *fakeEvaluator
	rep     *recordingReporter
	renders int
	mgr     *Manager
}

func newManagerFixture() *managerFixture {
	f := &managerFixture{q: newManualQueue(), ev: newFakeEvaluator(), rep: &recordingReporter{}}
	f.mgr = NewManager(context.Background(), Options{
		Evaluator: f.ev,
		Scheduler: f.q,
		OnChange:  func() { f.renders++ },
		Reporter:  f.rep,
	})
	return f
}

// connectAndSettle connects every expression key of cfg, establishing them in key order.
func (f *managerFixture) connectAndSettle(t *testing.T, cfg Config) map[Key]*fakeSub {
	t.Helper()
	f.mgr.ConnectAll(cfg)
	subs := map[Key]*fakeSub{}
	for range cfg.ExpressionKeys() {
		s := f.ev.next(t)
		s.decide <- nil
		f.q.runOne(t)
		subs[s.req.Key] = s
	}
	return subs
}

func cfgOf(entity string, raw map[Key]string) Config {
	return Config{Entity: entity, Raw: raw}
}
