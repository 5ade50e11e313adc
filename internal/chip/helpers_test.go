package chip

import (
	"context"
	"testing"
	"time"

	"chipdeck/internal/binding"
	"chipdeck/internal/hass"
)

type stateMap map[string]hass.State

func (m stateMap) Get(id string) (hass.State, bool) {
	st, ok := m[id]
	return st, ok
}

type testQueue struct {
	ch chan func()
}

func newTestQueue() *testQueue { return &testQueue{ch: make(chan func(), 64)} }

func (q *testQueue) Post(fn func()) { q.ch <- fn }

func (q *testQueue) runOne(t *testing.T) {
	t.Helper()
	select {
	case fn := <-q.ch:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for posted callback")
	}
}

type pendingSub struct {
	req      binding.Request
	onResult func(string)
	decide   chan error
	cancels  chan struct{}
}

func (s *pendingSub) Cancel(context.Context) error {
	s.cancels <- struct{}{}
	return nil
}

type stubEvaluator struct {
	calls chan *pendingSub
}

func newStubEvaluator() *stubEvaluator { return &stubEvaluator{calls: make(chan *pendingSub, 16)} }

func (e *stubEvaluator) Subscribe(ctx context.Context, req binding.Request, onResult func(string)) (binding.Subscription, error) {
	s := &pendingSub{req: req, onResult: onResult, decide: make(chan error, 1), cancels: make(chan struct{}, 4)}
	e.calls <- s
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

func (e *stubEvaluator) next(t *testing.T) *pendingSub {
	t.Helper()
	select {
	case s := <-e.calls:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for subscribe")
		return nil
	}
}

func (e *stubEvaluator) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case s := <-e.calls:
		t.Fatalf("unexpected subscribe for %s", s.req.Key)
	case <-time.After(30 * time.Millisecond):
	}
}

type envFixture struct {
	env     Env
	q       *testQueue
	ev      *stubEvaluator
	states  stateMap
	renders int
}

func newEnvFixture() *envFixture {
	f := &envFixture{q: newTestQueue(), ev: newStubEvaluator(), states: stateMap{}}
	f.env = Env{
		Ctx:           context.Background(),
		Scheduler:     f.q,
		Evaluator:     f.ev,
		States:        f.states,
		User:          "ann",
		RequestRender: func() { f.renders++ },
	}
	return f
}

// staticEnv has no evaluator: every expression degrades to its literal text.
func staticEnv(states stateMap) Env {
	return Env{Ctx: context.Background(), States: states}
}
