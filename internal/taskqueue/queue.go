// Package taskqueue runs posted callbacks one at a time on a single goroutine. Widgets
// that share a Queue never observe each other's callbacks concurrently.
package taskqueue

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

const defaultBacklog = 256

type Queue struct {
	logger *slog.Logger
	tasks  chan func()

	mu       sync.Mutex
	overflow []func()
	running  bool
	done     chan struct{}
}

func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Queue{
		logger: logger,
		tasks:  make(chan func(), defaultBacklog),
		done:   make(chan struct{}),
	}
}

// Post enqueues fn. It never blocks: when the channel is full the task is parked and
// flushed by the loop, so posting from inside a task cannot deadlock.
func (q *Queue) Post(fn func()) {
	if q == nil || fn == nil {
		return
	}
	q.mu.Lock()
	if len(q.overflow) == 0 {
		select {
		case q.tasks <- fn:
			q.mu.Unlock()
			return
		default:
		}
	}
	q.overflow = append(q.overflow, fn)
	q.mu.Unlock()
}

// Call runs fn on the queue and waits for it to finish or for ctx to end.
func (q *Queue) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	q.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes tasks until ctx is cancelled. Tasks still queued at that point are dropped.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = true
	q.mu.Unlock()
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-q.tasks:
			q.exec(fn)
			q.flushOverflow()
		}
	}
}

// Done is closed when Run returns.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) flushOverflow() {
	q.mu.Lock()
	for len(q.overflow) > 0 {
		select {
		case q.tasks <- q.overflow[0]:
			q.overflow[0] = nil
			q.overflow = q.overflow[1:]
		default:
			q.mu.Unlock()
			return
		}
	}
	q.mu.Unlock()
}

func (q *Queue) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "panic", r)
		}
	}()
	fn()
}
