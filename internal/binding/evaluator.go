package binding

import (
	"context"
	"errors"
)

var (
	// ErrAlreadyClosed marks a cancel that failed because the far side had already dropped
	// the subscription. Disconnect treats it as success.
	ErrAlreadyClosed = errors.New("subscription already closed")
	ErrNoEvaluator   = errors.New("no expression evaluator configured")
)

// Request describes one live evaluation for one key.
type Request struct {
	Key       Key
	Template  string
	EntityIDs []string
	Variables map[string]any
}

// Evaluator opens live evaluations. Subscribe blocks until the subscription is established
// or rejected; onResult may be called from any goroutine, in emission order, until the
// returned Subscription is cancelled.
type Evaluator interface {
	Subscribe(ctx context.Context, req Request, onResult func(string)) (Subscription, error)
}

type Subscription interface {
	Cancel(ctx context.Context) error
}

// Scheduler runs fn on the owner's task queue. Callbacks posted to one Scheduler never
// run concurrently with each other.
type Scheduler interface {
	Post(fn func())
}

// Reporter receives cancel failures that could not be attributed to a remote close.
type Reporter interface {
	ReportError(k Key, err error)
}

// Observer is notified of subscription lifecycle events, mostly for metrics.
type Observer interface {
	ConnectSettled(k Key, err error)
	DisconnectSettled(k Key, err error)
	Delivered(k Key)
}

type ReporterFunc func(k Key, err error)

func (f ReporterFunc) ReportError(k Key, err error) { f(k, err) }

type nopObserver struct{}

func (nopObserver) ConnectSettled(Key, error)    {}
func (nopObserver) DisconnectSettled(Key, error) {}
func (nopObserver) Delivered(Key)                {}
