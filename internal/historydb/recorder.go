package historydb

import (
	"context"
	"io"
	"log/slog"
	"time"

	"chipdeck/internal/dashboard"
)

const (
	recorderBacklog = 512
	pruneEvery      = 200
)

// Recorder is a dashboard sink that writes renders to the store off the task queue.
// Renders arriving while the backlog is full are dropped.
type Recorder struct {
	store  *Store
	keep   int
	logger *slog.Logger
	ch     chan dashboard.Rendered
}

func NewRecorder(store *Store, keep int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Recorder{
		store:  store,
		keep:   keep,
		logger: logger.With("module", "historydb"),
		ch:     make(chan dashboard.Rendered, recorderBacklog),
	}
}

func (r *Recorder) Publish(rendered dashboard.Rendered) {
	select {
	case r.ch <- rendered:
	default:
		r.logger.Warn("render history backlog full, dropping render", "widget", rendered.ID)
	}
}

// Run drains the backlog until ctx ends.
func (r *Recorder) Run(ctx context.Context) error {
	written := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case rendered := <-r.ch:
			ok, err := r.store.Record(ctx, rendered.ID, rendered.Type, rendered.Visual, rendered.At)
			if err != nil {
				r.logger.Warn("record render failed", "widget", rendered.ID, "err", err)
				continue
			}
			if !ok {
				continue
			}
			written++
			if r.keep > 0 && written%pruneEvery == 0 {
				r.prune(ctx)
			}
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	n, err := r.store.Prune(pctx, r.keep)
	if err != nil {
		r.logger.Warn("prune render history failed", "err", err)
		return
	}
	if n > 0 {
		r.logger.Debug("pruned render history", "rows", n)
	}
}
