package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"chipdeck/internal/binding"
)

// ClientSource yields the currently connected client, or nil while disconnected.
type ClientSource interface {
	Client() *Client
}

// TemplateEvaluator renders templates remotely with render_template subscriptions.
type TemplateEvaluator struct {
	source ClientSource
	logger *slog.Logger
}

func NewTemplateEvaluator(source ClientSource, logger *slog.Logger) *TemplateEvaluator {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &TemplateEvaluator{source: source, logger: logger}
}

func (e *TemplateEvaluator) Subscribe(ctx context.Context, req binding.Request, onResult func(string)) (binding.Subscription, error) {
	var c *Client
	if e.source != nil {
		c = e.source.Client()
	}
	if c == nil {
		return nil, ErrClosed
	}
	cmd := map[string]any{
		"type":     "render_template",
		"template": req.Template,
		"strict":   true,
	}
	if len(req.EntityIDs) > 0 {
		cmd["entity_ids"] = req.EntityIDs
	}
	if len(req.Variables) > 0 {
		cmd["variables"] = req.Variables
	}
	logger := e.logger.With("key", req.Key.String())
	id, err := c.Subscribe(ctx, cmd, func(raw json.RawMessage) {
		res, ok, err := decodeRender(raw)
		if err != nil {
			logger.Warn("template render reported an error", "err", err)
			return
		}
		if ok {
			onResult(res)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("render_template %s: %w", req.Key, err)
	}
	return &templateSubscription{client: c, id: id}, nil
}

type templateSubscription struct {
	client *Client
	id     int64
}

// Cancel unsubscribes. A subscription the server no longer knows about, or one whose
// connection is gone, reports binding.ErrAlreadyClosed.
func (s *templateSubscription) Cancel(ctx context.Context) error {
	err := s.client.Unsubscribe(ctx, s.id)
	if err == nil {
		return nil
	}
	var haErr *Error
	if errors.As(err, &haErr) && (haErr.Code == "not_found" || haErr.Code == "template_error") {
		return fmt.Errorf("%w: %w", binding.ErrAlreadyClosed, err)
	}
	if errors.Is(err, ErrClosed) {
		return fmt.Errorf("%w: %w", binding.ErrAlreadyClosed, err)
	}
	return err
}

// decodeRender extracts the rendered text of one render_template event. Non-string results
// are rendered as their JSON text.
func decodeRender(raw json.RawMessage) (string, bool, error) {
	var ev struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", false, err
	}
	if ev.Error != "" {
		return "", false, errors.New(ev.Error)
	}
	if len(ev.Result) == 0 {
		return "", false, nil
	}
	var text string
	if err := json.Unmarshal(ev.Result, &text); err == nil {
		return text, true, nil
	}
	trimmed := strings.TrimSpace(string(ev.Result))
	if trimmed == "null" {
		return "", true, nil
	}
	return trimmed, true, nil
}
