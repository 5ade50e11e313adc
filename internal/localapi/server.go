// Package localapi serves the rendered dashboard over HTTP and pushes render events to
// websocket clients.
package localapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"chipdeck/internal/chip"
	"chipdeck/internal/dashboard"
	"chipdeck/internal/dashconfig"
	"chipdeck/internal/historydb"
	"chipdeck/internal/protocol"
)

const eventBacklog = 256

type Host interface {
	Snapshot(ctx context.Context) ([]dashboard.Rendered, error)
	Widget(ctx context.Context, id string) (dashboard.Rendered, chip.Config, error)
	UpdateConfig(ctx context.Context, cfg chip.Config) error
	Stats(ctx context.Context) (dashboard.Stats, error)
}

type DashboardStore interface {
	Load() (dashconfig.Dashboard, error)
	Save(d dashconfig.Dashboard) error
}

type History interface {
	List(ctx context.Context, widgetID string, limit int) ([]historydb.Entry, error)
}

type Deps struct {
	Host      Host
	Registry  *chip.Registry
	Dashboard DashboardStore
	// Reload re-reads the dashboard file and applies it, returning validation warnings.
	Reload    func(ctx context.Context) ([]string, error)
	History   History
	Metrics   http.Handler
	Connected func() bool
	Logger    *slog.Logger
}

type Server struct {
	deps   Deps
	mux    *http.ServeMux
	hub    *WSHub
	logger *slog.Logger
	events chan protocol.Message
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Server{
		deps:   deps,
		mux:    http.NewServeMux(),
		logger: logger.With("module", "localapi"),
		events: make(chan protocol.Message, eventBacklog),
	}
	s.hub = NewWSHub(s.initialEvents, s.logger)
	s.registerChipRoutes()
	s.registerDashboardRoutes()
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/ws", s.hub.HandleWS)
	if deps.Metrics != nil {
		s.mux.Handle("/metrics", deps.Metrics)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Publish implements dashboard.Sink. It only enqueues; Run delivers to websocket clients.
func (s *Server) Publish(r dashboard.Rendered) {
	s.enqueue(protocol.OpChipRendered, r)
}

// PublishConnection announces a Home Assistant connection change.
func (s *Server) PublishConnection(connected bool) {
	s.enqueue(protocol.OpHassConnection, map[string]any{"connected": connected})
}

func (s *Server) enqueue(op string, payload any) {
	select {
	case s.events <- protocol.NewEvent(s.hub.nextID(), op, payload):
	default:
		s.logger.Warn("websocket event backlog full, dropping event", "op", op)
	}
}

// Run forwards published events to websocket clients until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-s.events:
			s.hub.Broadcast(ctx, msg)
		}
	}
}

func (s *Server) initialEvents(ctx context.Context) []protocol.Message {
	if s.deps.Host == nil {
		return nil
	}
	snap, err := s.deps.Host.Snapshot(ctx)
	if err != nil {
		return nil
	}
	out := make([]protocol.Message, 0, len(snap))
	for _, r := range snap {
		out = append(out, protocol.NewEvent(s.hub.nextID(), protocol.OpChipRendered, r))
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	if s.deps.Connected != nil {
		out["hass_connected"] = s.deps.Connected()
	}
	if s.deps.Host != nil {
		if stats, err := s.deps.Host.Stats(r.Context()); err == nil {
			out["widgets"] = stats.Widgets
			out["entities"] = stats.Entities
			out["renders"] = stats.Renders
		}
	}
	respondOK(w, out)
}

func respondOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

func respondError(w http.ResponseWriter, code int, errCode string, msg string) {
	writeJSON(w, code, map[string]any{"ok": false, "error": map[string]any{"code": errCode, "message": msg}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
