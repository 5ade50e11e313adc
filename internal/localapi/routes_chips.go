package localapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"chipdeck/internal/chip"
	"chipdeck/internal/dashboard"
	"chipdeck/internal/dashconfig"
)

const defaultHistoryLimit = 50

type chipResponse struct {
	dashboard.Rendered
	Config chip.Config `json:"config"`
}

func (s *Server) registerChipRoutes() {
	s.mux.HandleFunc("/api/v1/chips", s.handleChips)
	s.mux.HandleFunc("/api/v1/chips/", s.handleChipActions)
}

func (s *Server) handleChips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if s.deps.Host == nil {
		respondError(w, http.StatusServiceUnavailable, "HOST_UNAVAILABLE", "dashboard host is unavailable")
		return
	}
	snap, err := s.deps.Host.Snapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "SNAPSHOT_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"chips": snap})
}

// handleChipActions serves /api/v1/chips/{id}, /api/v1/chips/{id}/config and
// /api/v1/chips/{id}/history.
func (s *Server) handleChipActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/chips/"), "/")
	parts := strings.Split(rest, "/")
	id := strings.TrimSpace(parts[0])
	if id == "" || len(parts) > 2 {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "not found")
		return
	}
	if s.deps.Host == nil {
		respondError(w, http.StatusServiceUnavailable, "HOST_UNAVAILABLE", "dashboard host is unavailable")
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleChipGet(w, r, id)
	case action == "config" && r.Method == http.MethodPut:
		s.handleChipConfigPut(w, r, id)
	case action == "history" && r.Method == http.MethodGet:
		s.handleChipHistory(w, r, id)
	case action == "" || action == "config" || action == "history":
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	default:
		respondError(w, http.StatusNotFound, "NOT_FOUND", "not found")
	}
}

func (s *Server) handleChipGet(w http.ResponseWriter, r *http.Request, id string) {
	rendered, cfg, err := s.deps.Host.Widget(r.Context(), id)
	if err != nil {
		respondHostError(w, err)
		return
	}
	respondOK(w, chipResponse{Rendered: rendered, Config: cfg})
}

func (s *Server) handleChipConfigPut(w http.ResponseWriter, r *http.Request, id string) {
	var cfg chip.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	cfg.ID = id
	warnings, err := dashconfig.Validate(dashconfig.Dashboard{Views: []dashconfig.View{{Chips: []chip.Config{cfg}}}}, s.deps.Registry)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}
	if err := s.deps.Host.UpdateConfig(r.Context(), cfg); err != nil {
		respondHostError(w, err)
		return
	}
	if s.deps.Dashboard != nil {
		if err := s.persist(cfg); err != nil {
			s.logger.Warn("persist chip config failed", "widget", id, "err", err)
			respondError(w, http.StatusInternalServerError, "DASHBOARD_SAVE_FAILED", err.Error())
			return
		}
	}
	respondOK(w, map[string]any{"id": id, "warnings": warnings})
}

func (s *Server) persist(cfg chip.Config) error {
	d, err := s.deps.Dashboard.Load()
	if err != nil {
		return err
	}
	if !d.Replace(cfg) {
		return nil
	}
	return s.deps.Dashboard.Save(d)
}

func (s *Server) handleChipHistory(w http.ResponseWriter, r *http.Request, id string) {
	if s.deps.History == nil {
		respondError(w, http.StatusNotImplemented, "HISTORY_DISABLED", "render history is disabled")
		return
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.deps.History.List(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "HISTORY_LOAD_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"id": id, "entries": entries})
}

func respondHostError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrNotFound):
		respondError(w, http.StatusNotFound, "CHIP_NOT_FOUND", err.Error())
	case errors.Is(err, chip.ErrUnknownType):
		respondError(w, http.StatusBadRequest, "UNKNOWN_CHIP_TYPE", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "HOST_FAILED", err.Error())
	}
}
