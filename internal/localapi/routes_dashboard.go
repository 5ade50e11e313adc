package localapi

import "net/http"

func (s *Server) registerDashboardRoutes() {
	s.mux.HandleFunc("/api/v1/dashboard/reload", s.handleDashboardReload)
}

func (s *Server) handleDashboardReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if s.deps.Reload == nil {
		respondError(w, http.StatusNotImplemented, "RELOAD_UNAVAILABLE", "dashboard reload is unavailable")
		return
	}
	warnings, err := s.deps.Reload(r.Context())
	if err != nil {
		respondError(w, http.StatusBadRequest, "DASHBOARD_RELOAD_FAILED", err.Error())
		return
	}
	if warnings == nil {
		warnings = []string{}
	}
	respondOK(w, map[string]any{"warnings": warnings})
}
