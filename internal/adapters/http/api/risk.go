package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleRisk handles GET /v1/risk/{user}. ?recompute=1 rebuilds the profile
// from history first.
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	recompute, _ := strconv.ParseBool(r.URL.Query().Get("recompute"))
	p, err := s.deps.RiskProfile(r.Context(), chi.URLParam(r, "user"), recompute)
	if err != nil {
		s.writeServiceError(w, r, "api.risk", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
