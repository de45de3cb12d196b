package api

import (
	"net/http"
)

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "api.stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
