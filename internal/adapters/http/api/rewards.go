package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	service "github.com/okian/attest/internal/app"
	"github.com/okian/attest/internal/domain/prize"
)

type spinRequest struct {
	UserID string `json:"user_id"`
}

type spinStatusResponse struct {
	UserID         string             `json:"user_id"`
	Status         service.SpinStatus `json:"status"`
	NextEligibleAt *time.Time         `json:"next_eligible_at,omitempty"`
}

type catalogResponse struct {
	TotalWeight int           `json:"total_weight"`
	Prizes      []prize.Prize `json:"prizes"`
}

// handleSpin handles POST /v1/spins. A denied spin is a 200 with status
// DENIED, never an error.
func (s *Server) handleSpin(w http.ResponseWriter, r *http.Request) {
	const op = "api.spin"
	var req spinRequest
	if err := decode(r, op, &req); err != nil {
		badRequest(w, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		badRequest(w, missing(op, "user_id"))
		return
	}
	res, err := s.deps.Spin(r.Context(), req.UserID)
	if err != nil {
		s.writeServiceError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSpinStatus handles GET /v1/spins/{user}.
func (s *Server) handleSpinStatus(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	status, next, err := s.deps.CooldownStatus(r.Context(), user)
	if err != nil {
		s.writeServiceError(w, r, "api.spin_status", err)
		return
	}
	resp := spinStatusResponse{UserID: user, Status: status}
	if !next.IsZero() {
		resp.NextEligibleAt = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCatalog handles GET /v1/catalog.
func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	c := s.deps.Catalog()
	writeJSON(w, http.StatusOK, catalogResponse{TotalWeight: c.TotalWeight(), Prizes: c.Prizes()})
}
