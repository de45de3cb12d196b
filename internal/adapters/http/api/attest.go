package api

import (
	"net/http"
	"strings"
)

// attestRequest is the body of POST /v1/attest.
type attestRequest struct {
	Token    string `json:"token"`
	Claimant string `json:"claimant"`
}

func (a attestRequest) validate(op string) error {
	switch {
	case strings.TrimSpace(a.Token) == "":
		return missing(op, "token")
	case strings.TrimSpace(a.Claimant) == "":
		return missing(op, "claimant")
	}
	return nil
}

// handleAttest handles POST /v1/attest.
func (s *Server) handleAttest(w http.ResponseWriter, r *http.Request) {
	const op = "api.attest"
	var req attestRequest
	if err := decode(r, op, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := req.validate(op); err != nil {
		badRequest(w, err)
		return
	}
	res, err := s.deps.AttestText(r.Context(), req.Token, req.Claimant)
	if err != nil {
		s.writeServiceError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
