package api

import (
	"net/http"
	"time"

	"github.com/okian/attest/internal/domain/token"
)

// tokenRequest is the body of POST /v1/tokens. TTL uses Go duration syntax;
// an empty ttl takes the configured default and "0s" mints an already
// expiring token.
type tokenRequest struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	OwnerID string `json:"owner_id"`
	TTL     string `json:"ttl"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t tokenRequest) toRequest(op string) (token.Request, error) {
	typ, err := token.ParseType(t.Type)
	if err != nil {
		return token.Request{}, WrapKind(op, ErrBadRequest, err)
	}
	ttl := time.Duration(-1)
	if t.TTL != "" {
		if ttl, err = time.ParseDuration(t.TTL); err != nil || ttl < 0 {
			return token.Request{}, WrapKind(op, ErrBadRequest, err)
		}
	}
	return token.Request{Type: typ, Subject: t.Subject, OwnerID: t.OwnerID, TTL: ttl}, nil
}

// handleIssueToken handles POST /v1/tokens.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	const op = "api.tokens"
	var body tokenRequest
	if err := decode(r, op, &body); err != nil {
		badRequest(w, err)
		return
	}
	req, err := body.toRequest(op)
	if err != nil {
		badRequest(w, err)
		return
	}
	issued, err := s.deps.IssueToken(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, op, err)
		return
	}
	p := issued.Payload
	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:     issued.Text,
		EventID:   p.EventID.String(),
		Type:      p.Type.String(),
		Subject:   p.Subject,
		IssuedAt:  p.IssuedAt,
		ExpiresAt: p.ExpiresAt,
	})
}
