package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/attest/internal/adapters/repository"
	"github.com/okian/attest/internal/domain/model"
	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/internal/domain/token"
	"github.com/okian/attest/pkg/logger"
	"github.com/okian/attest/pkg/metrics"
)

// AttestationResult is returned for a successfully claimed token.
type AttestationResult struct {
	Type       string         `json:"type"`
	Subject    string         `json:"subject"`
	EventID    string         `json:"event_id"`
	Identity   model.Identity `json:"identity"`
	IssuedAt   time.Time      `json:"issued_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	ConsumedAt time.Time      `json:"consumed_at"`
}

// AttestationService verifies scanned tokens and claims them exactly once.
type AttestationService struct {
	ring       *token.Keyring
	claims     repository.ClaimLedger
	identities repository.IdentityDirectory
	observer   Observer
	now        func() time.Time
	retry      retryPolicy
	logger     logger.Logger
}

// NewAttestationService wires the attestation flow.
func NewAttestationService(ring *token.Keyring, claims repository.ClaimLedger, identities repository.IdentityDirectory, opts ...Option) *AttestationService {
	o := buildOptions(opts)
	return &AttestationService{
		ring:       ring,
		claims:     claims,
		identities: identities,
		observer:   o.observer,
		now:        o.now,
		retry:      o.retry,
		logger:     o.logger.Named("attestation"),
	}
}

// AttestText decodes the base64url form and attests it.
func (s *AttestationService) AttestText(ctx context.Context, text, claimant string) (AttestationResult, error) {
	raw, err := token.DecodeText(strings.TrimSpace(text))
	if err != nil {
		return AttestationResult{}, s.reject(ctx, err, claimant, "")
	}
	return s.Attest(ctx, raw, claimant)
}

// Attest verifies raw and claims its eventId for claimant. Verification
// errors surface unchanged; a second claim of the same eventId returns
// repository.ErrAlreadyUsed.
func (s *AttestationService) Attest(ctx context.Context, raw []byte, claimant string) (AttestationResult, error) {
	claimant = strings.TrimSpace(claimant)
	if claimant == "" {
		return AttestationResult{}, fmt.Errorf("%w: claimant is required", ErrInvalidRequest)
	}
	now := s.now()

	p, err := token.Verify(raw, s.ring, now)
	if err != nil {
		ref := ""
		if errors.Is(err, token.ErrExpired) {
			ref = p.EventID.String()
		}
		return AttestationResult{}, s.reject(ctx, err, claimant, ref)
	}

	eventID := p.EventID.String()
	claim := model.Claim{
		EventID:    eventID,
		Type:       p.Type.String(),
		Subject:    p.Subject,
		ConsumedBy: claimant,
		ConsumedAt: now.UTC(),
		ExpiresAt:  p.ExpiresAt,
	}
	_, err = retryTransient(ctx, s.retry, "claim", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.claims.Claim(ctx, claim)
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyUsed) {
			return AttestationResult{}, s.reject(ctx, err, claimant, eventID)
		}
		metrics.RecordAttestation("error")
		s.logger.Error(ctx, "claim failed", logger.String("event_id", eventID), logger.Error(err))
		return AttestationResult{}, err
	}

	metrics.RecordAttestation("ok")
	observe(ctx, s.observer, risk.AttestOK, claimant, eventID, now)
	return AttestationResult{
		Type:       claim.Type,
		Subject:    p.Subject,
		EventID:    eventID,
		Identity:   s.resolve(ctx, p, claimant),
		IssuedAt:   p.IssuedAt,
		ExpiresAt:  p.ExpiresAt,
		ConsumedAt: claim.ConsumedAt,
	}, nil
}

// resolve looks up the person the token attests. The claim has already
// succeeded, so a directory failure degrades to a bare guest identity
// instead of failing the call.
func (s *AttestationService) resolve(ctx context.Context, p token.Payload, claimant string) model.Identity {
	key := claimant
	if p.Type.UserBound() && p.Subject != "" {
		key = p.Subject
	}
	id, err := retryTransient(ctx, s.retry, "resolve", func(ctx context.Context) (model.Identity, error) {
		return s.identities.Resolve(ctx, key)
	})
	if err != nil {
		s.logger.Warn(ctx, "identity lookup failed",
			logger.String("event_id", p.EventID.String()),
			logger.String("identity", key),
			logger.Error(err),
		)
		return model.Identity{ID: key, Role: model.RoleGuest}
	}
	return id
}

func (s *AttestationService) reject(ctx context.Context, err error, claimant, eventID string) error {
	code := Code(err)
	metrics.RecordAttestation(strings.ToLower(code))
	s.logger.Warn(ctx, "attestation rejected",
		logger.String("code", code),
		logger.String("claimant", claimant),
		logger.String("event_id", eventID),
	)

	kind := risk.AttestInvalidPayload
	switch code {
	case CodeInvalidSignature:
		kind = risk.AttestInvalidSignature
	case CodeExpired:
		kind = risk.AttestExpired
	case CodeAlreadyUsed:
		kind = risk.AttestAlreadyUsed
	}
	observe(ctx, s.observer, kind, claimant, eventID, s.now())
	return err
}
