package service

import (
	"context"
	"errors"

	"github.com/okian/attest/internal/adapters/repository"
	"github.com/okian/attest/internal/domain/prize"
	"github.com/okian/attest/internal/domain/token"
)

// Client codes. The attestation and redemption codes are part of the
// contract with the staff UI; EXPIRED is shared by both taxonomies.
const (
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeExpired          = "EXPIRED"
	CodeAlreadyUsed      = "ALREADY_USED"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyRedeemed  = "ALREADY_REDEEMED"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUnavailable      = "UNAVAILABLE"
	CodeRewardNotIssued  = "REWARD_NOT_ISSUED"
	CodeInternal         = "INTERNAL"
)

var (
	// ErrInvalidRequest rejects calls missing a required field.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRewardNotIssued is returned when the cooldown was advanced but no
	// coupon could be stored. The drawn prize is logged for manual recovery.
	ErrRewardNotIssued = errors.New("reward drawn but coupon not issued")
)

// Code maps an error to its client code. Nil maps to "".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRewardNotIssued):
		return CodeRewardNotIssued
	case errors.Is(err, token.ErrInvalidSignature):
		return CodeInvalidSignature
	case errors.Is(err, token.ErrInvalidPayload):
		return CodeInvalidPayload
	case errors.Is(err, token.ErrExpired), errors.Is(err, repository.ErrCouponExpired):
		return CodeExpired
	case errors.Is(err, repository.ErrAlreadyUsed):
		return CodeAlreadyUsed
	case errors.Is(err, repository.ErrCouponNotFound), errors.Is(err, repository.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, repository.ErrAlreadyRedeemed):
		return CodeAlreadyRedeemed
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, repository.ErrInvalidArgument),
		errors.Is(err, token.ErrUnknownType),
		errors.Is(err, token.ErrSubjectTooLong),
		errors.Is(err, token.ErrTTLTooLong),
		errors.Is(err, prize.ErrInvalidPrize):
		return CodeInvalidRequest
	case Retryable(err):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// Retryable reports whether the caller may resubmit the same request.
// Taxonomy errors are deterministic and never retryable. A reward that was
// drawn but not issued is not either: the cooldown already moved, so a resubmit
// is DENIED and the prize needs staff recovery.
func Retryable(err error) bool {
	if errors.Is(err, ErrRewardNotIssued) {
		return false
	}
	return errors.Is(err, repository.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
