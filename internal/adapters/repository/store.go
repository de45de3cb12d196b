// Package repository holds the durable ledgers behind the attestation and
// reward engine. Every ledger exposes one atomic primitive per mutation; no
// operation holds a lock or transaction across two ledgers.
package repository

import (
	"context"
	"time"

	"github.com/okian/attest/internal/domain/model"
	"github.com/okian/attest/internal/domain/risk"
)

// Ledger names used in metrics and errors.
const (
	LedgerClaims    = "claims"
	LedgerCooldowns = "cooldowns"
	LedgerCoupons   = "coupons"
	LedgerRisk      = "risk"
	LedgerIdentity  = "identity"
)

// ClaimLedger records consumed tokens.
type ClaimLedger interface {
	// Claim inserts c iff no claim with the same EventID exists. Exactly one
	// of any number of concurrent callers succeeds; the rest get ErrAlreadyUsed.
	Claim(ctx context.Context, c model.Claim) error
	// PruneClaims deletes claims whose token expired before cutoff.
	PruneClaims(ctx context.Context, cutoff time.Time) (int64, error)
}

// CooldownGate holds each user's next eligible spin time.
type CooldownGate interface {
	// TryAdvance sets nextEligibleAt to now+period iff now >= nextEligibleAt,
	// in one atomic step. Unknown users start at the epoch. When denied the
	// decision carries the unchanged nextEligibleAt.
	TryAdvance(ctx context.Context, userID string, now time.Time, period time.Duration) (model.CooldownDecision, error)
	// Peek returns nextEligibleAt without changing it. Unknown users return
	// the zero time.
	Peek(ctx context.Context, userID string) (time.Time, error)
}

// CouponLedger stores issued coupons.
type CouponLedger interface {
	// Issue stores a coupon with a fresh unique code valid from issuedAt for
	// validity. Code clashes are retried with new codes.
	Issue(ctx context.Context, ownerID, prizeID string, issuedAt time.Time, validity time.Duration) (model.Coupon, error)
	// Redeem marks the coupon redeemed iff it is unredeemed and now <= expiresAt.
	// Concurrent redemptions of one code yield exactly one success.
	Redeem(ctx context.Context, code string, now time.Time) (model.Coupon, error)
	Get(ctx context.Context, code string) (model.Coupon, error)
	// ListByOwner returns coupons newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]model.Coupon, error)
	// PruneCoupons deletes coupons that expired before cutoff.
	PruneCoupons(ctx context.Context, cutoff time.Time) (int64, error)
}

// RiskLedger keeps the observation history and the cached profile per user.
type RiskLedger interface {
	AppendEvent(ctx context.Context, e risk.Event) error
	// Events returns a user's events at or after since, oldest first.
	Events(ctx context.Context, userID string, since time.Time) ([]risk.Event, error)
	// AddScore atomically adds delta to the cached score, clamping at zero.
	AddScore(ctx context.Context, userID string, delta float64, at time.Time) (risk.Profile, error)
	// SaveProfile overwrites the cached score.
	SaveProfile(ctx context.Context, p risk.Profile) error
	// Profile returns the cached score. Unknown users return ErrNotFound.
	Profile(ctx context.Context, userID string) (risk.Profile, error)
	PruneEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// IdentityDirectory resolves claimants and subjects to people.
type IdentityDirectory interface {
	// Resolve returns the identity for id. Unknown ids resolve to a guest
	// with no visits.
	Resolve(ctx context.Context, id string) (model.Identity, error)
	// UpsertIdentity stores profile fields. The visit count is owned by the
	// claim ledger and is not overwritten.
	UpsertIdentity(ctx context.Context, id model.Identity) error
}

// Stats summarises ledger sizes.
type Stats struct {
	Claims          int64 `json:"claims"`
	Coupons         int64 `json:"coupons"`
	RedeemedCoupons int64 `json:"redeemed_coupons"`
	CooldownUsers   int64 `json:"cooldown_users"`
	RiskEvents      int64 `json:"risk_events"`
	Identities      int64 `json:"identities"`
}

// Store bundles every ledger behind one backend.
type Store interface {
	ClaimLedger
	CooldownGate
	CouponLedger
	RiskLedger
	IdentityDirectory

	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}
