// Package model contains domain records owned by the ledgers and passed
// between layers.
package model

import "time"

// Identity is the resolved view of a guest or staff member.
type Identity struct {
	ID                   string `json:"id"`
	DisplayName          string `json:"display_name,omitempty"`
	Role                 string `json:"role"`
	HistoricalVisitCount int    `json:"historical_visit_count"`
}

// Roles known to the directory.
const (
	RoleGuest = "guest"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Claim records the consumption of one token.
type Claim struct {
	EventID    string
	Type       string
	Subject    string
	ConsumedBy string
	ConsumedAt time.Time
	// ExpiresAt is the token's expiry; the claim is kept at least until then.
	ExpiresAt time.Time
}

// CooldownDecision is the outcome of a cooldown advance attempt.
type CooldownDecision struct {
	Allowed        bool
	NextEligibleAt time.Time
}

// CouponStatus is derived from a coupon's timestamps at a point in time.
type CouponStatus string

const (
	CouponReady    CouponStatus = "READY"
	CouponRedeemed CouponStatus = "REDEEMED"
	CouponExpired  CouponStatus = "EXPIRED"
)

// Coupon is a redeemable reward.
type Coupon struct {
	Code       string     `json:"code"`
	OwnerID    string     `json:"owner_id"`
	PrizeID    string     `json:"prize_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
}

// Status reports the coupon's state at now. A coupon can be redeemed up to
// and including its expiry instant.
func (c Coupon) Status(now time.Time) CouponStatus {
	switch {
	case c.RedeemedAt != nil:
		return CouponRedeemed
	case now.After(c.ExpiresAt):
		return CouponExpired
	default:
		return CouponReady
	}
}
