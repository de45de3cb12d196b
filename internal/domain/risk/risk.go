// Package risk derives an advisory abuse score from a user's attestation,
// spin and redemption history. Scores never gate anything by themselves.
package risk

import (
	"sort"
	"time"
)

// Kind names an observed outcome.
type Kind string

const (
	AttestOK               Kind = "attest_ok"
	AttestInvalidPayload   Kind = "attest_invalid_payload"
	AttestInvalidSignature Kind = "attest_invalid_signature"
	AttestExpired          Kind = "attest_expired"
	AttestAlreadyUsed      Kind = "attest_already_used"
	SpinAllowed            Kind = "spin_allowed"
	SpinDenied             Kind = "spin_denied"
	RedeemOK               Kind = "redeem_ok"
	RedeemRejected         Kind = "redeem_rejected"
)

// Kinds lists every known kind.
func Kinds() []Kind {
	return []Kind{
		AttestOK, AttestInvalidPayload, AttestInvalidSignature, AttestExpired, AttestAlreadyUsed,
		SpinAllowed, SpinDenied, RedeemOK, RedeemRejected,
	}
}

// Event is one observation about a user.
type Event struct {
	Kind   Kind
	UserID string
	At     time.Time
	// Ref is the eventId, coupon code or similar the observation is about.
	Ref string
}

// Profile is the cached score for a user.
type Profile struct {
	UserID        string    `json:"user_id"`
	Score         float64   `json:"score"`
	Level         Level     `json:"level"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Level is the coarse badge shown next to a user.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Badge thresholds.
const (
	MediumThreshold = 5.0
	HighThreshold   = 15.0
)

// LevelOf buckets a score.
func LevelOf(score float64) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Policy decides how much each event contributes to a score.
type Policy interface {
	// Window bounds the history a score is computed over.
	Window() time.Duration
	// Lookback is how far before an event Weight needs to see.
	Lookback() time.Duration
	// Weight is e's contribution given the same user's events in
	// (e.At-Lookback, e.At), oldest first.
	Weight(e Event, recent []Event) float64
}

// Score folds history into a score at now. Events outside the policy window
// are ignored and the result is never negative.
func Score(p Policy, history []Event, now time.Time) float64 {
	events := make([]Event, len(history))
	copy(events, history)
	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })

	from := now.Add(-p.Window())
	total := 0.0
	start := 0
	for i, e := range events {
		if e.At.Before(from) || e.At.After(now) {
			continue
		}
		for start < i && !events[start].At.After(e.At.Add(-p.Lookback())) {
			start++
		}
		total += p.Weight(e, events[start:i])
	}
	if total < 0 {
		return 0
	}
	return total
}
