package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/attest/internal/domain/model"
	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/internal/domain/token"
	"github.com/okian/attest/pkg/metrics"
)

// MemoryStore keeps every ledger in process memory. Each ledger has its own
// lock, so the atomicity guarantees match SQLStore within one process. State
// is lost on restart; use it for tests and local development only.
type MemoryStore struct {
	opts options

	claimsMu sync.Mutex
	claims   map[string]model.Claim

	cooldownMu sync.Mutex
	cooldowns  map[string]time.Time

	couponsMu sync.RWMutex
	coupons   map[string]model.Coupon

	riskMu   sync.RWMutex
	events   map[string][]risk.Event
	profiles map[string]risk.Profile

	identityMu sync.RWMutex
	identities map[string]model.Identity
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		opts:       o,
		claims:     make(map[string]model.Claim),
		cooldowns:  make(map[string]time.Time),
		coupons:    make(map[string]model.Coupon),
		events:     make(map[string][]risk.Event),
		profiles:   make(map[string]risk.Profile),
		identities: make(map[string]model.Identity),
	}
}

// Claim implements ClaimLedger.
func (s *MemoryStore) Claim(ctx context.Context, c model.Claim) error {
	defer metrics.ObserveLedger(LedgerClaims, "claim", time.Now())
	if c.EventID == "" {
		return fmt.Errorf("%w: empty event id", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return unavailable(LedgerClaims, "claim", err)
	}

	s.claimsMu.Lock()
	if _, exists := s.claims[c.EventID]; exists {
		s.claimsMu.Unlock()
		return ErrAlreadyUsed
	}
	s.claims[c.EventID] = c
	s.claimsMu.Unlock()

	if c.Type == token.TypeVisit.String() && c.Subject != "" {
		s.identityMu.Lock()
		id := s.identities[c.Subject]
		id.ID = c.Subject
		id.HistoricalVisitCount++
		s.identities[c.Subject] = id
		s.identityMu.Unlock()
	}
	return nil
}

// PruneClaims implements ClaimLedger.
func (s *MemoryStore) PruneClaims(_ context.Context, cutoff time.Time) (int64, error) {
	s.claimsMu.Lock()
	defer s.claimsMu.Unlock()
	var n int64
	for id, c := range s.claims {
		if c.ExpiresAt.Before(cutoff) {
			delete(s.claims, id)
			n++
		}
	}
	return n, nil
}

// TryAdvance implements CooldownGate.
func (s *MemoryStore) TryAdvance(ctx context.Context, userID string, now time.Time, period time.Duration) (model.CooldownDecision, error) {
	defer metrics.ObserveLedger(LedgerCooldowns, "try_advance", time.Now())
	if userID == "" || period <= 0 {
		return model.CooldownDecision{}, fmt.Errorf("%w: user and positive period required", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return model.CooldownDecision{}, unavailable(LedgerCooldowns, "try_advance", err)
	}

	s.cooldownMu.Lock()
	defer s.cooldownMu.Unlock()
	next, ok := s.cooldowns[userID]
	if !ok {
		next = time.Unix(0, 0).UTC()
	}
	if now.Before(next) {
		return model.CooldownDecision{Allowed: false, NextEligibleAt: next}, nil
	}
	next = now.UTC().Add(period)
	s.cooldowns[userID] = next
	return model.CooldownDecision{Allowed: true, NextEligibleAt: next}, nil
}

// Peek implements CooldownGate.
func (s *MemoryStore) Peek(_ context.Context, userID string) (time.Time, error) {
	s.cooldownMu.Lock()
	defer s.cooldownMu.Unlock()
	return s.cooldowns[userID], nil
}

// Issue implements CouponLedger.
func (s *MemoryStore) Issue(ctx context.Context, ownerID, prizeID string, issuedAt time.Time, validity time.Duration) (model.Coupon, error) {
	defer metrics.ObserveLedger(LedgerCoupons, "issue", time.Now())
	return issueCoupon(ctx, s.opts, ownerID, prizeID, issuedAt, validity, s.insertCoupon)
}

func (s *MemoryStore) insertCoupon(ctx context.Context, c model.Coupon) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable(LedgerCoupons, "issue", err)
	}
	s.couponsMu.Lock()
	defer s.couponsMu.Unlock()
	if _, taken := s.coupons[c.Code]; taken {
		return false, nil
	}
	s.coupons[c.Code] = c
	return true, nil
}

// Redeem implements CouponLedger.
func (s *MemoryStore) Redeem(ctx context.Context, code string, now time.Time) (model.Coupon, error) {
	defer metrics.ObserveLedger(LedgerCoupons, "redeem", time.Now())
	if err := ctx.Err(); err != nil {
		return model.Coupon{}, unavailable(LedgerCoupons, "redeem", err)
	}
	code = NormalizeCode(code)

	s.couponsMu.Lock()
	defer s.couponsMu.Unlock()
	c, ok := s.coupons[code]
	switch {
	case !ok:
		return model.Coupon{}, ErrCouponNotFound
	case c.RedeemedAt != nil:
		return c, ErrAlreadyRedeemed
	case now.After(c.ExpiresAt):
		return c, ErrCouponExpired
	}
	at := now.UTC()
	c.RedeemedAt = &at
	s.coupons[code] = c
	return c, nil
}

// Get implements CouponLedger.
func (s *MemoryStore) Get(_ context.Context, code string) (model.Coupon, error) {
	s.couponsMu.RLock()
	defer s.couponsMu.RUnlock()
	c, ok := s.coupons[NormalizeCode(code)]
	if !ok {
		return model.Coupon{}, ErrCouponNotFound
	}
	return c, nil
}

// ListByOwner implements CouponLedger.
func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]model.Coupon, error) {
	s.couponsMu.RLock()
	out := make([]model.Coupon, 0)
	for _, c := range s.coupons {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	s.couponsMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// PruneCoupons implements CouponLedger.
func (s *MemoryStore) PruneCoupons(_ context.Context, cutoff time.Time) (int64, error) {
	s.couponsMu.Lock()
	defer s.couponsMu.Unlock()
	var n int64
	for code, c := range s.coupons {
		if c.ExpiresAt.Before(cutoff) {
			delete(s.coupons, code)
			n++
		}
	}
	return n, nil
}

// AppendEvent implements RiskLedger.
func (s *MemoryStore) AppendEvent(_ context.Context, e risk.Event) error {
	if e.UserID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	s.riskMu.Lock()
	defer s.riskMu.Unlock()
	s.events[e.UserID] = append(s.events[e.UserID], e)
	return nil
}

// Events implements RiskLedger.
func (s *MemoryStore) Events(_ context.Context, userID string, since time.Time) ([]risk.Event, error) {
	s.riskMu.RLock()
	out := make([]risk.Event, 0)
	for _, e := range s.events[userID] {
		if !e.At.Before(since) {
			out = append(out, e)
		}
	}
	s.riskMu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// AddScore implements RiskLedger.
func (s *MemoryStore) AddScore(_ context.Context, userID string, delta float64, at time.Time) (risk.Profile, error) {
	s.riskMu.Lock()
	defer s.riskMu.Unlock()
	p := s.profiles[userID]
	p.UserID = userID
	p.Score += delta
	if p.Score < 0 {
		p.Score = 0
	}
	p.LastUpdatedAt = at.UTC()
	s.profiles[userID] = p
	return p, nil
}

// SaveProfile implements RiskLedger.
func (s *MemoryStore) SaveProfile(_ context.Context, p risk.Profile) error {
	s.riskMu.Lock()
	defer s.riskMu.Unlock()
	if p.Score < 0 {
		p.Score = 0
	}
	p.LastUpdatedAt = p.LastUpdatedAt.UTC()
	s.profiles[p.UserID] = p
	return nil
}

// Profile implements RiskLedger.
func (s *MemoryStore) Profile(_ context.Context, userID string) (risk.Profile, error) {
	s.riskMu.RLock()
	defer s.riskMu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return risk.Profile{}, ErrNotFound
	}
	return p, nil
}

// PruneEvents implements RiskLedger.
func (s *MemoryStore) PruneEvents(_ context.Context, cutoff time.Time) (int64, error) {
	s.riskMu.Lock()
	defer s.riskMu.Unlock()
	var n int64
	for user, events := range s.events {
		kept := events[:0]
		for _, e := range events {
			if e.At.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.events, user)
			continue
		}
		s.events[user] = kept
	}
	return n, nil
}

// Resolve implements IdentityDirectory.
func (s *MemoryStore) Resolve(_ context.Context, id string) (model.Identity, error) {
	s.identityMu.RLock()
	defer s.identityMu.RUnlock()
	got, ok := s.identities[id]
	if !ok {
		return model.Identity{ID: id, Role: model.RoleGuest}, nil
	}
	if got.Role == "" {
		got.Role = model.RoleGuest
	}
	return got, nil
}

// UpsertIdentity implements IdentityDirectory.
func (s *MemoryStore) UpsertIdentity(_ context.Context, in model.Identity) error {
	if strings.TrimSpace(in.ID) == "" {
		return fmt.Errorf("%w: empty identity id", ErrInvalidArgument)
	}
	s.identityMu.Lock()
	defer s.identityMu.Unlock()
	cur := s.identities[in.ID]
	in.HistoricalVisitCount = cur.HistoricalVisitCount
	s.identities[in.ID] = in
	return nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	var st Stats
	s.claimsMu.Lock()
	st.Claims = int64(len(s.claims))
	s.claimsMu.Unlock()

	s.couponsMu.RLock()
	st.Coupons = int64(len(s.coupons))
	for _, c := range s.coupons {
		if c.RedeemedAt != nil {
			st.RedeemedCoupons++
		}
	}
	s.couponsMu.RUnlock()

	s.cooldownMu.Lock()
	st.CooldownUsers = int64(len(s.cooldowns))
	s.cooldownMu.Unlock()

	s.riskMu.RLock()
	for _, events := range s.events {
		st.RiskEvents += int64(len(events))
	}
	s.riskMu.RUnlock()

	s.identityMu.RLock()
	st.Identities = int64(len(s.identities))
	s.identityMu.RUnlock()
	return st, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
