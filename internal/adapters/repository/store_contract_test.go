package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/attest/internal/domain/model"
	"github.com/okian/attest/internal/domain/risk"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T, opts ...Option) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, opts ...Option) Store {
			return NewMemoryStore(opts...)
		},
		"sqlite": func(t *testing.T, opts ...Option) Store {
			s, err := OpenSQL(context.Background(), filepath.Join(t.TempDir(), "attest.db"), opts...)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, newStore storeFactory)) {
	for name, f := range backends() {
		t.Run(name, func(t *testing.T) { fn(t, f) })
	}
}

func claim(id string) model.Claim {
	return model.Claim{
		EventID:    id,
		Type:       "visit",
		Subject:    "guest-1",
		ConsumedBy: "staff-1",
		ConsumedAt: t0,
		ExpiresAt:  t0.Add(time.Minute),
	}
}

func TestStore_ClaimExactlyOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newStore storeFactory) {
		ctx := context.Background()
		s := newStore(t)

		if err := s.Claim(ctx, claim("e1")); err != nil {
			t.Fatalf("first claim: %v", err)
		}
		if err := s.Claim(ctx, claim("e1")); !errors.Is(err, ErrAlreadyUsed) {
			t.Fatalf("second claim: want ErrAlreadyUsed, got %v", err)
		}

		var ok, used atomic.Int64
		var wg sync.WaitGroup
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				switch err := s.Claim(ctx, claim("race")); {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, ErrAlreadyUsed):
					used.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if ok.Load() != 1 || used.Load() != 31 {
			t.Fatalf("want 1 ok and 31 used, got %d and %d", ok.Load(), used.Load())
		}

		for i := range 16 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := s.Claim(ctx, claim(fmt.Sprintf("distinct-%d", i))); err != nil {
					t.Errorf("distinct claim %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		if err := s.Claim(ctx, model.Claim{}); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("empty claim: want ErrInvalidArgument, got %v", err)
		}
	})
}

func TestStore_FarFutureClaimSurvivesPrune(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newStore storeFactory) {
		ctx := context.Background()
		s := newStore(t)

		c := claim("far")
		c.ExpiresAt = t0.AddDate(260, 0, 0)
		if err := s.Claim(ctx, c); err != nil {
			t.Fatalf("claim: %v", err)
		}
		n, err := s.PruneClaims(ctx, t0.Add(40*24*time.Hour))
		if err != nil {
			t.Fatalf("prune: %v", err)
		}
		if n != 0 {
			t.Fatalf("pruned %d live claims", n)
		}
		if err := s.Claim(ctx, c); !errors.Is(err, ErrAlreadyUsed) {
			t.Fatalf("second claim: want ErrAlreadyUsed, got %v", err)
		}
	})
}

func TestNanosSaturates(t *testing.T) {
	if got := nanos(t0.AddDate(300, 0, 0)); got != math.MaxInt64 {
		t.Fatalf("far future: got %d", got)
	}
	if got := nanos(t0.AddDate(-400, 0, 0)); got != math.MinInt64 {
		t.Fatalf("far past: got %d", got)
	}
	if got := fromNanos(nanos(t0)); !got.Equal(t0) {
		t.Fatalf("round trip: got %s", got)
	}
}

func TestStore_IdentityVisitCount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newStore storeFactory) {
		ctx := context.Background()
		s := newStore(t)

		id, err := s.Resolve(ctx, "nobody")
		if err != nil || id.Role != model.RoleGuest || id.HistoricalVisitCount != 0 || id.ID != "nobody" {
			t.Fatalf("unknown identity: %+v, %v", id, err)
		}

		if err := s.UpsertIdentity(ctx, model.Identity{ID: "guest-1", DisplayName: "Ada", Role: model.RoleGuest}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		for _, e := range []string{"v1", "v2", "v2"} {
			_ = s.Claim(ctx, claim(e))
		}
		promo := claim("p1")
		promo.Type = "promo"
		_ = s.Claim(ctx, promo)

		id, err = s.Resolve(ctx, "guest-1")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if id.DisplayName != "Ada" || id.HistoricalVisitCount != 2 {
			t.Fatalf("want Ada with 2 visits, got %+v", id)
		}

		if err := s.UpsertIdentity(ctx, model.Identity{ID: "guest-1", DisplayName: "Ada L.", HistoricalVisitCount: 99}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		id, _ = s.Resolve(ctx, "guest-1")
		if id.DisplayName != "Ada L." || id.HistoricalVisitCount != 2 || id.Role != model.RoleGuest {
			t.Fatalf("upsert must keep visit count: %+v", id)
		}

		if err := s.UpsertIdentity(ctx, model.Identity{}); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("empty identity: %v", err)
		}
	})
}

func TestStore_Cooldown(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newStore storeFactory) {
		ctx := context.Background()
		s := newStore(t)
		period := time.Hour

		if at, _ := s.Peek(ctx, "u1"); !at.IsZero() {
			t.Fatalf("peek unknown: want zero, got %v", at)
		}

		d, err := s.TryAdvance(ctx, "u1", t0, period)
		if err != nil || !d.Allowed || !d.NextEligibleAt.Equal(t0.Add(period)) {
			t.Fatalf("first advance: %+v, %v", d, err)
		}
		d, err = s.TryAdvance(ctx, "u1", t0.Add(30*time.Minute), period)
		if err != nil || d.Allowed || !d.NextEligibleAt.Equal(t0.Add(period)) {
			t.Fatalf("early advance: %+v, %v", d, err)
		}
		if at, _ := s.Peek(ctx, "u1"); !at.Equal(t0.Add(period)) {
			t.Fatalf("peek: %v", at)
		}
		d, err = s.TryAdvance(ctx, "u1", t0.Add(period), period)
		if err != nil || !d.Allowed || !d.NextEligibleAt.Equal(t0.Add(2*period)) {
			t.Fatalf("advance at exactly the period: %+v, %v", d, err)
		}

		if _, err := s.TryAdvance(ctx, "u1", t0, 0); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("zero period: %v", err)
		}
	})
}

func TestStore_CooldownRace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newStore storeFactory) {
		ctx := context.Background()
		s := newStore(t)

		var (
			mu      sync.Mutex
			allowed []time.Time
			denied  []time.Time
			wg      sync.WaitGroup
		)
		for i := range 24 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				now := t0.Add(time.Duration(i) * time.Millisecond)
				d, err := s.TryAdvance(ctx, "racer", now, 24*time.Hour)
				if err != nil {
					t.Errorf("advance: %v", err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if d.Allowed {
					allowed = append(allowed, d.NextEligibleAt)
				} else {
					denied = append(denied, d.NextEligibleAt)
				}
			}(i)
		}
		wg.Wait()
		if len(allowed) != 1 || len(denied) != 23 {
			t.Fatalf("want 1 allowed, got %d allowed and %d denied", len(allowed), len(denied))
		}
		for _, at := range denied {
			if at.Before(allowed[0]) {
				t.Fatalf("denied nextEligibleAt %v earlier than allowed %v", at, allowed[0])
			}
		}
	})
}

func TestStore_CouponLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newStore storeFactory) {
		ctx := context.Background()
		s := newStore(t)
		week := 7 * 24 * time.Hour

		c, err := s.Issue(ctx, "u1", "coffee", t0, week)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if len(c.Code) != 9 || c.Code[4] != '-' || !c.ExpiresAt.Equal(t0.Add(week)) {
			t.Fatalf("unexpected coupon: %+v", c)
		}
		got, err := s.Get(ctx, c.Code)
		if err != nil || got.Code != c.Code || got.RedeemedAt != nil || got.PrizeID != "coffee" {
			t.Fatalf("get: %+v, %v", got, err)
		}

		r, err := s.Redeem(ctx, c.Code, t0.Add(time.Hour))
		if err != nil || r.RedeemedAt == nil || !r.RedeemedAt.Equal(t0.Add(time.Hour)) {
			t.Fatalf("redeem: %+v, %v", r, err)
		}
		if _, err := s.Redeem(ctx, c.Code, t0.Add(2*time.Hour)); !errors.Is(err, ErrAlreadyRedeemed) {
			t.Fatalf("second redeem: %v", err)
		}

		stale, _ := s.Issue(ctx, "u1", "dessert", t0, week)
		if _, err := s.Redeem(ctx, stale.Code, t0.Add(week+time.Second)); !errors.Is(err, ErrCouponExpired) {
			t.Fatalf("expired redeem: %v", err)
		}
		edge, _ := s.Issue(ctx, "u1", "dessert", t0, week)
		if _, err := s.Redeem(ctx, edge.Code, t0.Add(week)); err != nil {
			t.Fatalf("redeem at expiry instant: %v", err)
		}

		if _, err := s.Redeem(ctx, "ZZZZ-ZZZZ", t0); !errors.Is(err, ErrCouponNotFound) {
			t.Fatalf("unknown redeem: %v", err)
		}
		if _, err := s.Get(ctx, "ZZZZ-ZZZZ"); !errors.Is(err, ErrCouponNotFound) {
			t.Fatalf("unknown get: %v", err)
		}
		if _, err := s.Issue(ctx, "", "coffee", t0, week); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("issue without owner: %v", err)
		}
	})
}

func TestStore_CouponRedeemRace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newStore storeFactory) {
		ctx := context.Background()
		s := newStore(t)
		c, err := s.Issue(ctx, "u1", "coffee", t0, time.Hour)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}

		var ok, already atomic.Int64
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				switch _, err := s.Redeem(ctx, c.Code, t0.Add(time.Minute)); {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, ErrAlreadyRedeemed):
					already.Add(1)
				default:
					t.Errorf("redeem: %v", err)
				}
			}()
		}
		wg.Wait()
		if ok.Load() != 1 || already.Load() != 15 {
			t.Fatalf("want exactly one redemption, got %d ok %d already", ok.Load(), already.Load())
		}
	})
}

func TestStore_CouponCodeCollision(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newStore storeFactory) {
		ctx := context.Background()
		codes := []string{"AAAA-AAAA", "AAAA-AAAA", "BBBBBBBB"}
		var i int
		gen := func() (string, error) {
			c := codes[i%len(codes)]
			i++
			return c, nil
		}
		s := newStore(t, WithCodeGenerator(gen), WithCodeAttempts(2))

		first, err := s.Issue(ctx, "u1", "coffee", t0, time.Hour)
		if err != nil || first.Code != "AAAA-AAAA" {
			t.Fatalf("first issue: %+v, %v", first, err)
		}
		second, err := s.Issue(ctx, "u2", "coffee", t0, time.Hour)
		if err != nil || second.Code != "BBBB-BBBB" {
			t.Fatalf("second issue should retry past the clash: %+v, %v", second, err)
		}

		stuck := newStore(t, WithCodeGenerator(func() (string, error) { return "CCCC-CCCC", nil }))
		if _, err := stuck.Issue(ctx, "u1", "coffee", t0, time.Hour); err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, err := stuck.Issue(ctx, "u1", "coffee", t0, time.Hour); !errors.Is(err, ErrCodeSpaceExhausted) {
			t.Fatalf("want ErrCodeSpaceExhausted, got %v", err)
		}
	})
}

func TestStore_ListAndPrune(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newStore storeFactory) {
		ctx := context.Background()
		s := newStore(t)

		old, _ := s.Issue(ctx, "u1", "coffee", t0, time.Hour)
		recent, _ := s.Issue(ctx, "u1", "dessert", t0.Add(time.Hour), time.Hour)
		_, _ = s.Issue(ctx, "u2", "coffee", t0, time.Hour)

		list, err := s.ListByOwner(ctx, "u1")
		if err != nil || len(list) != 2 || list[0].Code != recent.Code || list[1].Code != old.Code {
			t.Fatalf("list: %+v, %v", list, err)
		}
		if empty, _ := s.ListByOwner(ctx, "nobody"); empty == nil || len(empty) != 0 {
			t.Fatalf("list for unknown owner: %+v", empty)
		}

		n, err := s.PruneCoupons(ctx, t0.Add(90*time.Minute))
		if err != nil || n != 2 {
			t.Fatalf("prune coupons: %d, %v", n, err)
		}
		if _, err := s.Get(ctx, recent.Code); err != nil {
			t.Fatalf("recent coupon pruned: %v", err)
		}

		_ = s.Claim(ctx, claim("c1"))
		later := claim("c2")
		later.ExpiresAt = t0.Add(time.Hour)
		_ = s.Claim(ctx, later)
		n, err = s.PruneClaims(ctx, t0.Add(30*time.Minute))
		if err != nil || n != 1 {
			t.Fatalf("prune claims: %d, %v", n, err)
		}
		if err := s.Claim(ctx, later); !errors.Is(err, ErrAlreadyUsed) {
			t.Fatalf("retained claim must still block: %v", err)
		}

		st, err := s.Stats(ctx)
		if err != nil || st.Claims != 1 || st.Coupons != 1 || st.Identities != 1 {
			t.Fatalf("stats: %+v, %v", st, err)
		}
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("ping: %v", err)
		}
	})
}

func TestStore_Risk(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newStore storeFactory) {
		ctx := context.Background()
		s := newStore(t)

		if _, err := s.Profile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("unknown profile: %v", err)
		}
		for i, k := range []risk.Kind{risk.AttestAlreadyUsed, risk.SpinDenied, risk.RedeemOK} {
			e := risk.Event{Kind: k, UserID: "u1", At: t0.Add(time.Duration(i) * time.Hour), Ref: fmt.Sprint(i)}
			if err := s.AppendEvent(ctx, e); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		events, err := s.Events(ctx, "u1", t0.Add(time.Hour))
		if err != nil || len(events) != 2 || events[0].Kind != risk.SpinDenied || events[1].Ref != "2" {
			t.Fatalf("events: %+v, %v", events, err)
		}

		p, err := s.AddScore(ctx, "u1", 2.5, t0)
		if err != nil || p.Score != 2.5 {
			t.Fatalf("add: %+v, %v", p, err)
		}
		p, _ = s.AddScore(ctx, "u1", -10, t0.Add(time.Minute))
		if p.Score != 0 {
			t.Fatalf("score must clamp at zero, got %v", p.Score)
		}
		if err := s.SaveProfile(ctx, risk.Profile{UserID: "u1", Score: 7, LastUpdatedAt: t0.Add(time.Hour)}); err != nil {
			t.Fatalf("save: %v", err)
		}
		p, err = s.Profile(ctx, "u1")
		if err != nil || p.Score != 7 || !p.LastUpdatedAt.Equal(t0.Add(time.Hour)) {
			t.Fatalf("profile: %+v, %v", p, err)
		}

		n, err := s.PruneEvents(ctx, t0.Add(90*time.Minute))
		if err != nil || n != 2 {
			t.Fatalf("prune events: %d, %v", n, err)
		}
		if err := s.AppendEvent(ctx, risk.Event{Kind: risk.AttestOK}); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("event without user: %v", err)
		}
	})
}
