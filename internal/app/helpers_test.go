package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	service "github.com/okian/attest/internal/app"
	"github.com/okian/attest/internal/adapters/repository"
	"github.com/okian/attest/internal/domain/model"
	"github.com/okian/attest/internal/domain/prize"
	"github.com/okian/attest/internal/domain/token"
	"github.com/okian/attest/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var epoch = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: epoch} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fixedSource always lands on the first prize.
type fixedSource struct{}

func (fixedSource) IntN(int) int { return 0 }

func testRing() *token.Keyring {
	ring, err := token.NewKeyring([]byte("venue-secret-for-tests"))
	if err != nil {
		panic(err)
	}
	return ring
}

func testCatalog() *prize.Catalog {
	c, err := prize.NewCatalog([]prize.Prize{
		{ID: "coffee", Name: "Free coffee", Kind: prize.KindFreeItem, Weight: 3},
		{ID: "ten-off", Name: "10% off", Kind: prize.KindDiscount, Value: 10, Weight: 1},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// flakyStore injects failures in front of a MemoryStore.
type flakyStore struct {
	*repository.MemoryStore

	claimFailures atomic.Int32
	issueFailures atomic.Int32
	claimCalls    atomic.Int32
	issueCalls    atomic.Int32
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: repository.NewMemoryStore()}
}

func injected(op string) error {
	return fmt.Errorf("%w: injected %s failure", repository.ErrUnavailable, op)
}

func (f *flakyStore) Claim(ctx context.Context, c model.Claim) error {
	f.claimCalls.Add(1)
	if f.claimFailures.Load() != 0 {
		f.claimFailures.Add(-1)
		return injected("claim")
	}
	return f.MemoryStore.Claim(ctx, c)
}

func (f *flakyStore) Issue(ctx context.Context, ownerID, prizeID string, issuedAt time.Time, validity time.Duration) (model.Coupon, error) {
	f.issueCalls.Add(1)
	if f.issueFailures.Load() != 0 {
		f.issueFailures.Add(-1)
		return model.Coupon{}, injected("issue")
	}
	return f.MemoryStore.Issue(ctx, ownerID, prizeID, issuedAt, validity)
}

func newTestService(store repository.Store, clk *clock, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithLogger(logger.Nop()),
		service.WithClock(clk.Now),
		service.WithCatalog(testCatalog()),
		service.WithRandomSource(fixedSource{}),
		service.WithRetry(2, 0),
		service.WithRiskWorkers(2),
	}
	return service.New(store, testRing(), append(base, opts...)...)
}

func mint(svc *service.Service, typ token.Type, subject string, ttl time.Duration) token.Issued {
	issued, err := svc.IssueToken(context.Background(), token.Request{Type: typ, Subject: subject, TTL: ttl})
	if err != nil {
		panic(err)
	}
	return issued
}
