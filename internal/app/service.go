// Package service implements the attestation and reward engine: token
// verification and exactly-once claiming, the weekly reward wheel, coupon
// redemption and background risk scoring.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/attest/internal/adapters/mq/queue"
	"github.com/okian/attest/internal/adapters/mq/worker"
	"github.com/okian/attest/internal/adapters/repository"
	"github.com/okian/attest/internal/domain/prize"
	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/internal/domain/token"
	"github.com/okian/attest/pkg/logger"
	"github.com/okian/attest/pkg/metrics"
)

// Service composes the flows over one store.
type Service struct {
	store  repository.Store
	issuer *token.Issuer
	now    func() time.Time
	logger logger.Logger

	attestation *AttestationService
	reward      *RewardService
	redemption  *RedemptionService
	risk        *RiskScorer
	janitor     *Janitor

	queue *queue.InMemoryQueue
	pool  *worker.Pool
}

// New wires every flow. Risk observations from all flows go to one scorer
// backed by a bounded queue and a worker pool; Start launches the workers.
func New(store repository.Store, ring *token.Keyring, opts ...Option) *Service {
	o := buildOptions(opts)
	q := queue.NewInMemoryQueue(queue.WithCapacity(o.riskQueueSize))
	scorer := NewRiskScorer(store, q, opts...)

	// Every flow reports to the scorer.
	flowOpts := append(append([]Option{}, opts...), WithObserver(scorer))

	s := &Service{
		store:       store,
		issuer:      token.NewIssuer(ring, token.WithClock(o.now), token.WithDefaultTTL(o.defaultTTL)),
		now:         o.now,
		logger:      o.logger.Named("service"),
		attestation: NewAttestationService(ring, store, store, flowOpts...),
		reward:      NewRewardService(store, store, flowOpts...),
		redemption:  NewRedemptionService(store, flowOpts...),
		risk:        scorer,
		janitor:     NewJanitor(store, opts...),
		queue:       q,
	}
	s.pool = worker.NewPool(o.riskWorkers, q, scorer, worker.WithLogger(o.logger.Named("risk-workers")))
	return s
}

// Start launches the risk workers and the retention janitor.
func (s *Service) Start(ctx context.Context) {
	s.pool.Start(ctx)
	s.janitor.Start(ctx)
	s.logger.Info(ctx, "service started",
		logger.Int("risk_workers", s.pool.Size()),
		logger.Int("risk_queue_capacity", s.queue.Cap()),
	)
}

// Stop drains buffered risk events and stops background work. Without a
// deadline on ctx a default shutdown timeout applies.
func (s *Service) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}
	s.janitor.Stop()
	err := s.pool.Shutdown(ctx)
	s.logger.Info(ctx, "service stopped", logger.Int("risk_events_dropped_on_stop", s.queue.Len()))
	return err
}

// Attest verifies and claims a scanned token.
func (s *Service) Attest(ctx context.Context, raw []byte, claimant string) (AttestationResult, error) {
	return s.attestation.Attest(ctx, raw, claimant)
}

// AttestText attests the base64url form of a token.
func (s *Service) AttestText(ctx context.Context, text, claimant string) (AttestationResult, error) {
	return s.attestation.AttestText(ctx, text, claimant)
}

// Spin runs the reward wheel for userID at the current time.
func (s *Service) Spin(ctx context.Context, userID string) (SpinResult, error) {
	return s.reward.Spin(ctx, userID, s.now())
}

// SpinAt runs the reward wheel at an explicit time.
func (s *Service) SpinAt(ctx context.Context, userID string, now time.Time) (SpinResult, error) {
	return s.reward.Spin(ctx, userID, now)
}

// CooldownStatus reports whether userID may spin now and from when.
func (s *Service) CooldownStatus(ctx context.Context, userID string) (SpinStatus, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return s.reward.Status(ctx, userID, s.now())
}

// Redeem redeems a coupon.
func (s *Service) Redeem(ctx context.Context, code string) (CouponView, error) {
	return s.redemption.Redeem(ctx, code)
}

// Coupon returns one coupon.
func (s *Service) Coupon(ctx context.Context, code string) (CouponView, error) {
	return s.redemption.Get(ctx, code)
}

// CouponsByOwner lists an owner's coupons.
func (s *Service) CouponsByOwner(ctx context.Context, ownerID string) ([]CouponView, error) {
	return s.redemption.ListByOwner(ctx, ownerID)
}

// IssueToken mints a signed token.
func (s *Service) IssueToken(ctx context.Context, req token.Request) (token.Issued, error) {
	if !req.Type.Valid() {
		return token.Issued{}, fmt.Errorf("%w: %d", token.ErrUnknownType, req.Type)
	}
	if req.Type.UserBound() && req.Subject == "" && req.OwnerID == "" {
		return token.Issued{}, fmt.Errorf("%w: %s tokens need a subject", ErrInvalidRequest, req.Type)
	}
	issued, err := s.issuer.Issue(ctx, req)
	if err != nil {
		return token.Issued{}, err
	}
	metrics.RecordTokenMinted(req.Type.String())
	s.logger.Debug(ctx, "token minted",
		logger.String("type", req.Type.String()),
		logger.String("event_id", issued.Payload.EventID.String()),
		logger.Time("expires_at", issued.Payload.ExpiresAt),
	)
	return issued, nil
}

// RiskProfile returns the cached risk profile; recompute rebuilds it first.
func (s *Service) RiskProfile(ctx context.Context, userID string, recompute bool) (risk.Profile, error) {
	if recompute {
		return s.risk.Recompute(ctx, userID)
	}
	return s.risk.Profile(ctx, userID)
}

// Catalog returns the prize catalog.
func (s *Service) Catalog() *prize.Catalog { return s.reward.Catalog() }

// Sweep runs one retention pass now.
func (s *Service) Sweep(ctx context.Context) (PruneReport, error) { return s.janitor.Sweep(ctx) }

// StatsSnapshot is the payload of the stats endpoint.
type StatsSnapshot struct {
	Ledgers       repository.Stats `json:"ledgers"`
	RiskQueueLen  int              `json:"risk_queue_len"`
	RiskQueueCap  int              `json:"risk_queue_cap"`
	RiskWorkers   int              `json:"risk_workers"`
	CatalogPrizes int              `json:"catalog_prizes"`
}

// Stats reports ledger sizes and risk pipeline state.
func (s *Service) Stats(ctx context.Context) (StatsSnapshot, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return StatsSnapshot{}, err
	}
	return StatsSnapshot{
		Ledgers:       st,
		RiskQueueLen:  s.queue.Len(),
		RiskQueueCap:  s.queue.Cap(),
		RiskWorkers:   s.pool.Size(),
		CatalogPrizes: s.Catalog().Len(),
	}, nil
}

// Ping checks that the store answers.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return errors.Join(repository.ErrUnavailable, err)
	}
	return nil
}
