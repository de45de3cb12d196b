package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/attest/internal/adapters/repository"
	"github.com/okian/attest/internal/domain/model"
	"github.com/okian/attest/internal/domain/prize"
	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/pkg/logger"
	"github.com/okian/attest/pkg/metrics"
)

// SpinStatus is the terminal state of a spin.
type SpinStatus string

const (
	SpinReady        SpinStatus = "READY"
	SpinResultStatus SpinStatus = "RESULT"
	SpinDenied       SpinStatus = "DENIED"
)

// SpinResult is what a spin produced. Prize and Coupon are set only when
// Status is RESULT. A denial is a normal outcome, not an error.
type SpinResult struct {
	Status         SpinStatus    `json:"status"`
	Prize          *prize.Prize  `json:"prize,omitempty"`
	Coupon         *model.Coupon `json:"coupon,omitempty"`
	NextEligibleAt time.Time     `json:"next_eligible_at"`
}

// RewardService runs the wheel: cooldown gate, draw, coupon issuance.
type RewardService struct {
	cooldowns repository.CooldownGate
	coupons   repository.CouponLedger
	catalog   *prize.Catalog
	random    prize.RandomSource
	observer  Observer
	retry     retryPolicy
	logger    logger.Logger

	period        time.Duration
	validity      time.Duration
	issueAttempts int
}

// NewRewardService wires the reward flow.
func NewRewardService(cooldowns repository.CooldownGate, coupons repository.CouponLedger, opts ...Option) *RewardService {
	o := buildOptions(opts)
	return &RewardService{
		cooldowns:     cooldowns,
		coupons:       coupons,
		catalog:       o.catalog,
		random:        o.random,
		observer:      o.observer,
		retry:         o.retry,
		logger:        o.logger.Named("reward"),
		period:        o.cooldownPeriod,
		validity:      o.couponValidity,
		issueAttempts: o.issueAttempts,
	}
}

// Spin advances the user's cooldown and, if allowed, draws a prize and
// issues its coupon. The cooldown is advanced before anything is drawn, so a
// denied spin never consumes a prize or a coupon. If issuance keeps failing
// after the advance, the same prize is retried and never redrawn.
func (s *RewardService) Spin(ctx context.Context, userID string, now time.Time) (SpinResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return SpinResult{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}

	decision, err := retryTransient(ctx, s.retry, "try_advance", func(ctx context.Context) (model.CooldownDecision, error) {
		return s.cooldowns.TryAdvance(ctx, userID, now, s.period)
	})
	if err != nil {
		metrics.RecordSpin("error")
		s.logger.Error(ctx, "cooldown advance failed", logger.String("user", userID), logger.Error(err))
		return SpinResult{}, err
	}
	if !decision.Allowed {
		metrics.RecordSpin("denied")
		s.logger.Debug(ctx, "spin denied",
			logger.String("user", userID),
			logger.Time("next_eligible_at", decision.NextEligibleAt),
		)
		observe(ctx, s.observer, risk.SpinDenied, userID, "", now)
		return SpinResult{Status: SpinDenied, NextEligibleAt: decision.NextEligibleAt}, nil
	}

	won := prize.Draw(s.catalog, s.random)
	coupon, err := s.issue(ctx, userID, won, now)
	if err != nil {
		metrics.RecordSpin("error")
		s.logger.Error(ctx, "reward issuance failed; prize owed to user",
			logger.String("user", userID),
			logger.String("prize", won.ID),
			logger.Time("spun_at", now),
			logger.Time("next_eligible_at", decision.NextEligibleAt),
			logger.Error(err),
		)
		return SpinResult{}, fmt.Errorf("%w: user %s prize %s: %w", ErrRewardNotIssued, userID, won.ID, err)
	}

	metrics.RecordSpin("allowed")
	metrics.RecordCouponIssued()
	observe(ctx, s.observer, risk.SpinAllowed, userID, coupon.Code, now)
	return SpinResult{
		Status:         SpinResultStatus,
		Prize:          &won,
		Coupon:         &coupon,
		NextEligibleAt: decision.NextEligibleAt,
	}, nil
}

func (s *RewardService) issue(ctx context.Context, userID string, won prize.Prize, now time.Time) (model.Coupon, error) {
	var lastErr error
	for attempt := 1; attempt <= s.issueAttempts; attempt++ {
		if attempt > 1 {
			metrics.RecordIssueRetry()
			s.logger.Warn(ctx, "retrying coupon issuance",
				logger.String("user", userID),
				logger.String("prize", won.ID),
				logger.Int("attempt", attempt),
				logger.Error(lastErr),
			)
			t := time.NewTimer(s.retry.backoff * time.Duration(attempt-1))
			select {
			case <-ctx.Done():
				t.Stop()
				return model.Coupon{}, fmt.Errorf("%w: %w", lastErr, ctx.Err())
			case <-t.C:
			}
		}
		c, err := s.coupons.Issue(ctx, userID, won.ID, now, s.validity)
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	return model.Coupon{}, lastErr
}

// Status reports when the user may spin next without advancing anything.
func (s *RewardService) Status(ctx context.Context, userID string, now time.Time) (SpinStatus, time.Time, error) {
	next, err := s.cooldowns.Peek(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}
	if now.Before(next) {
		return SpinDenied, next, nil
	}
	return SpinReady, next, nil
}

// Catalog returns the authoritative prize table.
func (s *RewardService) Catalog() *prize.Catalog { return s.catalog }
