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
	"github.com/okian/attest/pkg/logger"
	"github.com/okian/attest/pkg/metrics"
)

// CouponView is a coupon with its status at the time of the read.
type CouponView struct {
	model.Coupon
	Status model.CouponStatus `json:"status"`
}

func viewOf(c model.Coupon, now time.Time) CouponView {
	return CouponView{Coupon: c, Status: c.Status(now)}
}

// RedemptionService redeems coupons at the counter.
type RedemptionService struct {
	coupons  repository.CouponLedger
	observer Observer
	now      func() time.Time
	retry    retryPolicy
	logger   logger.Logger
}

// NewRedemptionService wires the redemption flow.
func NewRedemptionService(coupons repository.CouponLedger, opts ...Option) *RedemptionService {
	o := buildOptions(opts)
	return &RedemptionService{
		coupons:  coupons,
		observer: o.observer,
		now:      o.now,
		retry:    o.retry,
		logger:   o.logger.Named("redemption"),
	}
}

// Redeem marks code redeemed. Rejections return repository.ErrCouponNotFound,
// repository.ErrCouponExpired or repository.ErrAlreadyRedeemed; the coupon
// is returned alongside the latter two.
//
// A failed redemption is not retried here: a write that committed before its
// error surfaced would be reported as ALREADY_REDEEMED on the second attempt.
func (s *RedemptionService) Redeem(ctx context.Context, code string) (CouponView, error) {
	code = repository.NormalizeCode(code)
	if code == "" {
		return CouponView{}, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}
	now := s.now()

	c, err := s.coupons.Redeem(ctx, code, now)
	switch {
	case err == nil:
		metrics.RecordCouponRedeem("ok")
		s.logger.Info(ctx, "coupon redeemed",
			logger.String("code", code),
			logger.String("owner", c.OwnerID),
			logger.String("prize", c.PrizeID),
		)
		observe(ctx, s.observer, risk.RedeemOK, c.OwnerID, code, now)
		return viewOf(c, now), nil
	case errors.Is(err, repository.ErrUnavailable):
		metrics.RecordCouponRedeem("error")
		s.logger.Error(ctx, "redeem failed", logger.String("code", code), logger.Error(err))
		return CouponView{}, err
	default:
		result := strings.ToLower(Code(err))
		metrics.RecordCouponRedeem(result)
		s.logger.Warn(ctx, "redeem rejected",
			logger.String("code", code),
			logger.String("result", result),
		)
		observe(ctx, s.observer, risk.RedeemRejected, c.OwnerID, code, now)
		if c.Code == "" {
			return CouponView{}, err
		}
		return viewOf(c, now), err
	}
}

// Get returns a coupon with its current status.
func (s *RedemptionService) Get(ctx context.Context, code string) (CouponView, error) {
	code = repository.NormalizeCode(code)
	if code == "" {
		return CouponView{}, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}
	c, err := retryTransient(ctx, s.retry, "coupon_get", func(ctx context.Context) (model.Coupon, error) {
		return s.coupons.Get(ctx, code)
	})
	if err != nil {
		return CouponView{}, err
	}
	return viewOf(c, s.now()), nil
}

// ListByOwner returns the owner's coupons newest first.
func (s *RedemptionService) ListByOwner(ctx context.Context, ownerID string) ([]CouponView, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	list, err := retryTransient(ctx, s.retry, "coupon_list", func(ctx context.Context) ([]model.Coupon, error) {
		return s.coupons.ListByOwner(ctx, ownerID)
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]CouponView, 0, len(list))
	for _, c := range list {
		out = append(out, viewOf(c, now))
	}
	return out, nil
}
