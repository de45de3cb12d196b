package service

import (
	"time"

	"github.com/okian/attest/internal/domain/prize"
	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/pkg/logger"
)

// Defaults for reward and retention policy.
const (
	DefaultCooldownPeriod  = 7 * 24 * time.Hour
	DefaultCouponValidity  = 7 * 24 * time.Hour
	DefaultIssueAttempts   = 3
	DefaultClaimRetention  = 30 * 24 * time.Hour
	DefaultCouponRetention = 30 * 24 * time.Hour
	DefaultJanitorInterval = 10 * time.Minute
	defaultRiskQueueSize   = 10_000
	defaultShutdownTimeout = 10 * time.Second
)

type options struct {
	logger   logger.Logger
	now      func() time.Time
	observer Observer
	retry    retryPolicy

	catalog        *prize.Catalog
	random         prize.RandomSource
	cooldownPeriod time.Duration
	couponValidity time.Duration
	issueAttempts  int

	defaultTTL time.Duration

	policy        risk.Policy
	riskQueueSize int
	riskWorkers   int

	claimRetention  time.Duration
	couponRetention time.Duration
	janitorInterval time.Duration
}

func buildOptions(opts []Option) options {
	o := options{
		now:             time.Now,
		observer:        nopObserver{},
		retry:           defaultRetry(),
		random:          prize.SystemSource{},
		cooldownPeriod:  DefaultCooldownPeriod,
		couponValidity:  DefaultCouponValidity,
		issueAttempts:   DefaultIssueAttempts,
		defaultTTL:      5 * time.Minute,
		riskQueueSize:   defaultRiskQueueSize,
		claimRetention:  DefaultClaimRetention,
		couponRetention: DefaultCouponRetention,
		janitorInterval: DefaultJanitorInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}
	if o.catalog == nil {
		o.catalog = prize.Default()
	}
	if o.policy == nil {
		o.policy = risk.NewWeightedPolicy()
	}
	return o
}

// Option applies a configuration option to the services.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithObserver routes risk observations to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithRetry sets how often a transient ledger failure is attempted in total
// and the base backoff between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.retry.attempts = attempts
		}
		if backoff >= 0 {
			o.retry.backoff = backoff
		}
	}
}

// WithCatalog sets the prize catalog.
func WithCatalog(c *prize.Catalog) Option {
	return func(o *options) {
		if c != nil {
			o.catalog = c
		}
	}
}

// WithRandomSource sets the prize draw source.
func WithRandomSource(src prize.RandomSource) Option {
	return func(o *options) {
		if src != nil {
			o.random = src
		}
	}
}

// WithCooldownPeriod sets the minimum interval between spins.
func WithCooldownPeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cooldownPeriod = d
		}
	}
}

// WithCouponValidity sets how long an issued coupon stays redeemable.
func WithCouponValidity(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.couponValidity = d
		}
	}
}

// WithIssueAttempts bounds coupon issuance attempts after a cooldown advance.
func WithIssueAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.issueAttempts = n
		}
	}
}

// WithDefaultTTL sets the token lifetime for requests without one.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultTTL = d
		}
	}
}

// WithRiskPolicy replaces the scoring policy.
func WithRiskPolicy(p risk.Policy) Option {
	return func(o *options) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithRiskQueueSize bounds the risk event queue.
func WithRiskQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.riskQueueSize = n
		}
	}
}

// WithRiskWorkers sets the number of risk workers.
func WithRiskWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.riskWorkers = n
		}
	}
}

// WithRetention sets how long consumed claims and expired coupons are kept.
func WithRetention(claims, coupons time.Duration) Option {
	return func(o *options) {
		if claims >= 0 {
			o.claimRetention = claims
		}
		if coupons >= 0 {
			o.couponRetention = coupons
		}
	}
}

// WithJanitorInterval sets how often retention pruning runs.
func WithJanitorInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.janitorInterval = d
		}
	}
}
