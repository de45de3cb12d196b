package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/attest/internal/adapters/mq/queue"
	"github.com/okian/attest/internal/adapters/repository"
	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/pkg/logger"
)

// RiskScorer maintains per-user risk profiles. Observations arrive through
// OnEvent and are scored by Handle, normally on a worker pool.
type RiskScorer struct {
	ledger repository.RiskLedger
	queue  queue.Queue
	policy risk.Policy
	now    func() time.Time
	logger logger.Logger
}

var _ Observer = (*RiskScorer)(nil)

// NewRiskScorer creates a scorer. With a nil queue OnEvent scores inline.
func NewRiskScorer(ledger repository.RiskLedger, q queue.Queue, opts ...Option) *RiskScorer {
	o := buildOptions(opts)
	return &RiskScorer{
		ledger: ledger,
		queue:  q,
		policy: o.policy,
		now:    o.now,
		logger: o.logger.Named("risk"),
	}
}

// OnEvent hands e to the queue. A full or closed queue drops the event; the
// request that produced it is never failed or delayed.
func (r *RiskScorer) OnEvent(ctx context.Context, e risk.Event) {
	if r.queue == nil {
		if err := r.Handle(ctx, e); err != nil {
			r.logger.Warn(ctx, "risk event not scored", logger.String("user", e.UserID), logger.Error(err))
		}
		return
	}
	// The request context may be cancelled as soon as the response is written.
	if err := r.queue.Enqueue(context.WithoutCancel(ctx), e); err != nil {
		r.logger.Debug(ctx, "risk event dropped",
			logger.String("user", e.UserID),
			logger.String("kind", string(e.Kind)),
			logger.Error(err),
		)
	}
}

// Handle records e and adds its weight to the user's cached score.
func (r *RiskScorer) Handle(ctx context.Context, e risk.Event) error {
	if e.UserID == "" {
		return fmt.Errorf("%w: risk event without user", ErrInvalidRequest)
	}
	if e.At.IsZero() {
		e.At = r.now()
	}

	var recent []risk.Event
	if lb := r.policy.Lookback(); lb > 0 {
		from := e.At.Add(-lb)
		history, err := r.ledger.Events(ctx, e.UserID, from)
		if err != nil {
			return err
		}
		for _, h := range history {
			if h.At.After(from) && !h.At.After(e.At) {
				recent = append(recent, h)
			}
		}
	}

	if err := r.ledger.AppendEvent(ctx, e); err != nil {
		return err
	}
	p, err := r.ledger.AddScore(ctx, e.UserID, r.policy.Weight(e, recent), e.At)
	if err != nil {
		return err
	}
	if lvl := risk.LevelOf(p.Score); lvl != risk.LevelLow {
		r.logger.Debug(ctx, "risk level raised",
			logger.String("user", e.UserID),
			logger.String("level", string(lvl)),
			logger.Float64("score", p.Score),
		)
	}
	return nil
}

// Profile returns the cached profile. Users without history are low risk.
func (r *RiskScorer) Profile(ctx context.Context, userID string) (risk.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return risk.Profile{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	p, err := r.ledger.Profile(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return risk.Profile{UserID: userID, Level: risk.LevelLow}, nil
	}
	if err != nil {
		return risk.Profile{}, err
	}
	p.Level = risk.LevelOf(p.Score)
	return p, nil
}

// Recompute rebuilds the profile from the history inside the policy window,
// discarding any drift in the cached value.
func (r *RiskScorer) Recompute(ctx context.Context, userID string) (risk.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return risk.Profile{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	now := r.now()
	history, err := r.ledger.Events(ctx, userID, now.Add(-r.policy.Window()))
	if err != nil {
		return risk.Profile{}, err
	}
	score := risk.Score(r.policy, history, now)
	p := risk.Profile{UserID: userID, Score: score, Level: risk.LevelOf(score), LastUpdatedAt: now.UTC()}
	if err := r.ledger.SaveProfile(ctx, p); err != nil {
		return risk.Profile{}, err
	}
	return p, nil
}
