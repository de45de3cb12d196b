package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/attest/internal/adapters/repository"
	"github.com/okian/attest/pkg/logger"
	"github.com/okian/attest/pkg/metrics"
)

// PruneReport counts rows removed by one sweep.
type PruneReport struct {
	Claims     int64 `json:"claims"`
	Coupons    int64 `json:"coupons"`
	RiskEvents int64 `json:"risk_events"`
}

// Janitor periodically drops ledger rows past their retention.
//
// Claims are only pruned once their token has expired, so a pruned eventId
// can never verify again and exactly-once use is preserved.
type Janitor struct {
	store           repository.Store
	now             func() time.Time
	interval        time.Duration
	claimRetention  time.Duration
	couponRetention time.Duration
	riskWindow      time.Duration
	logger          logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor creates a janitor over store.
func NewJanitor(store repository.Store, opts ...Option) *Janitor {
	o := buildOptions(opts)
	return &Janitor{
		store:           store,
		now:             o.now,
		interval:        o.janitorInterval,
		claimRetention:  o.claimRetention,
		couponRetention: o.couponRetention,
		riskWindow:      o.policy.Window(),
		logger:          o.logger.Named("janitor"),
	}
}

// Sweep runs one pruning pass. Each ledger is pruned independently; the
// first error is returned after all three were attempted.
func (j *Janitor) Sweep(ctx context.Context) (PruneReport, error) {
	now := j.now()
	var (
		rep      PruneReport
		firstErr error
	)
	steps := []struct {
		ledger string
		out    *int64
		run    func(context.Context, time.Time) (int64, error)
		cutoff time.Time
	}{
		{repository.LedgerClaims, &rep.Claims, j.store.PruneClaims, now.Add(-j.claimRetention)},
		{repository.LedgerCoupons, &rep.Coupons, j.store.PruneCoupons, now.Add(-j.couponRetention)},
		{repository.LedgerRisk, &rep.RiskEvents, j.store.PruneEvents, now.Add(-j.riskWindow)},
	}
	for _, st := range steps {
		n, err := st.run(ctx, st.cutoff)
		if err != nil {
			j.logger.Warn(ctx, "prune failed", logger.String("ledger", st.ledger), logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		*st.out = n
		metrics.RecordLedgerPruned(st.ledger, n)
	}
	if rep.Claims+rep.Coupons+rep.RiskEvents > 0 {
		j.logger.Info(ctx, "pruned ledgers",
			logger.Int64("claims", rep.Claims),
			logger.Int64("coupons", rep.Coupons),
			logger.Int64("risk_events", rep.RiskEvents),
		)
	}
	return rep, firstErr
}

// Start sweeps every interval until Stop. It is a no-op when running.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	j.done = done
	go func() {
		defer close(done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = j.Sweep(ctx)
			}
		}
	}()
}

// Stop ends the sweep loop and waits for an in-flight sweep.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
