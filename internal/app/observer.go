package service

import (
	"context"
	"time"

	"github.com/okian/attest/internal/domain/risk"
)

// Observer receives risk observations. Implementations must not block.
type Observer interface {
	OnEvent(ctx context.Context, e risk.Event)
}

type nopObserver struct{}

func (nopObserver) OnEvent(context.Context, risk.Event) {}

func observe(ctx context.Context, o Observer, kind risk.Kind, user, ref string, at time.Time) {
	if user == "" {
		return
	}
	o.OnEvent(ctx, risk.Event{Kind: kind, UserID: user, At: at, Ref: ref})
}
