// Package worker drains the risk queue with a fixed pool of goroutines.
package worker

import (
	"time"

	"github.com/okian/attest/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithLogger sets a custom logger for the pool and its workers.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithHandleTimeout bounds a single Handle call.
func WithHandleTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.handleTimeout = d
		}
	}
}
