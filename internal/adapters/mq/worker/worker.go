package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/pkg/logger"
	"github.com/okian/attest/pkg/metrics"
)

const defaultHandleTimeout = 5 * time.Second

// Handler processes one risk observation.
type Handler interface {
	Handle(ctx context.Context, e risk.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e risk.Event) error

func (f HandlerFunc) Handle(ctx context.Context, e risk.Event) error { return f(ctx, e) }

// Source is where workers read events from.
type Source interface {
	Dequeue() <-chan risk.Event
	Close() error
}

// Pool runs a fixed number of workers over one source.
type Pool struct {
	source        Source
	handler       Handler
	size          int
	handleTimeout time.Duration
	logger        logger.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a pool of size workers. Non-positive sizes use NumCPU.
func NewPool(size int, source Source, handler Handler, opts ...Option) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		source:        source,
		handler:       handler,
		size:          size,
		handleTimeout: defaultHandleTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("risk-workers")
	}
	return p
}

// Start launches the workers. It is a no-op when already started.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.started = true
	for i := range p.size {
		p.wg.Add(1)
		go p.run(ctx, p.logger.Named("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateRiskWorkerCount(p.size)
}

func (p *Pool) run(ctx context.Context, log logger.Logger) {
	defer p.wg.Done()
	events := p.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			p.process(ctx, log, e)
		}
	}
}

func (p *Pool) process(ctx context.Context, log logger.Logger, e risk.Event) {
	start := time.Now()
	hctx, cancel := context.WithTimeout(ctx, p.handleTimeout)
	defer cancel()
	if err := p.handler.Handle(hctx, e); err != nil {
		metrics.RecordRiskWorkerError()
		log.Error(ctx, "risk event failed",
			logger.String("user", e.UserID),
			logger.String("kind", string(e.Kind)),
			logger.Error(err),
		)
		return
	}
	metrics.RecordRiskProcessed(time.Since(start))
}

// Shutdown closes the source and waits for workers to drain what is already
// buffered. When ctx expires first the workers are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if err := p.source.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	defer metrics.UpdateRiskWorkerCount(0)
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn(ctx, "risk workers cancelled before draining")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }
