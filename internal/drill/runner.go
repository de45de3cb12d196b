package drill

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/attest/pkg/logger"
)

type mintResponse struct {
	Token   string `json:"token"`
	EventID string `json:"event_id"`
}

type spinResponse struct {
	Status string `json:"status"`
}

// Run executes the drill. A non-nil error wrapping ErrViolation means the
// service broke a guarantee; other errors mean the drill could not run.
func Run(ctx context.Context, cfg Config) (Report, error) {
	cfg.normalize()
	log := logger.Get().Named("drill")
	rep := Report{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting drill",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("tokens", cfg.Tokens),
		logger.Int("replays", cfg.Replays),
		logger.Int("spins", cfg.Spins),
		logger.Int("workers", cfg.Workers),
	)

	status, _, err := c.get(ctx, "/healthz", nil)
	if err != nil {
		return rep, fmt.Errorf("service health check failed: %w", err)
	}
	if status != http.StatusOK {
		return rep, fmt.Errorf("service health check failed: status %d", status)
	}

	tokens, err := mintTokens(ctx, c, cfg)
	if err != nil {
		return rep, fmt.Errorf("mint tokens: %w", err)
	}
	rep.TokensMinted = len(tokens)

	replayTokens(ctx, c, cfg, tokens, &rep)
	if cfg.Verbose {
		log.Info(ctx, "replay phase done",
			logger.Int("claimed", rep.Claimed),
			logger.Int("already_used", rep.AlreadyUsed),
			logger.Int("unexpected", rep.Unexpected),
		)
	}

	raceSpins(ctx, c, cfg, &rep)
	rep.Duration = time.Since(rep.StartTime)

	if !rep.OK() {
		return rep, fmt.Errorf("%w: %+v", ErrViolation, rep)
	}
	log.Info(ctx, "drill passed", logger.Duration("duration", rep.Duration))
	return rep, nil
}

func mintTokens(ctx context.Context, c *client, cfg Config) ([]mintResponse, error) {
	out := make([]mintResponse, 0, cfg.Tokens)
	for i := range cfg.Tokens {
		var m mintResponse
		status, code, err := c.post(ctx, "/v1/tokens", map[string]string{
			"type":    "visit",
			"subject": fmt.Sprintf("drill-guest-%d", i),
			"ttl":     "10m",
		}, &m)
		if err != nil {
			return nil, err
		}
		if status != http.StatusCreated {
			return nil, fmt.Errorf("mint returned %d %s", status, code)
		}
		out = append(out, m)
	}
	return out, nil
}

type submission struct {
	token    int
	claimant string
}

// replayTokens submits every token cfg.Replays times from distinct claimants
// and tallies how often each one was claimed.
func replayTokens(ctx context.Context, c *client, cfg Config, tokens []mintResponse, rep *Report) {
	wins := make([]int32, len(tokens))
	var (
		submitted, claimed, used, unexpected int64
		wg                                   sync.WaitGroup
	)

	jobs := make(chan submission, cfg.Workers*2)
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				status, code, err := c.post(ctx, "/v1/attest", map[string]string{
					"token":    tokens[job.token].Token,
					"claimant": job.claimant,
				}, nil)
				atomic.AddInt64(&submitted, 1)
				switch {
				case err == nil && status == http.StatusOK:
					atomic.AddInt32(&wins[job.token], 1)
					atomic.AddInt64(&claimed, 1)
				case err == nil && status == http.StatusConflict && code == "ALREADY_USED":
					atomic.AddInt64(&used, 1)
				default:
					atomic.AddInt64(&unexpected, 1)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		// Interleave replays so submissions of one token overlap in time.
		for r := range cfg.Replays {
			for i := range tokens {
				select {
				case <-ctx.Done():
					return
				case jobs <- submission{token: i, claimant: fmt.Sprintf("drill-device-%d", r)}:
				}
			}
		}
	}()
	wg.Wait()

	rep.Submissions = int(submitted)
	rep.Claimed = int(claimed)
	rep.AlreadyUsed = int(used)
	rep.Unexpected = int(unexpected)
	for _, n := range wins {
		switch {
		case n == 0:
			rep.UnclaimedTokens++
		case n > 1:
			rep.DoubleClaims++
		}
	}
}

// raceSpins fires cfg.Spins simultaneous spins for a user who never spun.
func raceSpins(ctx context.Context, c *client, cfg Config, rep *Report) {
	rep.SpinUser = "drill-" + uuid.NewString()
	var (
		wins, denied, fails int64
		wg                  sync.WaitGroup
		start               = make(chan struct{})
	)
	for range cfg.Spins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			var res spinResponse
			status, _, err := c.post(ctx, "/v1/spins", map[string]string{"user_id": rep.SpinUser}, &res)
			switch {
			case err != nil || status != http.StatusOK:
				atomic.AddInt64(&fails, 1)
			case res.Status == "RESULT":
				atomic.AddInt64(&wins, 1)
			case res.Status == "DENIED":
				atomic.AddInt64(&denied, 1)
			default:
				atomic.AddInt64(&fails, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	rep.SpinWins = int(wins)
	rep.SpinDenied = int(denied)
	rep.SpinFails = int(fails)
}
