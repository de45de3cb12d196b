// Package drill exercises a running attestd over HTTP and checks the
// exactly-once guarantees end to end: every token claimed once, every
// concurrent spin burst yielding one win.
package drill

import (
	"errors"
	"runtime"
	"time"
)

// ErrViolation is returned when the service broke an exactly-once guarantee.
var ErrViolation = errors.New("exactly-once violation")

// Config holds drill parameters.
type Config struct {
	BaseURL string        // Base URL of the service
	Tokens  int           // Tokens to mint
	Replays int           // Concurrent submissions per token
	Spins   int           // Concurrent spins for one fresh user
	Workers int           // Concurrent HTTP workers
	Timeout time.Duration // Per-request timeout
	Verbose bool
}

// DefaultConfig returns a small drill against a local service.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:9080",
		Tokens:  100,
		Replays: 8,
		Spins:   16,
		Workers: runtime.NumCPU() * 2,
		Timeout: 10 * time.Second,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Tokens < 1 {
		c.Tokens = d.Tokens
	}
	if c.Replays < 1 {
		c.Replays = d.Replays
	}
	if c.Spins < 1 {
		c.Spins = d.Spins
	}
	if c.Workers < 1 {
		c.Workers = d.Workers
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
}

// Report summarises a drill.
type Report struct {
	TokensMinted    int
	Submissions     int
	Claimed         int
	AlreadyUsed     int
	Unexpected      int
	DoubleClaims    int // tokens claimed more than once
	UnclaimedTokens int // tokens nobody managed to claim

	SpinUser   string
	SpinWins   int
	SpinDenied int
	SpinFails  int

	StartTime time.Time
	Duration  time.Duration
}

// OK reports whether no guarantee was broken.
func (r Report) OK() bool {
	return r.DoubleClaims == 0 && r.UnclaimedTokens == 0 && r.Unexpected == 0 &&
		r.SpinWins == 1 && r.SpinFails == 0
}
