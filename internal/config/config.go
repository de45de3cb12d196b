// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Defaults live in New; Load layers file and environment on top.
//   - Durations accept Go syntax ("168h", "30s").
//   - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported ledger backends.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

const minSecretLen = 16

// maxTokenTTL mirrors the token lifetime cap.
const maxTokenTTL = 366 * 24 * time.Hour

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the ledger backend: sqlite or memory.
	StoreDriver string `koanf:"store_driver"`
	// StorePath is the SQLite database file.
	StorePath string `koanf:"store_path"`

	// TokenSecret signs newly minted tokens and verifies scanned ones.
	TokenSecret string `koanf:"token_secret"`
	// TokenPreviousSecrets is a comma separated list still accepted for verification.
	TokenPreviousSecrets string `koanf:"token_previous_secrets"`
	// TokenDefaultTTL applies when an issuance request carries no ttl.
	TokenDefaultTTL time.Duration `koanf:"token_default_ttl"`

	// CooldownPeriod is the minimum interval between two spins of one user.
	CooldownPeriod time.Duration `koanf:"cooldown_period"`
	// CouponValidity is how long an issued coupon stays redeemable.
	CouponValidity time.Duration `koanf:"coupon_validity"`
	// IssueAttempts bounds coupon issuance attempts once a cooldown was advanced.
	IssueAttempts int `koanf:"issue_attempts"`

	// CatalogPath points at a TOML prize catalog. Empty uses the built-in catalog.
	CatalogPath string `koanf:"catalog_path"`

	// ClaimRetention keeps consumed token records this long past token expiry.
	ClaimRetention time.Duration `koanf:"claim_retention"`
	// CouponRetention keeps expired coupons this long so their codes stay reserved.
	CouponRetention time.Duration `koanf:"coupon_retention"`
	// JanitorInterval is how often retention pruning runs.
	JanitorInterval time.Duration `koanf:"janitor_interval"`

	// RiskQueueSize bounds the in-memory risk event queue.
	RiskQueueSize int `koanf:"risk_queue_size"`
	// RiskWorkerCount sets the number of risk workers.
	RiskWorkerCount int `koanf:"risk_worker_count"`
	// RiskWindow is the history window a risk score is computed over.
	RiskWindow time.Duration `koanf:"risk_window"`
	// RiskWeights maps risk event kinds to their score contribution.
	RiskWeights map[string]float64 `koanf:"risk_weights"`

	// AttestRatePerMinute and AttestRateBurst bound scans per client address.
	AttestRatePerMinute float64 `koanf:"attest_rate_per_minute"`
	AttestRateBurst     int     `koanf:"attest_rate_burst"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		StoreDriver:         DriverSQLite,
		StorePath:           "attest.db",
		TokenDefaultTTL:     5 * time.Minute,
		CooldownPeriod:      7 * 24 * time.Hour,
		CouponValidity:      7 * 24 * time.Hour,
		IssueAttempts:       3,
		ClaimRetention:      30 * 24 * time.Hour,
		CouponRetention:     30 * 24 * time.Hour,
		JanitorInterval:     10 * time.Minute,
		RiskQueueSize:       10_000,
		RiskWorkerCount:     runtime.NumCPU(),
		RiskWindow:          30 * 24 * time.Hour,
		RiskWeights:         map[string]float64{},
		AttestRatePerMinute: 120,
		AttestRateBurst:     20,
	}
}

// PreviousSecrets returns the rotated-out secrets in configuration order.
func (c *Config) PreviousSecrets() []string {
	var out []string
	for _, s := range strings.Split(c.TokenPreviousSecrets, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks invariants the service relies on at startup.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case len(c.TokenSecret) < minSecretLen:
		return fmt.Errorf("%w: token_secret must be at least %d bytes", ErrInvalidConfig, minSecretLen)
	case c.CooldownPeriod <= 0:
		return fmt.Errorf("%w: cooldown_period must be positive", ErrInvalidConfig)
	case c.CouponValidity <= 0:
		return fmt.Errorf("%w: coupon_validity must be positive", ErrInvalidConfig)
	case c.TokenDefaultTTL <= 0 || c.TokenDefaultTTL > maxTokenTTL:
		return fmt.Errorf("%w: token_default_ttl must be in (0, %s]", ErrInvalidConfig, maxTokenTTL)
	case c.IssueAttempts < 1:
		return fmt.Errorf("%w: issue_attempts must be at least 1", ErrInvalidConfig)
	}
	for _, s := range c.PreviousSecrets() {
		if len(s) < minSecretLen {
			return fmt.Errorf("%w: every token_previous_secrets entry must be at least %d bytes", ErrInvalidConfig, minSecretLen)
		}
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("%w: store_path required for sqlite driver", ErrInvalidConfig)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
