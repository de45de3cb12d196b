package main

import (
	"context"
	"fmt"

	"github.com/okian/attest/internal/adapters/repository"
	service "github.com/okian/attest/internal/app"
	"github.com/okian/attest/internal/config"
	"github.com/okian/attest/internal/domain/prize"
	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/internal/domain/token"
	"github.com/okian/attest/pkg/logger"
)

// openStore opens the configured ledger backend.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemoryStore(), nil
	case config.DriverSQLite:
		st, err := repository.OpenSQL(ctx, cfg.StorePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: unknown store_driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
	}
}

// newKeyring builds the signing keyring: the current secret first, then the
// rotated-out ones still accepted for verification.
func newKeyring(cfg *config.Config) (*token.Keyring, error) {
	prev := make([][]byte, 0, len(cfg.PreviousSecrets()))
	for _, s := range cfg.PreviousSecrets() {
		prev = append(prev, []byte(s))
	}
	return token.NewKeyring([]byte(cfg.TokenSecret), prev...)
}

func loadCatalog(cfg *config.Config) (*prize.Catalog, error) {
	if cfg.CatalogPath == "" {
		return prize.Default(), nil
	}
	return prize.LoadFile(cfg.CatalogPath)
}

// serviceOptions translates configuration into service options.
func serviceOptions(cfg *config.Config, log logger.Logger) ([]service.Option, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	policy := risk.NewWeightedPolicy(risk.WithWeights(cfg.RiskWeights), risk.WithWindow(cfg.RiskWindow))

	return []service.Option{
		service.WithLogger(log),
		service.WithCatalog(catalog),
		service.WithCooldownPeriod(cfg.CooldownPeriod),
		service.WithCouponValidity(cfg.CouponValidity),
		service.WithIssueAttempts(cfg.IssueAttempts),
		service.WithDefaultTTL(cfg.TokenDefaultTTL),
		service.WithRiskPolicy(policy),
		service.WithRiskQueueSize(cfg.RiskQueueSize),
		service.WithRiskWorkers(cfg.RiskWorkerCount),
		service.WithRetention(cfg.ClaimRetention, cfg.CouponRetention),
		service.WithJanitorInterval(cfg.JanitorInterval),
	}, nil
}
