package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/attest/internal/adapters/http/api"
	"github.com/okian/attest/internal/adapters/http/swagger"
	"github.com/okian/attest/internal/adapters/repository"
	service "github.com/okian/attest/internal/app"
	"github.com/okian/attest/internal/config"
	"github.com/okian/attest/pkg/logger"
	"github.com/okian/attest/pkg/metrics"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Root context with cancel on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.InitWith(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: os.Stdout}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	ring, err := newKeyring(cfg)
	if err != nil {
		return fmt.Errorf("keyring: %w", err)
	}
	opts, err := serviceOptions(cfg, log)
	if err != nil {
		return err
	}
	svc := service.New(store, ring, opts...)
	svc.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()

	go startLedgerMetricsUpdater(ctx, svc)

	apiServer := api.NewServer(svc,
		api.WithLogger(log.Named("http")),
		api.WithRateLimit(api.RateLimit{RequestsPerMinute: cfg.AttestRatePerMinute, Burst: cfg.AttestRateBurst}),
		api.WithDocs(swagger.Register),
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.StoreDriver),
			logger.Int("keys", ring.Len()),
			logger.Int("prizes", svc.Catalog().Len()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%w: %w", api.ErrServe, err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// startLedgerMetricsUpdater refreshes the ledger size gauges.
func startLedgerMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateLedgerMetrics(ctx, svc)
		}
	}
}

func updateLedgerMetrics(ctx context.Context, svc *service.Service) {
	st, err := svc.Stats(ctx)
	if err != nil {
		return
	}
	metrics.UpdateLedgerRows(repository.LedgerClaims, st.Ledgers.Claims)
	metrics.UpdateLedgerRows(repository.LedgerCoupons, st.Ledgers.Coupons)
	metrics.UpdateLedgerRows(repository.LedgerCooldowns, st.Ledgers.CooldownUsers)
	metrics.UpdateLedgerRows(repository.LedgerRisk, st.Ledgers.RiskEvents)
	metrics.UpdateLedgerRows(repository.LedgerIdentity, st.Ledgers.Identities)
	metrics.UpdateRiskQueue(st.RiskQueueLen, st.RiskQueueCap)
}
