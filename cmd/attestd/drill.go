package main

import (
	"fmt"

	"github.com/okian/attest/internal/drill"
	"github.com/spf13/cobra"
)

func newDrillCmd() *cobra.Command {
	cfg := drill.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Check exactly-once claiming and spinning against a running service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := drill.Run(cmd.Context(), cfg)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, `Drill summary
   Tokens minted:   %d
   Submissions:     %d
   Claimed:         %d
   Already used:    %d
   Unexpected:      %d
   Double claims:   %d
   Unclaimed:       %d
   Spin wins:       %d (user %s)
   Spin denied:     %d
   Spin failures:   %d
   Duration:        %s
`, rep.TokensMinted, rep.Submissions, rep.Claimed, rep.AlreadyUsed, rep.Unexpected,
				rep.DoubleClaims, rep.UnclaimedTokens, rep.SpinWins, rep.SpinUser,
				rep.SpinDenied, rep.SpinFails, rep.Duration)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.IntVar(&cfg.Tokens, "tokens", cfg.Tokens, "number of tokens to mint")
	f.IntVar(&cfg.Replays, "replays", cfg.Replays, "concurrent submissions per token")
	f.IntVar(&cfg.Spins, "spins", cfg.Spins, "concurrent spins for one fresh user")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent HTTP workers")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request timeout")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log phase results")
	return cmd
}
