package main

import (
	"fmt"
	"time"

	"github.com/okian/attest/internal/config"
	"github.com/okian/attest/internal/domain/token"
	"github.com/spf13/cobra"
)

func newMintCmd() *cobra.Command {
	var (
		typ     string
		subject string
		owner   string
		ttl     time.Duration
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a signed token with the configured secret",
		Long: `Mint prints the base64url form of a freshly signed token, ready to be
rendered as a QR code. The token is not recorded anywhere; it becomes
single use once it is attested.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			t, err := token.ParseType(typ)
			if err != nil {
				return err
			}
			ring, err := newKeyring(cfg)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.TokenDefaultTTL
			}
			if t.UserBound() && subject == "" && owner == "" {
				return fmt.Errorf("%s tokens need --subject or --owner", t)
			}
			req := token.Request{Type: t, Subject: subject, OwnerID: owner, TTL: ttl}
			issued, err := token.NewIssuer(ring).Issue(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if verbose {
				p := issued.Payload
				_, _ = fmt.Fprintf(out, "event_id:   %s\ntype:       %s\nsubject:    %s\nissued_at:  %s\nexpires_at: %s\n",
					p.EventID, p.Type, p.Subject, p.IssuedAt.Format(time.RFC3339Nano), p.ExpiresAt.Format(time.RFC3339Nano))
			}
			_, _ = fmt.Fprintln(out, issued.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", "visit", "token type: visit, promo, tip, referral, table, menu, custom")
	cmd.Flags().StringVar(&subject, "subject", "", "subject the token attests")
	cmd.Flags().StringVar(&owner, "owner", "", "owner used as the subject when --subject is empty")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default token_default_ttl)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the decoded payload too")
	return cmd
}
