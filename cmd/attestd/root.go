package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/okian/attest/pkg/logger"
	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:   "attestd",
		Short: "Visit attestation and reward issuance service",
		Long: `attestd verifies single-use signed visit tokens, runs the weekly reward
wheel and redeems the coupons it issues. Configuration comes from an optional
YAML file (ATTEST_CONFIG) and ATTEST_ environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			// Commands reconfigure the logger once their config is known.
			return logger.InitWith(logger.Options{Writer: os.Stderr})
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file loaded before configuration")

	root.AddCommand(newServeCmd(), newMintCmd(), newDrillCmd())
	return root
}

// loadEnvFile loads path into the environment without overriding variables
// already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}
