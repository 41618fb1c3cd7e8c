// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/latchkey/latchkey/internal/config"
)

// TokenPurger clears expired reset-token pairs.
type TokenPurger interface {
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// NewPruneTokensCmd creates the prune-tokens subcommand.
func NewPruneTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune-tokens",
		Short: "Clear expired password reset tokens",
		Long: `Clear reset-token pairs whose expiry has passed. Expired tokens are
already rejected when used; pruning only removes the stale hashes from the
users table. Safe to run from cron while the service is up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return oops.Code("CONFIG_INVALID").
					With("key", "database.url").
					Errorf("database URL is required (--database-url, LATCHKEY_DATABASE__URL or DATABASE_URL)")
			}

			users, err := openUserStore(cmd.Context(), &config.Config{
				Store:    config.StorePostgres,
				Database: cfg.Database,
			})
			if err != nil {
				return err
			}
			defer users.Close()

			return runPruneTokens(cmd, users, time.Now())
		},
	}
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	return cmd
}

func runPruneTokens(cmd *cobra.Command, purger TokenPurger, now time.Time) error {
	n, err := purger.PurgeExpiredResetTokens(cmd.Context(), now)
	if err != nil {
		return oops.Code("PRUNE_TOKENS_FAILED").Wrap(err)
	}
	cmd.Printf("Cleared %d expired reset token(s)\n", n)
	return nil
}
