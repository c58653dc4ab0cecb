package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/finance-advisor/middleware"
)

func (c *cli) tokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for the admin endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Auth.AdminJWTSecret == "" {
				return errors.New("ADMIN_JWT_SECRET is not set")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive, got %s", ttl)
			}

			token, err := middleware.NewHMACValidator(cfg.Auth.AdminJWTSecret, cfg.Auth.Issuer).
				IssueToken(subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "advisorctl", "token subject")
	cmd.Flags().StringSliceVar(&roles, "role", []string{middleware.RoleAdmin}, "roles to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
