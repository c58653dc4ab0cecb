package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/finance-advisor/services/advisor"
)

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the advice cache",
	}

	var contextJSON string
	keyCmd := &cobra.Command{
		Use:   "key <question>",
		Short: "Print the cache key a question maps to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(args[0], contextJSON, "")
			if err != nil {
				return err
			}
			key, err := advisor.CacheKey(req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	keyCmd.Flags().StringVar(&contextJSON, "context", "", "financial context as a JSON object")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the configured cache backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := c.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(cmd.Context()) }()

			current := deps.Settings.Current()
			stats := deps.Cache.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Backend: %s\nEnabled: %t\nTTL:     %s\n",
				stats.Backend, current.CacheEnabled, current.CacheTTL)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := c.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(cmd.Context()) }()

			if err := deps.Cache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All cache entries cleared.")
			return nil
		},
	}

	cmd.AddCommand(keyCmd, statsCmd, clearCmd)
	return cmd
}
