package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/finance-advisor/services/advisor"
)

func (c *cli) askCmd() *cobra.Command {
	var (
		provider    string
		contextJSON string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask for financial advice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(args[0], contextJSON, provider)
			if err != nil {
				return err
			}

			deps, err := c.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(cmd.Context()) }()

			advice, err := deps.Advisor.Advise(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(advice)
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "preferred provider (defaults to the configured one)")
	cmd.Flags().StringVar(&contextJSON, "context", "", "financial context as a JSON object")
	return cmd
}

// buildRequest parses the optional JSON context into an advice request
func buildRequest(question, contextJSON, provider string) (advisor.Request, error) {
	req := advisor.Request{Question: question, Provider: provider}
	if contextJSON == "" {
		return req, nil
	}
	if err := json.Unmarshal([]byte(contextJSON), &req.Context); err != nil {
		return advisor.Request{}, fmt.Errorf("--context must be a JSON object: %w", err)
	}
	return req, nil
}
