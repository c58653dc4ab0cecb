package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/upb/finance-advisor/app"
	"github.com/upb/finance-advisor/config"
	"github.com/upb/finance-advisor/internal/observability"
	"go.uber.org/zap"
)

var version = "dev"

// cli carries what every subcommand needs to build the application
type cli struct {
	loadConfig func(ctx context.Context) (*config.Config, error)
	depOpts    []app.Option
	logLevel   string
}

func main() {
	c := &cli{loadConfig: config.New}
	if err := c.rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "advisorctl",
		Short:         "Query and administer the finance advice service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	root.AddCommand(
		c.askCmd(),
		c.cacheCmd(),
		c.settingsCmd(),
		c.tokenCmd(),
	)
	return root
}

// config loads the configuration the same way the server does
func (c *cli) config(ctx context.Context) (*config.Config, error) {
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// dependencies wires the full application; callers must Close it
func (c *cli) dependencies(ctx context.Context) (*app.Dependencies, error) {
	cfg, err := c.config(ctx)
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(c.logLevel, "text")
	if err != nil {
		return nil, err
	}
	logger = logger.WithOptions(zap.WithCaller(false))
	return app.NewDependencies(ctx, cfg, logger, c.depOpts...)
}
