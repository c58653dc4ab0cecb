package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// settingsView is the YAML shape printed by the settings command. It can be
// fed back through SETTINGS_FILE.
type settingsView struct {
	CacheEnabled    bool   `yaml:"cache_enabled"`
	CacheTTL        string `yaml:"cache_ttl"`
	DefaultProvider string `yaml:"default_provider"`
	AutoFallback    bool   `yaml:"auto_fallback"`
	MaxRetries      int    `yaml:"max_retries"`
}

func (c *cli) settingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Print the effective orchestration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := c.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(cmd.Context()) }()

			current := deps.Settings.Current()
			view := settingsView{
				CacheEnabled:    current.CacheEnabled,
				CacheTTL:        current.CacheTTL.String(),
				DefaultProvider: current.DefaultProvider.String(),
				AutoFallback:    current.AutoFallback,
				MaxRetries:      current.MaxRetries,
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(view)
		},
	}
}
