package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/parleybot/parley/pkg/parley/assistant"
)

// newConfigCmd creates the `parley config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Secrets never reach stdout.
			display := *cfg
			if display.Discord.Token != "" {
				display.Discord.Token = "(set)"
			}
			if display.API.APIKey != "" {
				display.API.APIKey = "(set)"
			}
			if display.TTS.APIKey != "" {
				display.TTS.APIKey = "(set)"
			}

			out, err := yaml.Marshal(&display)
			if err != nil {
				return fmt.Errorf("rendering config: %w", err)
			}
			fmt.Printf("# %s\n%s", path, out)
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file for errors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Root().PersistentFlags().GetString("config")
			if path == "" {
				path = defaultConfigPath
			}
			if _, err := assistant.LoadConfigFromFile(path); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			fmt.Printf("%s is valid.\n", path)
			return nil
		},
	}
}
