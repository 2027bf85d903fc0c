package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command
func NewConfigCommand(app *CLIContainer) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration settings",
	}

	configCmd.AddCommand(NewConfigShowCommand(app))
	configCmd.AddCommand(NewConfigPathCommand(app))

	return configCmd
}

// NewConfigShowCommand creates the show subcommand
func NewConfigShowCommand(app *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := app.Container.Config.YAML()
			if err != nil {
				return fmt.Errorf("failed to render configuration: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

// NewConfigPathCommand creates the path subcommand
func NewConfigPathCommand(app *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show which config file was loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source := app.Container.Config.Source
			if source == "" {
				source = "(defaults and environment only)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), source)
			return nil
		},
	}
}
