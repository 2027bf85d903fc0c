package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command
func NewInitCommand(app *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the plugin directories and an empty registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return app.Container.Run(cmd.Context(), func(ctx context.Context) error {
				cfg := app.Container.Config
				fmt.Fprintf(out, "%s %s\n", labelStyle.Render("plugins: "), cfg.PluginPath)
				fmt.Fprintf(out, "%s %s\n", labelStyle.Render("install: "), cfg.InstallPath)
				fmt.Fprintf(out, "%s %s\n", labelStyle.Render("config:  "), cfg.ConfigPath)
				fmt.Fprintf(out, "%s %s\n", labelStyle.Render("registry:"), cfg.RegistryPath)
				return nil
			})
		},
	}
}
