package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// lifecycleAction runs one single-plugin lifecycle operation
type lifecycleAction func(ctx context.Context, pluginName string) error

// newLifecycleCommand builds install/uninstall/reinstall, which share the [name...] | --all shape
func newLifecycleCommand(
	app *CLIContainer,
	use, short, long, verb string,
	single func(*CLIContainer) lifecycleAction,
	all func(*CLIContainer) func(ctx context.Context) error,
) *cobra.Command {
	var allPlugins bool

	cmd := &cobra.Command{
		Use:   use + " [plugin-name...]",
		Short: short,
		Long:  long,
		Args: func(cmd *cobra.Command, args []string) error {
			if allPlugins && len(args) > 0 {
				return errors.New("plugin names cannot be combined with --all")
			}
			if !allPlugins && len(args) == 0 {
				return errors.New("requires at least one plugin name or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return app.Container.Run(cmd.Context(), func(ctx context.Context) error {
				if allPlugins {
					if err := all(app)(ctx); err != nil {
						return err
					}
					fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("%s all plugins", verb)))
					return nil
				}

				action := single(app)
				for _, name := range args {
					if err := action(ctx, name); err != nil {
						return fmt.Errorf("%s %s: %w", use, name, err)
					}
					fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("%s %s", verb, name)))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&allPlugins, "all", "a", false, "Apply to every plugin")
	return cmd
}

// NewInstallCommand creates the install command
func NewInstallCommand(app *CLIContainer) *cobra.Command {
	cmd := newLifecycleCommand(app,
		"install",
		"Install plugins from their archives",
		`Install one or more plugins from <plugin-path>/<name><archive-ext>.

A plugin whose id is already registered is skipped. With --all every archive
in the plugin directory is installed in directory order.`,
		"Processed",
		func(a *CLIContainer) lifecycleAction { return a.Container.Lifecycle.Install },
		func(a *CLIContainer) func(ctx context.Context) error { return a.Container.Lifecycle.InstallAll },
	)
	cmd.Example = `  # Install a single plugin archive
  kmpkg install foo

  # Install every archive in the plugin directory
  kmpkg install --all`
	return cmd
}

// NewUninstallCommand creates the uninstall command
func NewUninstallCommand(app *CLIContainer) *cobra.Command {
	return newLifecycleCommand(app,
		"uninstall",
		"Uninstall plugins",
		`Remove the installation and config directories of every registered plugin
with the given name and drop it from the registry.`,
		"Processed",
		func(a *CLIContainer) lifecycleAction { return a.Container.Lifecycle.Uninstall },
		func(a *CLIContainer) func(ctx context.Context) error { return a.Container.Lifecycle.UninstallAll },
	)
}

// NewReinstallCommand creates the reinstall command
func NewReinstallCommand(app *CLIContainer) *cobra.Command {
	return newLifecycleCommand(app,
		"reinstall",
		"Uninstall and install plugins again",
		`Uninstall then install the named plugins from their archives.`,
		"Reinstalled",
		func(a *CLIContainer) lifecycleAction { return a.Container.Lifecycle.Reinstall },
		func(a *CLIContainer) func(ctx context.Context) error { return a.Container.Lifecycle.ReinstallAll },
	)
}

// NewListCommand creates the list command
func NewListCommand(app *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return app.Container.Run(cmd.Context(), func(ctx context.Context) error {
				plugins, err := app.Container.Lifecycle.List(ctx)
				if err != nil {
					return err
				}

				if len(plugins) == 0 {
					fmt.Fprintln(out, warnStyle.Render("No installed plugin"))
					return nil
				}

				t := table.NewWriter()
				t.SetStyle(table.StyleLight)
				t.SetOutputMirror(out)
				t.AppendHeader(table.Row{"ID", "NAME", "PAYLOAD", "CONFIG"})
				for _, p := range plugins {
					t.AppendRow(table.Row{p.PluginID, p.PluginName, presence(p.PayloadFound), presence(p.ConfigFound)})
				}
				t.Render()
				return nil
			})
		},
	}
}

// NewAvailableCommand creates the available command
func NewAvailableCommand(app *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "available",
		Short: "List plugin archives waiting in the plugin directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return app.Container.Run(cmd.Context(), func(ctx context.Context) error {
				names, err := app.Container.Lifecycle.Available(ctx)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					fmt.Fprintln(out, warnStyle.Render("No plugin archives found"))
					return nil
				}
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			})
		},
	}
}

func presence(found bool) string {
	if found {
		return "present"
	}
	return "-"
}
