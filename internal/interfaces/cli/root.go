package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"kilometers.ai/kmpkg/internal/config"
	"kilometers.ai/kmpkg/internal/interfaces/di"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// CLIContainer holds the dependencies shared by the CLI commands.
// Container is built in the root PersistentPreRunE once flags are parsed.
type CLIContainer struct {
	Container *di.Container
	LogOutput io.Writer
}

// NewRootCommand creates the kmpkg command tree
func NewRootCommand(app *CLIContainer) *cobra.Command {
	var (
		configPath string
		debugMode  bool
		logJSON    bool
		pluginPath string
	)

	rootCmd := &cobra.Command{
		Use:   "kmpkg",
		Short: "Kilometers plugin package manager",
		Long: `kmpkg installs, uninstalls and reinstalls archive-packaged plugins.

Plugin archives are read from the plugin directory, extracted, and installed
under their plugin id. Declared config directories are relocated to the config
root and every installed plugin is tracked in a JSON registry.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Container != nil {
				return nil
			}

			container, err := di.NewContainer(di.Options{
				ConfigPath: configPath,
				LogOutput:  app.LogOutput,
				Override: func(cfg *config.Config) {
					if cmd.Flags().Changed("debug") {
						cfg.Debug = debugMode
					}
					if cmd.Flags().Changed("log-json") {
						cfg.LogJSON = logJSON
					}
					if cmd.Flags().Changed("plugin-path") {
						if cfg.InstallPath == cfg.PluginPath {
							cfg.InstallPath = pluginPath
						}
						cfg.PluginPath = pluginPath
					}
				},
			})
			if err != nil {
				return err
			}

			app.Container = container
			return nil
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default is ./kmpkg.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&pluginPath, "plugin-path", "", "Directory holding plugin archives")

	rootCmd.AddCommand(NewInstallCommand(app))
	rootCmd.AddCommand(NewUninstallCommand(app))
	rootCmd.AddCommand(NewReinstallCommand(app))
	rootCmd.AddCommand(NewListCommand(app))
	rootCmd.AddCommand(NewAvailableCommand(app))
	rootCmd.AddCommand(NewInitCommand(app))
	rootCmd.AddCommand(NewConfigCommand(app))

	return rootCmd
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// Execute runs the root command and exits non-zero on failure
func Execute(ctx context.Context) {
	rootCmd := NewRootCommand(&CLIContainer{LogOutput: os.Stderr})

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
