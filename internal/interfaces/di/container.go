package di

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	"kilometers.ai/kmpkg/internal/application/services"
	"kilometers.ai/kmpkg/internal/config"
	plugininfra "kilometers.ai/kmpkg/internal/infrastructure/plugin"
	"kilometers.ai/kmpkg/internal/infrastructure/lock"
	"kilometers.ai/kmpkg/internal/infrastructure/metrics"
	"kilometers.ai/kmpkg/internal/logging"
)

// Container holds all application dependencies
type Container struct {
	// Configuration
	Config *config.Config

	// Infrastructure
	Registry  *plugininfra.FileSystemRegistry
	Extractor *plugininfra.FileSystemExtractor
	Reader    *plugininfra.ManifestReader
	Metrics   *metrics.Recorder
	Lock      *lock.FileLock

	// Services
	Lifecycle *services.PluginLifecycleService

	// Logger
	Logger hclog.Logger
}

// Options controls how the container is built
type Options struct {
	ConfigPath string
	LogOutput  io.Writer
	// Override is applied to the loaded configuration before validation
	Override func(*config.Config)
}

// NewContainer creates and configures the dependency injection container
func NewContainer(opts Options) (*Container, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.Override != nil {
		opts.Override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return NewContainerFromConfig(cfg, opts.LogOutput), nil
}

// NewContainerFromConfig wires the components for an already validated configuration
func NewContainerFromConfig(cfg *config.Config, logOutput io.Writer) *Container {
	if logOutput == nil {
		logOutput = os.Stderr
	}

	c := &Container{
		Config: cfg,
		Logger: logging.New(logging.Options{
			Level:  cfg.LogLevel,
			Debug:  cfg.Debug,
			JSON:   cfg.LogJSON,
			Output: logOutput,
		}),
	}

	c.Registry = plugininfra.NewFileSystemRegistry(cfg.RegistryPath)
	c.Extractor = plugininfra.NewFileSystemExtractor()
	c.Reader = plugininfra.NewManifestReader()
	c.Metrics = metrics.NewRecorder()
	c.Lock = lock.New(cfg.RegistryPath + ".lock")

	c.Lifecycle = services.NewPluginLifecycleService(
		services.LifecyclePaths{
			PluginPath:  cfg.PluginPath,
			InstallPath: cfg.InstallPath,
			ConfigPath:  cfg.ConfigPath,
			TempPath:    cfg.TempPath,
			ArchiveExt:  cfg.ArchiveExt,
		},
		c.Extractor,
		c.Reader,
		c.Registry,
		c.Metrics,
		c.Logger,
	)

	return c
}

// Init creates the working directories and an empty registry when missing
func (c *Container) Init(ctx context.Context) error {
	for _, dir := range []string{c.Config.PluginPath, c.Config.InstallPath, c.Config.ConfigPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	created, err := c.Registry.Ensure(ctx)
	if err != nil {
		return err
	}
	if created {
		c.Logger.Info("created empty plugin registry", "path", c.Registry.Path())
	}
	return nil
}

// Run executes fn while holding the registry lock, then flushes metrics.
// Working directories and the registry are initialized first.
func (c *Container) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.Lock.Acquire(ctx, c.Config.LockTimeout); err != nil {
		return err
	}
	defer func() {
		if err := c.Lock.Release(); err != nil {
			c.Logger.Warn("failed to release lock", "path", c.Lock.Path(), "error", err)
		}
	}()

	if err := c.Init(ctx); err != nil {
		return err
	}

	runErr := fn(ctx)

	if c.Config.MetricsFile != "" {
		if err := c.Metrics.WriteTextfile(c.Config.MetricsFile); err != nil {
			c.Logger.Warn("failed to write metrics", "path", c.Config.MetricsFile, "error", err)
		}
	}

	return runErr
}
