package di

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kilometers.ai/kmpkg/internal/config"
	"kilometers.ai/kmpkg/internal/infrastructure/lock"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.PluginPath = filepath.Join(root, "plugins")
	cfg.InstallPath = cfg.PluginPath
	cfg.ConfigPath = filepath.Join(root, "config")
	cfg.TempPath = filepath.Join(root, "temp")
	cfg.RegistryPath = filepath.Join(root, "data", "plugins", "installed_plugin.json")
	cfg.LockTimeout = 0
	return cfg
}

func TestNewContainer(t *testing.T) {
	t.Setenv("KM_CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	container, err := NewContainer(Options{
		LogOutput: &bytes.Buffer{},
		Override: func(cfg *config.Config) {
			cfg.ArchiveExt = ".pkg"
		},
	})
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}

	assert.Equal(t, ".pkg", container.Config.ArchiveExt)
	assert.Equal(t, ".pkg", container.Lifecycle.Paths().ArchiveExt)
	assert.Equal(t, container.Config.RegistryPath, container.Registry.Path())
	assert.Equal(t, container.Config.RegistryPath+".lock", container.Lock.Path())
}

func TestNewContainer_InvalidOverride(t *testing.T) {
	t.Setenv("KM_CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	_, err := NewContainer(Options{
		Override: func(cfg *config.Config) { cfg.ArchiveExt = "pkg" },
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewContainer_MissingConfigFile(t *testing.T) {
	_, err := NewContainer(Options{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestContainer_Init(t *testing.T) {
	cfg := testConfig(t)
	logs := &bytes.Buffer{}
	container := NewContainerFromConfig(cfg, logs)

	require.NoError(t, container.Init(context.Background()))

	assert.DirExists(t, cfg.PluginPath)
	assert.DirExists(t, cfg.ConfigPath)
	data, err := os.ReadFile(cfg.RegistryPath)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
	assert.Contains(t, logs.String(), "created empty plugin registry")

	// a second init leaves the registry alone
	logs.Reset()
	require.NoError(t, container.Init(context.Background()))
	assert.NotContains(t, logs.String(), "created empty plugin registry")
}

func TestContainer_Run(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsFile = filepath.Join(filepath.Dir(cfg.PluginPath), "kmpkg.prom")
	container := NewContainerFromConfig(cfg, &bytes.Buffer{})

	called := false
	err := container.Run(context.Background(), func(ctx context.Context) error {
		called = true
		// the registry lock is held for the duration of fn
		other := lock.New(container.Lock.Path())
		assert.ErrorIs(t, other.Acquire(ctx, 0), lock.ErrLocked)

		plugins, err := container.Lifecycle.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, plugins)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.FileExists(t, cfg.MetricsFile)

	// released after the run
	other := lock.New(container.Lock.Path())
	require.NoError(t, other.Acquire(context.Background(), 0))
	require.NoError(t, other.Release())
}

func TestContainer_RunReturnsCallbackError(t *testing.T) {
	container := NewContainerFromConfig(testConfig(t), &bytes.Buffer{})
	boom := errors.New("boom")

	err := container.Run(context.Background(), func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
}

func TestContainer_RunWhileLocked(t *testing.T) {
	cfg := testConfig(t)
	container := NewContainerFromConfig(cfg, &bytes.Buffer{})

	holder := lock.New(container.Lock.Path())
	require.NoError(t, holder.Acquire(context.Background(), 0))
	defer holder.Release()

	called := false
	err := container.Run(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, lock.ErrLocked)
	assert.False(t, called)
}
