package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from KM_* variables set on the host
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KM_CONFIG_PATH", "")
	for env := range envKeys {
		t.Setenv(env, "")
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./plugins", cfg.PluginPath)
	assert.Equal(t, "./config", cfg.ConfigPath)
	assert.Equal(t, "./temp", cfg.TempPath)
	assert.Equal(t, "./data/plugins/installed_plugin.json", cfg.RegistryPath)
	assert.Equal(t, ".kmpkg", cfg.ArchiveExt)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.LockTimeout)
	assert.Empty(t, cfg.InstallPath)
}

func TestLoad_DefaultsOnly(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Source)
	assert.Equal(t, "./plugins", cfg.PluginPath)
	assert.Equal(t, cfg.PluginPath, cfg.InstallPath, "install path should default to plugin path")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, "kmpkg.yaml", `
plugin_path: /srv/plugins
install_path: /srv/installed
config_path: /srv/config
temp_path: /srv/tmp
registry_path: /srv/data/installed.json
archive_ext: .pkg
log_level: debug
log_json: true
lock_timeout: 3s
metrics_file: /srv/metrics.prom
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, "/srv/plugins", cfg.PluginPath)
	assert.Equal(t, "/srv/installed", cfg.InstallPath)
	assert.Equal(t, "/srv/config", cfg.ConfigPath)
	assert.Equal(t, "/srv/tmp", cfg.TempPath)
	assert.Equal(t, "/srv/data/installed.json", cfg.RegistryPath)
	assert.Equal(t, ".pkg", cfg.ArchiveExt)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 3*time.Second, cfg.LockTimeout)
	assert.Equal(t, "/srv/metrics.prom", cfg.MetricsFile)
}

func TestLoad_JSONFileKeepsUnsetDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, "kmpkg.json", `{"plugin_path": "/opt/plugins"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/plugins", cfg.PluginPath)
	assert.Equal(t, "/opt/plugins", cfg.InstallPath)
	assert.Equal(t, "./config", cfg.ConfigPath)
	assert.Equal(t, ".kmpkg", cfg.ArchiveExt)
}

func TestLoad_DiscoversDefaultFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kmpkg.yml"), []byte("archive_ext: .zip\n"), 0644))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "kmpkg.yml", cfg.Source)
	assert.Equal(t, ".zip", cfg.ArchiveExt)
}

func TestLoad_ConfigPathFromEnvironment(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, "custom.yaml", "temp_path: /var/tmp/kmpkg\n")
	t.Setenv("KM_CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, "/var/tmp/kmpkg", cfg.TempPath)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, "kmpkg.yaml", "plugin_path: /from/file\nlog_level: warn\n")
	t.Setenv("KM_PLUGIN_PATH", "/from/env")
	t.Setenv("KM_DEBUG", "true")
	t.Setenv("KM_LOCK_TIMEOUT", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.PluginPath)
	assert.Equal(t, "/from/env", cfg.InstallPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "ExplicitMissingFile_ShouldFail",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing.yaml")
			},
		},
		{
			name: "MalformedYAML_ShouldFail",
			setup: func(t *testing.T) string {
				return writeConfigFile(t, "kmpkg.yaml", "plugin_path: [unterminated\n")
			},
		},
		{
			name: "MalformedJSON_ShouldFail",
			setup: func(t *testing.T) string {
				return writeConfigFile(t, "kmpkg.json", "{not json")
			},
		},
		{
			name: "InvalidLockTimeout_ShouldFail",
			setup: func(t *testing.T) string {
				return writeConfigFile(t, "kmpkg.yaml", "lock_timeout: soon\n")
			},
		},
		{
			name: "InvalidEnvironmentBool_ShouldFail",
			setup: func(t *testing.T) string {
				t.Setenv("KM_LOG_JSON", "sometimes")
				return writeConfigFile(t, "kmpkg.yaml", "")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := tt.setup(t)

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(c *Config)
		contains string
	}{
		{name: "Defaults_ShouldPass", modify: func(c *Config) {}},
		{name: "EmptyPluginPath_ShouldFail", modify: func(c *Config) { c.PluginPath = " " }, contains: "plugin_path"},
		{name: "EmptyRegistryPath_ShouldFail", modify: func(c *Config) { c.RegistryPath = "" }, contains: "registry_path"},
		{name: "ExtensionWithoutDot_ShouldFail", modify: func(c *Config) { c.ArchiveExt = "kmpkg" }, contains: "archive_ext"},
		{name: "BareDotExtension_ShouldFail", modify: func(c *Config) { c.ArchiveExt = "." }, contains: "archive_ext"},
		{name: "UnknownLogLevel_ShouldFail", modify: func(c *Config) { c.LogLevel = "loud" }, contains: "log_level"},
		{name: "UppercaseLogLevel_ShouldPass", modify: func(c *Config) { c.LogLevel = "DEBUG" }},
		{name: "NegativeLockTimeout_ShouldFail", modify: func(c *Config) { c.LockTimeout = -time.Second }, contains: "lock_timeout"},
		{name: "TempIsPluginPath_ShouldFail", modify: func(c *Config) { c.TempPath = "./plugins/" }, contains: "temp_path"},
		{name: "TempIsInstallPath_ShouldFail", modify: func(c *Config) {
			c.InstallPath = "/srv/installed"
			c.TempPath = "/srv/installed"
		}, contains: "temp_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.InstallPath = cfg.PluginPath
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.contains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestYAML(t *testing.T) {
	cfg := Default()
	cfg.InstallPath = cfg.PluginPath

	data, err := cfg.YAML()
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "plugin_path: ./plugins")
	assert.Contains(t, out, "lock_timeout: 10s")
	assert.Contains(t, out, "archive_ext: .kmpkg")

	// the rendered config loads back to the same values
	clearEnv(t)
	path := writeConfigFile(t, "kmpkg.yaml", out)
	loaded, err := Load(path)
	require.NoError(t, err)
	loaded.Source = ""
	assert.Equal(t, cfg, loaded)
}

func TestEnvLoader(t *testing.T) {
	env := map[string]string{
		"KM_PLUGIN_PATH":   "/p",
		"KM_PLUGIN_CONFIG": "/c",
		"KM_LOG_LEVEL":     "",
		"UNRELATED":        "x",
	}
	loader := &EnvLoader{lookup: func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}}

	snap := loader.LoadEnv()

	assert.Equal(t, map[string]string{
		"plugin_path": "/p",
		"config_path": "/c",
	}, snap)
}
