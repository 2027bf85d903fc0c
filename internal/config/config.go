package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFiles are looked up in the working directory when no config path is given
var DefaultConfigFiles = []string{"kmpkg.yaml", "kmpkg.yml", "kmpkg.json"}

// Config holds the settings of the plugin manager
type Config struct {
	PluginPath   string        `json:"plugin_path" yaml:"plugin_path"`
	InstallPath  string        `json:"install_path" yaml:"install_path"`
	ConfigPath   string        `json:"config_path" yaml:"config_path"`
	TempPath     string        `json:"temp_path" yaml:"temp_path"`
	RegistryPath string        `json:"registry_path" yaml:"registry_path"`
	ArchiveExt   string        `json:"archive_ext" yaml:"archive_ext"`
	LogLevel     string        `json:"log_level" yaml:"log_level"`
	LogJSON      bool          `json:"log_json" yaml:"log_json"`
	Debug        bool          `json:"debug" yaml:"debug"`
	LockTimeout  time.Duration `json:"lock_timeout" yaml:"lock_timeout"`
	MetricsFile  string        `json:"metrics_file" yaml:"metrics_file"`

	// Source is the config file that was loaded, empty when only defaults and env apply
	Source string `json:"-" yaml:"-"`
}

// fileConfig mirrors Config for decoding; unset keys stay nil
type fileConfig struct {
	PluginPath   *string `json:"plugin_path" yaml:"plugin_path"`
	InstallPath  *string `json:"install_path" yaml:"install_path"`
	ConfigPath   *string `json:"config_path" yaml:"config_path"`
	TempPath     *string `json:"temp_path" yaml:"temp_path"`
	RegistryPath *string `json:"registry_path" yaml:"registry_path"`
	ArchiveExt   *string `json:"archive_ext" yaml:"archive_ext"`
	LogLevel     *string `json:"log_level" yaml:"log_level"`
	LogJSON      *bool   `json:"log_json" yaml:"log_json"`
	Debug        *bool   `json:"debug" yaml:"debug"`
	LockTimeout  *string `json:"lock_timeout" yaml:"lock_timeout"`
	MetricsFile  *string `json:"metrics_file" yaml:"metrics_file"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		PluginPath:   "./plugins",
		ConfigPath:   "./config",
		TempPath:     "./temp",
		RegistryPath: "./data/plugins/installed_plugin.json",
		ArchiveExt:   ".kmpkg",
		LogLevel:     "info",
		LockTimeout:  10 * time.Second,
	}
}

// Load builds the configuration from defaults, the config file and KM_* environment
// variables, in increasing priority. An empty configPath falls back to KM_CONFIG_PATH
// and then to DefaultConfigFiles.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = os.Getenv("KM_CONFIG_PATH")
	}
	explicit := configPath != ""
	if !explicit {
		configPath = findDefaultConfigFile()
	}

	if configPath != "" {
		if err := cfg.applyFile(configPath); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		} else {
			cfg.Source = configPath
		}
	}

	if err := cfg.applyEnv(NewEnvLoader().LoadEnv()); err != nil {
		return nil, err
	}

	if cfg.InstallPath == "" {
		cfg.InstallPath = cfg.PluginPath
	}

	return cfg, nil
}

// Validate checks the configuration for values the plugin manager cannot work with
func (c *Config) Validate() error {
	paths := map[string]string{
		"plugin_path":   c.PluginPath,
		"install_path":  c.InstallPath,
		"config_path":   c.ConfigPath,
		"temp_path":     c.TempPath,
		"registry_path": c.RegistryPath,
	}
	for _, key := range []string{"plugin_path", "install_path", "config_path", "temp_path", "registry_path"} {
		if strings.TrimSpace(paths[key]) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}

	if !strings.HasPrefix(c.ArchiveExt, ".") || len(c.ArchiveExt) < 2 {
		return fmt.Errorf("archive_ext must start with a dot, got %q", c.ArchiveExt)
	}

	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}

	if c.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout must not be negative")
	}

	if filepath.Clean(c.TempPath) == filepath.Clean(c.InstallPath) || filepath.Clean(c.TempPath) == filepath.Clean(c.PluginPath) {
		return fmt.Errorf("temp_path must differ from plugin_path and install_path")
	}

	return nil
}

// YAML renders the effective configuration
func (c *Config) YAML() ([]byte, error) {
	timeout := c.LockTimeout.String()
	return yaml.Marshal(fileConfig{
		PluginPath:   &c.PluginPath,
		InstallPath:  &c.InstallPath,
		ConfigPath:   &c.ConfigPath,
		TempPath:     &c.TempPath,
		RegistryPath: &c.RegistryPath,
		ArchiveExt:   &c.ArchiveExt,
		LogLevel:     &c.LogLevel,
		LogJSON:      &c.LogJSON,
		Debug:        &c.Debug,
		LockTimeout:  &timeout,
		MetricsFile:  &c.MetricsFile,
	})
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &fc)
	default:
		err = yaml.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.PluginPath, fc.PluginPath)
	setString(&c.InstallPath, fc.InstallPath)
	setString(&c.ConfigPath, fc.ConfigPath)
	setString(&c.TempPath, fc.TempPath)
	setString(&c.RegistryPath, fc.RegistryPath)
	setString(&c.ArchiveExt, fc.ArchiveExt)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.MetricsFile, fc.MetricsFile)
	if fc.LogJSON != nil {
		c.LogJSON = *fc.LogJSON
	}
	if fc.Debug != nil {
		c.Debug = *fc.Debug
	}
	if fc.LockTimeout != nil {
		d, err := time.ParseDuration(*fc.LockTimeout)
		if err != nil {
			return fmt.Errorf("invalid lock_timeout in %s: %w", path, err)
		}
		c.LockTimeout = d
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func findDefaultConfigFile() string {
	for _, name := range DefaultConfigFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}
