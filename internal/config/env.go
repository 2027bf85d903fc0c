package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvLoader reads KM_* environment variables
type EnvLoader struct {
	lookup func(string) (string, bool)
}

// NewEnvLoader creates an EnvLoader backed by the process environment
func NewEnvLoader() *EnvLoader { return &EnvLoader{lookup: os.LookupEnv} }

// envKeys maps environment variables to config keys
var envKeys = map[string]string{
	"KM_PLUGIN_PATH":   "plugin_path",
	"KM_INSTALL_PATH":  "install_path",
	"KM_PLUGIN_CONFIG": "config_path",
	"KM_TEMP_PATH":     "temp_path",
	"KM_REGISTRY_PATH": "registry_path",
	"KM_ARCHIVE_EXT":   "archive_ext",
	"KM_LOG_LEVEL":     "log_level",
	"KM_LOG_JSON":      "log_json",
	"KM_DEBUG":         "debug",
	"KM_LOCK_TIMEOUT":  "lock_timeout",
	"KM_METRICS_FILE":  "metrics_file",
}

// LoadEnv returns the set config keys and their raw values
func (l *EnvLoader) LoadEnv() map[string]string {
	snap := make(map[string]string)
	for env, key := range envKeys {
		if v, ok := l.lookup(env); ok && v != "" {
			snap[key] = v
		}
	}
	return snap
}

func (c *Config) applyEnv(snap map[string]string) error {
	stringKeys := map[string]*string{
		"plugin_path":   &c.PluginPath,
		"install_path":  &c.InstallPath,
		"config_path":   &c.ConfigPath,
		"temp_path":     &c.TempPath,
		"registry_path": &c.RegistryPath,
		"archive_ext":   &c.ArchiveExt,
		"log_level":     &c.LogLevel,
		"metrics_file":  &c.MetricsFile,
	}
	for key, dst := range stringKeys {
		if v, ok := snap[key]; ok {
			*dst = v
		}
	}

	boolKeys := map[string]*bool{
		"log_json": &c.LogJSON,
		"debug":    &c.Debug,
	}
	for key, dst := range boolKeys {
		if v, ok := snap[key]; ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s value %q: %w", key, v, err)
			}
			*dst = b
		}
	}

	if v, ok := snap["lock_timeout"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid lock_timeout value %q: %w", v, err)
		}
		c.LockTimeout = d
	}

	return nil
}
