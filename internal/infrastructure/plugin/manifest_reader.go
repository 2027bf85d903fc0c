package plugininfra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	plugindomain "kilometers.ai/kmpkg/internal/core/domain/plugin"
	pluginports "kilometers.ai/kmpkg/internal/core/ports/plugin"
)

// ManifestReader parses metadata.json from an extracted plugin directory
type ManifestReader struct{}

// NewManifestReader creates a new manifest reader
func NewManifestReader() *ManifestReader {
	return &ManifestReader{}
}

// Read parses the manifest at the root of extractedDir
func (r *ManifestReader) Read(extractedDir string) (plugindomain.Manifest, error) {
	manifestPath := filepath.Join(extractedDir, plugindomain.ManifestFileName)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return plugindomain.Manifest{}, fmt.Errorf("%w: %s", plugindomain.ErrManifestMissing, manifestPath)
		}
		return plugindomain.Manifest{}, fmt.Errorf("%w: %w", plugindomain.ErrManifestMissing, err)
	}

	return ParseManifest(data)
}

// ParseManifest validates raw manifest JSON and extracts the fields the lifecycle needs
func ParseManifest(data []byte) (plugindomain.Manifest, error) {
	if !gjson.ValidBytes(data) {
		return plugindomain.Manifest{}, fmt.Errorf("%w: malformed JSON", plugindomain.ErrManifestParse)
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return plugindomain.Manifest{}, fmt.Errorf("%w: expected a JSON object", plugindomain.ErrManifestParse)
	}

	id, err := requiredString(doc, "plugin_id")
	if err != nil {
		return plugindomain.Manifest{}, err
	}
	if !plugindomain.ValidPluginID(id) {
		return plugindomain.Manifest{}, plugindomain.ErrManifestField("plugin_id", "must be a single path segment")
	}
	name, err := requiredString(doc, "plugin_name")
	if err != nil {
		return plugindomain.Manifest{}, err
	}
	configPath, err := optionalString(doc, "config_path")
	if err != nil {
		return plugindomain.Manifest{}, err
	}

	manifest := plugindomain.Manifest{
		PluginID:    id,
		PluginName:  name,
		ConfigPath:  configPath,
		Version:     doc.Get("version").String(),
		Description: doc.Get("description").String(),
	}

	if err := validateConfigPath(manifest); err != nil {
		return plugindomain.Manifest{}, err
	}

	return manifest, nil
}

func requiredString(doc gjson.Result, field string) (string, error) {
	value := doc.Get(field)
	if !value.Exists() {
		return "", plugindomain.ErrManifestField(field, "is required")
	}
	if value.Type != gjson.String {
		return "", plugindomain.ErrManifestField(field, "must be a string")
	}
	if value.Str == "" {
		return "", plugindomain.ErrManifestField(field, "must not be empty")
	}
	return value.Str, nil
}

func optionalString(doc gjson.Result, field string) (string, error) {
	value := doc.Get(field)
	if !value.Exists() || value.Type == gjson.Null {
		return "", nil
	}
	if value.Type != gjson.String {
		return "", plugindomain.ErrManifestField(field, "must be a string")
	}
	return value.Str, nil
}

// validateConfigPath rejects config paths that would leave the payload tree
func validateConfigPath(m plugindomain.Manifest) error {
	rel := m.ConfigRelPath()
	if rel == "" {
		return nil
	}
	if path.IsAbs(rel) || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return plugindomain.ErrManifestField("config_path", "must stay inside the plugin archive")
	}
	return nil
}

var _ pluginports.ManifestReader = (*ManifestReader)(nil)
