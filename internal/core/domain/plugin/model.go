package plugindomain

import (
	"fmt"
	"path"
	"strings"
)

// ManifestFileName is the manifest every plugin archive carries at its root
const ManifestFileName = "metadata.json"

// Manifest represents the metadata.json shipped inside a plugin archive
type Manifest struct {
	PluginID    string `json:"plugin_id"`
	PluginName  string `json:"plugin_name"`
	ConfigPath  string `json:"config_path"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// Descriptor is the reduced identity record persisted in the registry
type Descriptor struct {
	PluginID   string `json:"plugin_id"`
	PluginName string `json:"plugin_name"`
}

// ValidPluginID reports whether id can name a directory under the install and config roots
func ValidPluginID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Validate checks that a descriptor read back from storage is usable
func (d Descriptor) Validate() error {
	if !ValidPluginID(d.PluginID) {
		return fmt.Errorf("invalid plugin_id %q", d.PluginID)
	}
	if d.PluginName == "" {
		return fmt.Errorf("empty plugin_name for plugin_id %q", d.PluginID)
	}
	return nil
}

// Descriptor reduces the manifest to its persisted identity
func (m Manifest) Descriptor() Descriptor {
	return Descriptor{PluginID: m.PluginID, PluginName: m.PluginName}
}

// HasConfig reports whether the manifest declares a config subtree
func (m Manifest) HasConfig() bool {
	return m.ConfigRelPath() != ""
}

// ConfigRelPath returns the declared config path relative to the payload root.
// A single leading "./" is stripped and the result is cleaned; "." collapses to "".
func (m Manifest) ConfigRelPath() string {
	p := strings.TrimSpace(m.ConfigPath)
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(p, "./")
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// InstalledPlugin is a registry entry together with what is actually on disk
type InstalledPlugin struct {
	Descriptor
	InstallPath  string
	ConfigPath   string
	PayloadFound bool
	ConfigFound  bool
}

// Registry is the ordered list of installed plugin descriptors
type Registry []Descriptor

// IndexOfID returns the position of the descriptor with the given id, or -1
func (r Registry) IndexOfID(pluginID string) int {
	for i, d := range r {
		if d.PluginID == pluginID {
			return i
		}
	}
	return -1
}

// ContainsID reports whether a descriptor with the given id is registered
func (r Registry) ContainsID(pluginID string) bool {
	return r.IndexOfID(pluginID) >= 0
}

// MatchName returns every descriptor registered under the given display name
func (r Registry) MatchName(pluginName string) []Descriptor {
	var matches []Descriptor
	for _, d := range r {
		if d.PluginName == pluginName {
			matches = append(matches, d)
		}
	}
	return matches
}

// Without returns a copy of the registry with every descriptor matching id removed
func (r Registry) Without(pluginID string) Registry {
	out := make(Registry, 0, len(r))
	for _, d := range r {
		if d.PluginID != pluginID {
			out = append(out, d)
		}
	}
	return out
}
