package plugininfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	plugindomain "kilometers.ai/kmpkg/internal/core/domain/plugin"
	pluginports "kilometers.ai/kmpkg/internal/core/ports/plugin"
)

// FileSystemRegistry persists installed plugin descriptors as a JSON array
type FileSystemRegistry struct {
	filePath string
}

// NewFileSystemRegistry creates a registry backed by the file at filePath
func NewFileSystemRegistry(filePath string) *FileSystemRegistry {
	return &FileSystemRegistry{filePath: filePath}
}

// Path returns the registry file location
func (r *FileSystemRegistry) Path() string {
	return r.filePath
}

// Read loads the plugin registry
func (r *FileSystemRegistry) Read(ctx context.Context) (plugindomain.Registry, error) {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", plugindomain.ErrRegistryRead, err)
	}

	var entries plugindomain.Registry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", plugindomain.ErrRegistryRead, r.filePath, err)
	}

	for i, d := range entries {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %d in %s: %w", plugindomain.ErrRegistryRead, i, r.filePath, err)
		}
	}

	if entries == nil {
		entries = plugindomain.Registry{}
	}

	return entries, nil
}

// Write replaces the persisted registry with entries.
// The file is written to a temp file in the same directory and renamed into place.
func (r *FileSystemRegistry) Write(ctx context.Context, entries plugindomain.Registry) error {
	if entries == nil {
		entries = plugindomain.Registry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", plugindomain.ErrRegistryWrite, err)
	}

	dir := filepath.Dir(r.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create registry directory: %w", plugindomain.ErrRegistryWrite, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", plugindomain.ErrRegistryWrite, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", plugindomain.ErrRegistryWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", plugindomain.ErrRegistryWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", plugindomain.ErrRegistryWrite, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", plugindomain.ErrRegistryWrite, err)
	}

	if err := os.Rename(tmpName, r.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %w", plugindomain.ErrRegistryWrite, r.filePath, err)
	}

	return nil
}

// Ensure creates an empty registry if none exists yet. An existing file is left untouched.
func (r *FileSystemRegistry) Ensure(ctx context.Context) (bool, error) {
	_, err := os.Stat(r.filePath)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("%w: %w", plugindomain.ErrRegistryRead, err)
	}

	if err := r.Write(ctx, plugindomain.Registry{}); err != nil {
		return false, err
	}
	return true, nil
}

var _ pluginports.RegistryStore = (*FileSystemRegistry)(nil)
