package pluginports

import (
	"context"

	plugindomain "kilometers.ai/kmpkg/internal/core/domain/plugin"
)

// ArchiveExtractor unpacks a plugin archive
type ArchiveExtractor interface {
	// Extract extracts the archive at archivePath into targetDir
	Extract(ctx context.Context, archivePath, targetDir string) error
}

// ManifestReader reads the manifest of an extracted plugin
type ManifestReader interface {
	// Read parses metadata.json from the root of extractedDir
	Read(extractedDir string) (plugindomain.Manifest, error)
}

// RegistryStore persists the installed-plugin registry
type RegistryStore interface {
	// Read loads the full registry
	Read(ctx context.Context) (plugindomain.Registry, error)

	// Write replaces the persisted registry with entries
	Write(ctx context.Context, entries plugindomain.Registry) error
}

// OperationRecorder observes lifecycle outcomes
type OperationRecorder interface {
	// Record counts one operation with its result (ok, skipped, error)
	Record(operation, result string)

	// SetInstalled reports the number of registered plugins
	SetInstalled(count int)
}
