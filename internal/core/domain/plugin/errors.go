package plugindomain

import (
	"errors"
	"fmt"
)

// Plugin lifecycle errors
var (
	ErrArchiveNotFound = errors.New("plugin archive not found")
	ErrExtraction      = errors.New("failed to extract plugin archive")
	ErrManifestMissing = errors.New("plugin manifest not found")
	ErrManifestParse   = errors.New("invalid plugin manifest")
	ErrRegistryRead    = errors.New("failed to read plugin registry")
	ErrRegistryWrite   = errors.New("failed to write plugin registry")
	ErrFilesystem      = errors.New("plugin filesystem operation failed")
)

// OperationError ties a lifecycle failure to the operation and plugin it happened on
type OperationError struct {
	Op     string
	Plugin string
	Err    error
}

func (e *OperationError) Error() string {
	if e.Plugin == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Plugin, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// ErrManifestField creates an error for a missing or mistyped manifest field
func ErrManifestField(field, reason string) error {
	return fmt.Errorf("%w: field %q %s", ErrManifestParse, field, reason)
}

// ErrFilesystemOp creates a filesystem error for the given action and path
func ErrFilesystemOp(action, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrFilesystem, action, path, err)
}
