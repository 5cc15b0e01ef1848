package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrLockTimeout indicates the file lock could not be acquired in time.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrManifestCorrupt indicates the manifest file is not valid JSON.
	ErrManifestCorrupt = errors.New("manifest file is corrupt")
)

// StorageError wraps storage operation failures with context.
type StorageError struct {
	Op     string // operation: "read", "write", "lock"
	Entity string // entity type: "manifest", "file"
	ID     string // entity identifier, if applicable
	Err    error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
