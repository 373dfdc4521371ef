// Package storage provides the byte-level storage backend abstraction
// (local filesystem, Azure Blob, in-memory), the path and partition
// strategies that lay datasets out inside a backend, and the Manager façade
// for saving and range-querying record batches.
package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Backend.LoadBytes when no item exists under the
// requested identifier.
var ErrNotFound = errors.New("item not found")

// ErrPathTraversal is returned by the local backend when an identifier
// resolves outside the configured root directory.
var ErrPathTraversal = errors.New("identifier escapes storage root")

// StorageError wraps a backend failure with the operation and identifier
// that triggered it.
type StorageError struct {
	Op         string // Op is the backend operation, e.g. "save_bytes"
	Backend    string // Backend is the backend kind, e.g. "local", "azure"
	Identifier string // Identifier is the item the operation targeted
	Err        error  // Err is the underlying error
}

// Error implements the error interface for StorageError.
func (e *StorageError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("storage %s failed on %s backend for %q: %v", e.Op, e.Backend, e.Identifier, e.Err)
	}
	return fmt.Sprintf("storage %s failed on %s backend: %v", e.Op, e.Backend, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a StorageError with the given context.
func NewStorageError(op, backend, identifier string, err error) *StorageError {
	return &StorageError{Op: op, Backend: backend, Identifier: identifier, Err: err}
}
