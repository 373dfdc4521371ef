package storage

import (
	"context"
	"sort"
	"strings"
)

// Backend is the byte-level storage abstraction every higher layer builds on.
// Identifiers are slash-separated relative paths; backends map them onto
// their native namespace (filesystem paths, blob names, map keys).
//
// Read-side operations degrade gracefully: loading a missing item returns
// ErrNotFound, listing a missing prefix returns an empty slice, deleting a
// missing item is a no-op. Write-side failures are returned to the caller.
type Backend interface {
	// SaveBytes stores data under identifier, creating parent directories
	// where the backend has them and overwriting any existing item.
	SaveBytes(ctx context.Context, identifier string, data []byte) error

	// LoadBytes returns the bytes stored under identifier.
	// Returns an error wrapping ErrNotFound when no such item exists.
	LoadBytes(ctx context.Context, identifier string) ([]byte, error)

	// ListItems returns the identifiers of all items whose path starts with
	// prefix, recursively. A missing prefix yields an empty slice.
	ListItems(ctx context.Context, prefix string) ([]string, error)

	// ListDirectories returns the immediate child directory paths under
	// prefix. Object stores synthesize directories from blob name segments.
	ListDirectories(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether an item is stored under identifier.
	Exists(ctx context.Context, identifier string) (bool, error)

	// Delete removes the item (or, for hierarchical backends, the subtree)
	// under identifier. Deleting a missing item is not an error.
	Delete(ctx context.Context, identifier string) error

	// MakeDirs ensures the directory path exists. Flat backends treat this
	// as a no-op.
	MakeDirs(ctx context.Context, identifier string) error

	// URIFor returns the backend-native URI for identifier.
	URIFor(identifier string) (string, error)

	// StorageOptions returns backend-specific options (credentials,
	// account names) consumed by components that open the backend's
	// storage directly. May be empty.
	StorageOptions() map[string]string

	// Kind returns the backend kind name used in errors and logs.
	Kind() string
}

// childDirectories derives the immediate child directories under prefix from
// a flat list of item keys. Used by backends without a real directory tree.
func childDirectories(keys []string, prefix string) []string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	seen := make(map[string]struct{})
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		idx := strings.Index(rest, "/")
		if idx <= 0 {
			continue
		}
		seen[prefix+rest[:idx]] = struct{}{}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
