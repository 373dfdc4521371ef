package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalBackend stores items as files under a fixed root directory.
// Every identifier is resolved against the root and rejected with
// ErrPathTraversal when the resolved path would escape it.
type LocalBackend struct {
	root   string
	logger *slog.Logger
}

// NewLocalBackend creates a filesystem backend rooted at rootPath.
// The root is created if it does not exist.
func NewLocalBackend(rootPath string, logger *slog.Logger) (*LocalBackend, error) {
	if rootPath == "" {
		return nil, fmt.Errorf("local backend requires a root path")
	}
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", rootPath, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root path %q: %w", abs, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBackend{root: abs, logger: logger.With("component", "local_backend")}, nil
}

// Kind implements Backend.
func (b *LocalBackend) Kind() string { return "local" }

// Root returns the absolute root directory of the backend.
func (b *LocalBackend) Root() string { return b.root }

// resolve maps an identifier onto an absolute path inside the root.
func (b *LocalBackend) resolve(identifier string) (string, error) {
	full := filepath.Join(b.root, filepath.FromSlash(identifier))
	rel, err := filepath.Rel(b.root, full)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, identifier)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, identifier)
	}
	return full, nil
}

// SaveBytes implements Backend. Parent directories are created as needed.
func (b *LocalBackend) SaveBytes(ctx context.Context, identifier string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError("save_bytes", b.Kind(), identifier, err)
	}
	full, err := b.resolve(identifier)
	if err != nil {
		return NewStorageError("save_bytes", b.Kind(), identifier, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return NewStorageError("save_bytes", b.Kind(), identifier, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		b.logger.Error("write failed", "identifier", identifier, "error", err)
		return NewStorageError("save_bytes", b.Kind(), identifier, err)
	}
	b.logger.Debug("saved item", "identifier", identifier, "bytes", len(data))
	return nil
}

// LoadBytes implements Backend.
func (b *LocalBackend) LoadBytes(ctx context.Context, identifier string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("load_bytes", b.Kind(), identifier, err)
	}
	full, err := b.resolve(identifier)
	if err != nil {
		return nil, NewStorageError("load_bytes", b.Kind(), identifier, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewStorageError("load_bytes", b.Kind(), identifier, ErrNotFound)
		}
		return nil, NewStorageError("load_bytes", b.Kind(), identifier, err)
	}
	return data, nil
}

// ListItems implements Backend: all files under prefix, recursively, as
// slash-separated identifiers relative to the root.
func (b *LocalBackend) ListItems(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("list_items", b.Kind(), prefix, err)
	}
	full, err := b.resolve(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return nil, NewStorageError("list_items", b.Kind(), prefix, err)
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, NewStorageError("list_items", b.Kind(), prefix, err)
	}
	if !info.IsDir() {
		return []string{b.toIdentifier(full)}, nil
	}
	var items []string
	err = filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			items = append(items, b.toIdentifier(path))
		}
		return nil
	})
	if err != nil {
		return nil, NewStorageError("list_items", b.Kind(), prefix, err)
	}
	sort.Strings(items)
	return items, nil
}

// ListDirectories implements Backend: immediate child directories of prefix.
func (b *LocalBackend) ListDirectories(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("list_directories", b.Kind(), prefix, err)
	}
	full, err := b.resolve(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return nil, NewStorageError("list_directories", b.Kind(), prefix, err)
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, NewStorageError("list_directories", b.Kind(), prefix, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, b.toIdentifier(filepath.Join(full, e.Name())))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Exists implements Backend.
func (b *LocalBackend) Exists(ctx context.Context, identifier string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, NewStorageError("exists", b.Kind(), identifier, err)
	}
	full, err := b.resolve(identifier)
	if err != nil {
		return false, NewStorageError("exists", b.Kind(), identifier, err)
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, NewStorageError("exists", b.Kind(), identifier, err)
	}
	return true, nil
}

// Delete implements Backend. Removes files or whole subtrees; deleting a
// missing identifier is a no-op.
func (b *LocalBackend) Delete(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError("delete", b.Kind(), identifier, err)
	}
	full, err := b.resolve(identifier)
	if err != nil {
		return NewStorageError("delete", b.Kind(), identifier, err)
	}
	if err := os.RemoveAll(full); err != nil {
		return NewStorageError("delete", b.Kind(), identifier, err)
	}
	return nil
}

// MakeDirs implements Backend.
func (b *LocalBackend) MakeDirs(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError("make_dirs", b.Kind(), identifier, err)
	}
	full, err := b.resolve(identifier)
	if err != nil {
		return NewStorageError("make_dirs", b.Kind(), identifier, err)
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return NewStorageError("make_dirs", b.Kind(), identifier, err)
	}
	return nil
}

// URIFor implements Backend.
func (b *LocalBackend) URIFor(identifier string) (string, error) {
	full, err := b.resolve(identifier)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(full), nil
}

// StorageOptions implements Backend.
func (b *LocalBackend) StorageOptions() map[string]string {
	return map[string]string{}
}

func (b *LocalBackend) toIdentifier(fullPath string) string {
	rel, err := filepath.Rel(b.root, fullPath)
	if err != nil {
		return filepath.ToSlash(fullPath)
	}
	return filepath.ToSlash(rel)
}
