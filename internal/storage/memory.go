package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend stores items in a flat in-process map. It mirrors the
// object-store namespace model (no real directories) and is the storage
// substrate for tests.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string][]byte)}
}

// Kind implements Backend.
func (b *MemoryBackend) Kind() string { return "memory" }

// SaveBytes implements Backend.
func (b *MemoryBackend) SaveBytes(ctx context.Context, identifier string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError("save_bytes", b.Kind(), identifier, err)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.mu.Lock()
	b.items[identifier] = cp
	b.mu.Unlock()
	return nil
}

// LoadBytes implements Backend.
func (b *MemoryBackend) LoadBytes(ctx context.Context, identifier string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("load_bytes", b.Kind(), identifier, err)
	}
	b.mu.RLock()
	data, ok := b.items[identifier]
	b.mu.RUnlock()
	if !ok {
		return nil, NewStorageError("load_bytes", b.Kind(), identifier, ErrNotFound)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// ListItems implements Backend.
func (b *MemoryBackend) ListItems(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("list_items", b.Kind(), prefix, err)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	items := make([]string, 0)
	for key := range b.items {
		if strings.HasPrefix(key, prefix) {
			items = append(items, key)
		}
	}
	sort.Strings(items)
	return items, nil
}

// ListDirectories implements Backend. Directories are synthesized from key
// segments the same way the object-store backend does it.
func (b *MemoryBackend) ListDirectories(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("list_directories", b.Kind(), prefix, err)
	}
	b.mu.RLock()
	keys := make([]string, 0, len(b.items))
	for key := range b.items {
		keys = append(keys, key)
	}
	b.mu.RUnlock()
	return childDirectories(keys, prefix), nil
}

// Exists implements Backend.
func (b *MemoryBackend) Exists(ctx context.Context, identifier string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, NewStorageError("exists", b.Kind(), identifier, err)
	}
	b.mu.RLock()
	_, ok := b.items[identifier]
	b.mu.RUnlock()
	return ok, nil
}

// Delete implements Backend. Removes the exact item and, to match the
// hierarchical backends, any items nested under identifier as a prefix.
func (b *MemoryBackend) Delete(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError("delete", b.Kind(), identifier, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, identifier)
	nested := strings.TrimSuffix(identifier, "/") + "/"
	for key := range b.items {
		if strings.HasPrefix(key, nested) {
			delete(b.items, key)
		}
	}
	return nil
}

// MakeDirs implements Backend. No-op for a flat namespace.
func (b *MemoryBackend) MakeDirs(ctx context.Context, identifier string) error {
	return ctx.Err()
}

// URIFor implements Backend.
func (b *MemoryBackend) URIFor(identifier string) (string, error) {
	return "mem://" + identifier, nil
}

// StorageOptions implements Backend.
func (b *MemoryBackend) StorageOptions() map[string]string {
	return map[string]string{}
}

// Len returns the number of stored items.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
