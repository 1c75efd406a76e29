package kv

import (
	"context"
	"strings"
)

// Key prefixes for the two entity kinds persisted by the voting actor.
const (
	ProjectsPrefix  = "projects:"
	PanelistsPrefix = "panelists:"
)

// ProjectKey returns the storage key for a project slug.
func ProjectKey(slug string) string {
	return ProjectsPrefix + slug
}

// PanelistKey returns the storage key for a panelist id.
func PanelistKey(id string) string {
	return PanelistsPrefix + id
}

// Entry is a single key/value pair returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a durable, key-ordered key-value store.
// Values are opaque bytes; callers own the encoding.
type Store interface {
	// Get returns the value for key. found is false when the key does not exist.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Put creates or replaces the value for key.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every live entry whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
}

// hasPrefix is shared by backends that filter keys in process.
func hasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
