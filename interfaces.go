// Package evaldb is a storage-abstraction layer for scientific evaluation
// databases. Heterogeneous backends (local JSON file trees, object stores,
// remote file trees) expose one uniform, versioned, typed read/write
// contract over a fixed catalog of resource kinds (time series, maps,
// heatmaps, reports, ...), while callers stay agnostic to where and how the
// bytes are persisted.
//
// Basic usage:
//
//	db, _ := evaldb.Open("json_files:/data/eval")
//	defer db.Close()
//	obj, _ := db.Get(ctx, "experiments", map[string]string{"project": "aero"})
//
// A backend only needs to implement the byte-transport Store interface; the
// engine supplies routing, access-type resolution, locking, caching and
// version translation on top of it.
package evaldb

import (
	"context"
	"io"
	"time"
)

// Store is the byte-transport contract a concrete backend implements.
// Keys are slash-separated relative paths produced by the engine's route
// templates; a Store never interprets them beyond hierarchy.
//
// Stores are safe for concurrent use by multiple goroutines. All methods
// accept a context.Context for cancellation and timeouts.
type Store interface {
	// NewReader opens the object at key for reading.
	// Returns ErrNotFound if the key does not exist.
	// The returned reader must be closed after use.
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)

	// NewWriter creates a writer for key, replacing any existing object
	// once the writer is closed.
	NewWriter(ctx context.Context, key string) (io.WriteCloser, error)

	// Exists checks whether key holds an object.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix, in unspecified order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store.
	// After Close, all other methods return ErrBackendClosed.
	Close() error
}

// ObjectInfo describes a stored object's metadata.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Features describes optional store capabilities the engine can exploit.
type Features struct {
	// FilePath indicates the store can expose a stable on-disk location
	// for a key, enabling AccessFile passthrough without reading bytes.
	FilePath bool

	// Stat indicates Stat returns real metadata. The cache uses
	// modification times to detect out-of-band writes.
	Stat bool
}

// ExtendedStore extends Store with metadata access and native file-path
// exposure. Not every store supports every operation; use Features to check.
type ExtendedStore interface {
	Store

	// Stat returns metadata about the object at key.
	// Returns ErrNotFound if the key does not exist.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// FilePath returns the stable on-disk location backing key.
	// Returns ErrUnsupportedAccess if the store has no such location, and
	// ErrNotFound if the key does not exist.
	FilePath(ctx context.Context, key string) (string, error)

	// Features returns the capabilities of this store.
	Features() Features
}

// AsExtended attempts to convert a Store to ExtendedStore.
// The conversion is structural; any store implementing the methods
// qualifies.
func AsExtended(s Store) (ExtendedStore, bool) {
	ext, ok := s.(ExtendedStore)
	return ext, ok
}

// Request carries the resolved context of a single routed operation into a
// per-route override handler.
type Request struct {
	// URI is the fully normalized resource identifier.
	URI *URI

	// Key is the storage key the engine resolved for the URI, already
	// rendered through the route's key template.
	Key string

	// Access is the effective access type after defaulting.
	Access AccessType

	// Store is the backend the operation targets.
	Store Store
}

// GetHandler serves a routed read, bypassing generic dispatch.
type GetHandler func(ctx context.Context, req *Request) (any, error)

// PutHandler serves a routed write, bypassing generic dispatch.
type PutHandler func(ctx context.Context, req *Request, obj any) error

// Overrides is a per-route handler table. A handler registered for a route
// is invoked instead of the generic get/put path; routes flagged
// RequiresHandler in the catalog must have one.
type Overrides struct {
	Get map[string]GetHandler
	Put map[string]PutHandler
}

// OverrideProvider is implemented by stores that need dedicated handling
// for specific routes, e.g. legacy on-disk layouts only that store knows
// about. The engine installs these on top of its own built-in handlers.
type OverrideProvider interface {
	RouteOverrides() Overrides
}
