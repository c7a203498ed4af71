package evaldb

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]StoreFactory)
)

// StoreFactory creates a Store from backend-specific configuration.
type StoreFactory func(config map[string]string) (Store, error)

// Register registers a store factory under the given backend identifier.
// It is typically called from init() in backend packages.
//
// Register panics if factory is nil or the identifier is already taken.
func Register(name string, factory StoreFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if factory == nil {
		panic("evaldb: Register factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("evaldb: Register called twice for backend " + name)
	}
	drivers[name] = factory
}

// Backends returns a sorted list of registered backend identifiers.
func Backends() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a backend identifier is registered.
func IsRegistered(name string) bool {
	driversMu.RLock()
	defer driversMu.RUnlock()
	_, ok := drivers[name]
	return ok
}

// Unregister removes a registered backend. Primarily useful for testing.
// Returns true if the backend was registered.
func Unregister(name string) bool {
	driversMu.Lock()
	defer driversMu.Unlock()

	if _, ok := drivers[name]; ok {
		delete(drivers, name)
		return true
	}
	return false
}

// ParseDescriptor splits a backend selection string into an identifier and
// its configuration map.
//
// Descriptors have the form "<backend>:<config>". The config part is either
// a comma-separated k=v list ("s3:bucket=eval,region=eu-north-1") or a bare
// path, which becomes the "root" key ("json_files:/data/eval"). A
// descriptor without an identifier is treated as a json_files path.
func ParseDescriptor(descriptor string) (name string, config map[string]string, err error) {
	name, rest, ok := strings.Cut(descriptor, ":")
	if !ok || !IsRegistered(name) {
		// Bare path form.
		return "json_files", map[string]string{"root": descriptor}, nil
	}

	config = make(map[string]string)
	if rest == "" {
		return name, config, nil
	}
	if !strings.Contains(rest, "=") {
		config["root"] = rest
		return name, config, nil
	}
	for _, pair := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return "", nil, fmt.Errorf("evaldb: malformed descriptor entry %q in %q", pair, descriptor)
		}
		config[k] = v
	}
	return name, config, nil
}

// Open resolves a backend descriptor and returns a ready database handle.
//
// Example:
//
//	db, err := evaldb.Open("json_files:/data/eval")
func Open(descriptor string, opts ...Option) (*DB, error) {
	name, config, err := ParseDescriptor(descriptor)
	if err != nil {
		return nil, err
	}

	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}

	store, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("evaldb: opening backend %s: %w", name, err)
	}
	db, err := NewDB(descriptor, store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return db, nil
}
