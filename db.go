package evaldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/evalkit/evaldb/cache"
	"github.com/evalkit/evaldb/lock"
)

// DB is a database handle: the routing, access-type, locking, caching and
// version-compatibility engine layered over one Store. All handles driving
// the same Store see each other's writes through the store; cache coherence
// within one process is maintained by write-through invalidation.
//
// DB is safe for concurrent use by multiple goroutines.
type DB struct {
	name   string
	store  Store
	ext    ExtendedStore // nil when the store is not extended
	cache  *cache.Cache
	lk     lock.Lock
	logger *slog.Logger

	transforms *TransformRegistry
	overrides  Overrides

	pinnedVersion string
	verMu         sync.Mutex
	versions      map[string]string // "project/experiment" -> data version
}

// NewDB builds an engine over store. The name identifies the database
// instance and scopes the cross-process lock; Open passes the backend
// descriptor.
func NewDB(name string, store Store, opts ...Option) (*DB, error) {
	cfg := dbConfig{lockTimeout: lock.DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slogutil.Null()
	}
	if cfg.transforms == nil {
		cfg.transforms = DefaultTransforms()
	}

	db := &DB{
		name:          name,
		store:         store,
		cache:         cache.New(cfg.cacheSize),
		lk:            lock.ForDatabase(name, lock.WithTimeout(cfg.lockTimeout)),
		logger:        cfg.logger,
		transforms:    cfg.transforms,
		pinnedVersion: cfg.dataVersion,
		versions:      make(map[string]string),
	}
	if ext, ok := AsExtended(store); ok {
		db.ext = ext
	}

	db.overrides = db.builtinOverrides()
	if provider, ok := store.(OverrideProvider); ok {
		// Store-registered handlers take precedence over built-ins.
		for name, h := range provider.RouteOverrides().Get {
			db.overrides.Get[name] = h
		}
		for name, h := range provider.RouteOverrides().Put {
			db.overrides.Put[name] = h
		}
	}
	for _, route := range routes {
		if !route.RequiresHandler {
			continue
		}
		if db.overrides.Get[route.Name] == nil || db.overrides.Put[route.Name] == nil {
			return nil, fmt.Errorf("evaldb: route %s requires a dedicated handler", route.Name)
		}
	}
	return db, nil
}

// builtinOverrides installs the engine's own dedicated handlers: raw byte
// transport for binary routes and the legacy-layout fallback for weekly
// time series.
func (db *DB) builtinOverrides() Overrides {
	o := Overrides{
		Get: make(map[string]GetHandler),
		Put: make(map[string]PutHandler),
	}
	for _, route := range routes {
		if route.Binary {
			o.Get[route.Name] = db.blobGet
			o.Put[route.Name] = db.blobPut
		}
	}
	o.Get["timeseries_weekly"] = db.weeklyGet
	o.Put["timeseries_weekly"] = db.genericPutHandler
	return o
}

// Store returns the underlying byte-transport backend.
func (db *DB) Store() Store { return db.store }

// Close releases the underlying store.
func (db *DB) Close() error {
	db.cache.InvalidateAll()
	return db.store.Close()
}

// CacheStats returns the read cache's hit count, miss count and current
// entry count.
func (db *DB) CacheStats() (hits, misses int64, size int) {
	return db.cache.Hits(), db.cache.Misses(), db.cache.Len()
}

// Lock acquires the database instance's cross-process advisory lock and
// returns its release function. Use it to serialize read-modify-write
// sequences:
//
//	release, err := db.Lock(ctx)
//	if err != nil { ... }
//	defer release()
//
// When locking is disabled both acquire and release are no-ops.
func (db *DB) Lock(ctx context.Context) (release func() error, err error) {
	if err := db.acquireLock(ctx); err != nil {
		return nil, err
	}
	return db.lk.Release, nil
}

func (db *DB) acquireLock(ctx context.Context) error {
	err := db.lk.Acquire(ctx)
	if errors.Is(err, lock.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}

// Get fetches the resource identified by route name and arguments.
//
// The returned value depends on the effective access type: map/slice
// structures for AccessObject, string for AccessJSON, []byte for
// AccessBlob, *FileHandle for AccessFile.
func (db *DB) Get(ctx context.Context, routeName string, args map[string]string, opts ...CallOption) (any, error) {
	u, err := NewURI(routeName, args)
	if err != nil {
		return nil, err
	}
	cfg := applyCallOptions(u.Route, opts)
	v, err := db.get(ctx, u, cfg)
	if err != nil {
		return nil, fmt.Errorf("evaldb: get %s (access %s): %w", u.Key(), cfg.access, err)
	}
	return v, nil
}

// GetJSON fetches a resource as an unparsed JSON string.
func (db *DB) GetJSON(ctx context.Context, routeName string, args map[string]string, opts ...CallOption) (string, error) {
	v, err := db.Get(ctx, routeName, args, append(opts, WithAccess(AccessJSON))...)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		// Default fallbacks are returned as-is and may not be strings.
		return "", fmt.Errorf("%w: default value is not a JSON string", ErrUnsupportedAccess)
	}
	return s, nil
}

// GetBlob fetches a binary resource's raw bytes.
func (db *DB) GetBlob(ctx context.Context, routeName string, args map[string]string, opts ...CallOption) ([]byte, error) {
	v, err := db.Get(ctx, routeName, args, append(opts, WithAccess(AccessBlob))...)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: default value is not a byte slice", ErrUnsupportedAccess)
	}
	return b, nil
}

// GetFile fetches a resource as an open handle at its backend-native
// location. The caller must close it.
func (db *DB) GetFile(ctx context.Context, routeName string, args map[string]string, opts ...CallOption) (*FileHandle, error) {
	v, err := db.Get(ctx, routeName, args, append(opts, WithAccess(AccessFile))...)
	if err != nil {
		return nil, err
	}
	fh, ok := v.(*FileHandle)
	if !ok {
		return nil, fmt.Errorf("%w: default value is not a file handle", ErrUnsupportedAccess)
	}
	return fh, nil
}

// Put stores obj as the resource identified by route name and arguments.
// The write acquires the instance lock (when enabled), synchronously evicts
// the resource's cache entry and only then returns.
func (db *DB) Put(ctx context.Context, obj any, routeName string, args map[string]string, opts ...CallOption) error {
	u, err := NewURI(routeName, args)
	if err != nil {
		return err
	}
	cfg := applyCallOptions(u.Route, opts)
	if err := db.put(ctx, obj, u, cfg); err != nil {
		return fmt.Errorf("evaldb: put %s: %w", u.Key(), err)
	}
	return nil
}

// GetByURI fetches a resource by its canonical URI string. The URI's own
// access_type and version parameters apply; explicit call options override
// them. This is the catalog-independent addressing used for bootstrapping
// and migration.
func (db *DB) GetByURI(ctx context.Context, uri string, opts ...CallOption) (any, error) {
	u, err := Decode(uri)
	if err != nil {
		return nil, err
	}
	cfg := callConfig{access: u.Route.DefaultAccess, version: u.Version}
	if u.Access != "" {
		cfg.access = u.Access
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	v, err := db.get(ctx, u, cfg)
	if err != nil {
		return nil, fmt.Errorf("evaldb: get %s (access %s): %w", u.Key(), cfg.access, err)
	}
	return v, nil
}

// PutByURI stores obj at the resource identified by a canonical URI string.
func (db *DB) PutByURI(ctx context.Context, obj any, uri string) error {
	u, err := Decode(uri)
	if err != nil {
		return err
	}
	cfg := callConfig{access: u.Route.DefaultAccess, version: u.Version}
	if u.Access != "" {
		cfg.access = u.Access
	}
	if err := db.put(ctx, obj, u, cfg); err != nil {
		return fmt.Errorf("evaldb: put %s: %w", u.Key(), err)
	}
	return nil
}

// ListAll enumerates the canonical URI of every resource in the database.
// Keys not produced by any known route layout are skipped. The result is
// sorted.
func (db *DB) ListAll(ctx context.Context) ([]string, error) {
	keys, err := db.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("evaldb: listing store: %w", err)
	}
	uris := make([]string, 0, len(keys))
	for _, key := range keys {
		if u, ok := uriForKey(key); ok {
			uris = append(uris, u.String())
		} else {
			db.logger.Debug("skipping unroutable key", slog.String("key", key))
		}
	}
	sort.Strings(uris)
	return uris, nil
}

// List enumerates the URIs of one route, optionally narrowed by a partial
// argument set (e.g. project and experiment only).
func (db *DB) List(ctx context.Context, routeName string, partial map[string]string) ([]string, error) {
	route, err := ResolveRoute(routeName)
	if err != nil {
		return nil, err
	}
	for name := range partial {
		if !route.HasArg(name) {
			return nil, fmt.Errorf("%w: route %s has no arg %q", ErrMalformedURI, route.Name, name)
		}
	}
	all, err := db.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, s := range all {
		u, err := Decode(s)
		if err != nil || u.Route != route {
			continue
		}
		match := true
		for name, want := range partial {
			if u.Args[name] != want {
				match = false
				break
			}
		}
		if match {
			out = append(out, s)
		}
	}
	return out, nil
}

// DeleteExperiment removes every resource belonging to one experiment.
func (db *DB) DeleteExperiment(ctx context.Context, project, experiment string) (err error) {
	if err := db.acquireLock(ctx); err != nil {
		return err
	}
	defer func() {
		// A lock token is never dropped silently; a failed release
		// surfaces unless an earlier error takes precedence.
		if releaseErr := db.lk.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	prefixes := []string{
		project + "/" + experiment + "/",
		"reports/" + project + "/" + experiment + "/",
	}
	for _, prefix := range prefixes {
		keys, err := db.store.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("evaldb: listing %s: %w", prefix, err)
		}
		for _, key := range keys {
			if err := db.store.Delete(ctx, key); err != nil {
				return fmt.Errorf("evaldb: deleting %s: %w", key, err)
			}
			if u, ok := uriForKey(key); ok {
				db.cache.Invalidate(u.Key())
			}
		}
	}
	db.invalidateDataVersion(project, experiment)
	return nil
}

// get is the generic read path: dedicated handler dispatch first, then
// key-template resolution, cache, store read, version adaptation and
// access-type materialization.
func (db *DB) get(ctx context.Context, u *URI, cfg callConfig) (any, error) {
	key, err := keyForURI(u, db.dataVersion(ctx, u.Args))
	if err != nil {
		return nil, err
	}

	var v any
	if h, ok := db.overrides.Get[u.Route.Name]; ok {
		v, err = h(ctx, &Request{URI: u, Key: key, Access: cfg.access, Store: db.store})
	} else {
		v, err = db.genericGet(ctx, u, cfg, key)
	}
	if IsNotFound(err) && cfg.hasDefault {
		// The fallback is returned as-is, not converted to the requested
		// access type.
		return cfg.def, nil
	}
	return v, err
}

func (db *DB) genericGet(ctx context.Context, u *URI, cfg callConfig, key string) (any, error) {
	route := u.Route

	if cfg.access == AccessFile {
		return db.fileHandle(ctx, key)
	}
	if cfg.access == AccessBlob && !route.Binary {
		return nil, fmt.Errorf("%w: route %s holds JSON, request OBJ or JSON_STR", ErrUnsupportedAccess, route.Name)
	}

	raw, fromCache, err := db.readJSON(ctx, u, key, cfg.skipCache)
	if err != nil {
		return nil, err
	}
	db.logger.Debug("resolved resource",
		slog.String("key", key),
		slog.Bool("cache_hit", fromCache),
	)

	if cfg.version == "" {
		return materialize(route, []byte(raw), cfg.access)
	}

	// Version translation operates on the object form; re-serialization
	// only happens when JSON text was requested.
	var obj any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("parsing resource for route %s: %w", route.Name, err)
	}
	stored := db.dataVersion(ctx, u.Args)
	adapted, err := db.transforms.Adapt(route.Name, obj, stored, cfg.version)
	if err != nil {
		return nil, err
	}
	if cfg.access == AccessJSON {
		out, err := json.Marshal(adapted)
		if err != nil {
			return nil, fmt.Errorf("serializing adapted resource: %w", err)
		}
		return string(out), nil
	}
	return adapted, nil
}

// readJSON returns the JSON text for key, consulting the read cache first.
// A cached entry is revalidated against the store's modification time when
// the store supports Stat, so out-of-band writes are noticed.
func (db *DB) readJSON(ctx context.Context, u *URI, key string, skipCache bool) (string, bool, error) {
	cacheKey := u.Key()
	canStat := db.ext != nil && db.ext.Features().Stat

	if !skipCache {
		if entry, ok := db.cache.Get(cacheKey); ok {
			if !canStat {
				return entry.JSON, true, nil
			}
			info, err := db.ext.Stat(ctx, key)
			if err == nil && !info.ModTime.After(entry.ModTime) {
				return entry.JSON, true, nil
			}
			db.cache.Invalidate(cacheKey)
		}
	}

	raw, err := db.readKey(ctx, key)
	if err != nil {
		return "", false, err
	}

	if !skipCache {
		entry := cache.Entry{JSON: string(raw)}
		if canStat {
			if info, err := db.ext.Stat(ctx, key); err == nil {
				entry.ModTime = info.ModTime
			}
		}
		db.cache.Put(cacheKey, entry)
	}
	return string(raw), false, nil
}

func (db *DB) readKey(ctx context.Context, key string) ([]byte, error) {
	r, err := db.store.NewReader(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (db *DB) fileHandle(ctx context.Context, key string) (*FileHandle, error) {
	if db.ext == nil || !db.ext.Features().FilePath {
		return nil, fmt.Errorf("%w: backend has no stable on-disk location", ErrUnsupportedAccess)
	}
	path, err := db.ext.FilePath(ctx, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return &FileHandle{Path: path, ReadCloser: f}, nil
}

// put is the generic write path: lock, version-adapt, dedicated handler
// dispatch, generic write, synchronous cache eviction, unlock.
func (db *DB) put(ctx context.Context, obj any, u *URI, cfg callConfig) (err error) {
	if cfg.access == AccessFile {
		return fmt.Errorf("%w: FILE access is get-only", ErrUnsupportedAccess)
	}

	if err := db.acquireLock(ctx); err != nil {
		return err
	}
	defer func() {
		// A lock token is never dropped silently; a failed release
		// surfaces unless an earlier error takes precedence.
		if releaseErr := db.lk.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	route := u.Route
	stored := db.dataVersion(ctx, u.Args)

	if cfg.version != "" && !route.Binary {
		obj, err = db.adaptForWrite(route, obj, cfg.version, stored)
		if err != nil {
			return err
		}
	}

	key, err := keyForURI(u, stored)
	if err != nil {
		return err
	}

	if h, ok := db.overrides.Put[route.Name]; ok {
		err = h(ctx, &Request{URI: u, Key: key, Access: cfg.access, Store: db.store}, obj)
	} else {
		err = db.writeKey(ctx, route, key, obj)
	}
	if err != nil {
		return err
	}

	// The eviction happens-before the put is reported complete, so a get
	// following this call in the same process observes the new value.
	db.cache.Invalidate(u.Key())
	if route.Name == "config" {
		db.invalidateDataVersion(u.Args["project"], u.Args["experiment"])
	}
	db.logger.Debug("stored resource", slog.String("key", key))
	return nil
}

// adaptForWrite translates a caller-shaped value (schema version `from`)
// into the database's stored shape (version `to`) before it is written.
func (db *DB) adaptForWrite(route *Route, obj any, from, to string) (any, error) {
	if to == "" || CompareVersions(from, to) == 0 {
		return obj, nil
	}
	switch v := obj.(type) {
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, fmt.Errorf("parsing value for version translation: %w", err)
		}
		obj = parsed
	case []byte:
		var parsed any
		if err := json.Unmarshal(v, &parsed); err != nil {
			return nil, fmt.Errorf("parsing value for version translation: %w", err)
		}
		obj = parsed
	}
	return db.transforms.Adapt(route.Name, obj, from, to)
}

func (db *DB) writeKey(ctx context.Context, route *Route, key string, obj any) error {
	data, err := encodePut(route, obj)
	if err != nil {
		return err
	}
	w, err := db.store.NewWriter(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// genericPutHandler adapts the generic write path to the PutHandler shape
// for routes that only need dedicated handling on read.
func (db *DB) genericPutHandler(ctx context.Context, req *Request, obj any) error {
	return db.writeKey(ctx, req.URI.Route, req.Key, obj)
}

// blobGet serves binary routes: raw bytes or native file handles only.
func (db *DB) blobGet(ctx context.Context, req *Request) (any, error) {
	switch req.Access {
	case AccessFile:
		return db.fileHandle(ctx, req.Key)
	case AccessBlob:
		raw, err := db.readKey(ctx, req.Key)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
	return nil, fmt.Errorf("%w: route %s holds binary data, request BLOB or FILE",
		ErrUnsupportedAccess, req.URI.Route.Name)
}

// blobPut serves binary route writes. Binary payloads are never cached, but
// the eviction keeps a stale JSON entry from surviving a route change.
func (db *DB) blobPut(ctx context.Context, req *Request, obj any) error {
	return db.writeKey(ctx, req.URI.Route, req.Key, obj)
}

// weeklyGet reads weekly time series, falling back to the legacy flat
// layout (ts/ instead of ts/diurnal/) for databases written before the
// diurnal subdirectory existed.
func (db *DB) weeklyGet(ctx context.Context, req *Request) (any, error) {
	if req.Access == AccessFile {
		fh, err := db.fileHandle(ctx, req.Key)
		if !IsNotFound(err) {
			return fh, err
		}
		legacy := strings.Replace(req.Key, "/ts/diurnal/", "/ts/", 1)
		if legacy != req.Key {
			if legacyFH, legacyErr := db.fileHandle(ctx, legacy); legacyErr == nil {
				db.logger.Debug("served weekly series from legacy location", slog.String("key", legacy))
				return legacyFH, nil
			}
		}
		return nil, err
	}

	raw, err := db.readKey(ctx, req.Key)
	if IsNotFound(err) {
		legacy := strings.Replace(req.Key, "/ts/diurnal/", "/ts/", 1)
		if legacy != req.Key {
			if legacyRaw, legacyErr := db.readKey(ctx, legacy); legacyErr == nil {
				db.logger.Debug("served weekly series from legacy location", slog.String("key", legacy))
				raw, err = legacyRaw, nil
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return materialize(req.URI.Route, raw, req.Access)
}

// dataVersion returns the data version of the experiment the args point at,
// read once from the experiment's stored config (exp_info.data_version) and
// memoized. Databases written without a version record default to 0.0.1.
func (db *DB) dataVersion(ctx context.Context, args map[string]string) string {
	if db.pinnedVersion != "" {
		return db.pinnedVersion
	}
	project, experiment := args["project"], args["experiment"]
	if project == "" || experiment == "" {
		return ""
	}

	cacheKey := project + "/" + experiment
	db.verMu.Lock()
	if v, ok := db.versions[cacheKey]; ok {
		db.verMu.Unlock()
		return v
	}
	db.verMu.Unlock()

	v := db.readDataVersion(ctx, project, experiment)

	db.verMu.Lock()
	db.versions[cacheKey] = v
	db.verMu.Unlock()
	return v
}

func (db *DB) readDataVersion(ctx context.Context, project, experiment string) string {
	const fallback = "0.0.1"

	key := fmt.Sprintf("%s/%s/cfg_%s_%s.json", project, experiment, project, experiment)
	raw, err := db.readKey(ctx, key)
	if err != nil {
		return fallback
	}
	var cfg struct {
		ExpInfo struct {
			DataVersion string `json:"data_version"`
		} `json:"exp_info"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fallback
	}
	if !ValidVersion(cfg.ExpInfo.DataVersion) {
		return fallback
	}
	return cfg.ExpInfo.DataVersion
}

func (db *DB) invalidateDataVersion(project, experiment string) {
	db.verMu.Lock()
	delete(db.versions, project+"/"+experiment)
	db.verMu.Unlock()
}
