package evaldb

import (
	"log/slog"
	"time"
)

// Option configures a DB at construction time.
type Option func(*dbConfig)

type dbConfig struct {
	logger      *slog.Logger
	cacheSize   int
	lockTimeout time.Duration
	transforms  *TransformRegistry
	dataVersion string
}

// WithLogger sets the structured logger used by the engine.
// If unset, a null logger is used (no logging).
func WithLogger(logger *slog.Logger) Option {
	return func(c *dbConfig) {
		c.logger = logger
	}
}

// WithCacheSize bounds the read cache to n entries.
// Non-positive values keep the default capacity.
func WithCacheSize(n int) Option {
	return func(c *dbConfig) {
		c.cacheSize = n
	}
}

// WithLockTimeout bounds how long a write waits for the cross-process lock
// before failing with ErrLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(c *dbConfig) {
		c.lockTimeout = d
	}
}

// WithTransforms replaces the default version-transform registry.
func WithTransforms(r *TransformRegistry) Option {
	return func(c *dbConfig) {
		c.transforms = r
	}
}

// WithDataVersion pins the database's data version instead of discovering
// it from each experiment's stored config.
func WithDataVersion(v string) Option {
	return func(c *dbConfig) {
		c.dataVersion = v
	}
}

// CallOption configures a single get or put. Every recognized option is
// enumerated here; there is no open-ended parameter passing.
type CallOption func(*callConfig)

type callConfig struct {
	access     AccessType
	version    string
	def        any
	hasDefault bool
	skipCache  bool
}

// WithAccess requests a specific access type instead of the route default.
func WithAccess(t AccessType) CallOption {
	return func(c *callConfig) {
		c.access = t
	}
}

// WithVersion requests the resource shaped as the given schema version.
// On get the stored shape is translated to this version; on put the given
// value is assumed to be shaped at this version and translated to the
// database's data version before writing. If no transform path exists the
// call fails with ErrVersionMismatch.
func WithVersion(v string) CallOption {
	return func(c *callConfig) {
		c.version = v
	}
}

// WithDefault supplies a fallback returned as-is (not converted to the
// requested access type) when the resource does not exist.
func WithDefault(def any) CallOption {
	return func(c *callConfig) {
		c.def = def
		c.hasDefault = true
	}
}

// SkipCache bypasses the read cache for this call. The backend is always
// consulted and the result is not memoized.
func SkipCache() CallOption {
	return func(c *callConfig) {
		c.skipCache = true
	}
}

func applyCallOptions(route *Route, opts []CallOption) callConfig {
	cfg := callConfig{access: route.DefaultAccess}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
