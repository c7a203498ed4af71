package evaldb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CopyOption configures a CopyAll run.
type CopyOption func(*copyConfig)

type copyConfig struct {
	verify   bool
	hashType HashType
	dryRun   bool
	logger   *slog.Logger
}

// WithVerify re-reads each resource from the destination after writing and
// compares content hashes. The hash defaults to SHA-256.
func WithVerify() CopyOption {
	return func(c *copyConfig) {
		c.verify = true
	}
}

// WithVerifyHash selects the checksum used by verification and implies
// WithVerify.
func WithVerifyHash(t HashType) CopyOption {
	return func(c *copyConfig) {
		c.verify = true
		c.hashType = t
	}
}

// DryRun enumerates and logs what would be copied without writing anything.
func DryRun() CopyOption {
	return func(c *copyConfig) {
		c.dryRun = true
	}
}

// WithCopyLogger sets the logger used for per-resource progress.
func WithCopyLogger(logger *slog.Logger) CopyOption {
	return func(c *copyConfig) {
		c.logger = logger
	}
}

// CopyError records one resource that failed to migrate.
type CopyError struct {
	URI string
	Op  string // "get", "put" or "verify"
	Err error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URI, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// CopyResult summarizes a CopyAll run.
type CopyResult struct {
	// Copied counts resources written to the destination (or, in a dry
	// run, that would have been written).
	Copied int

	// Errors lists every resource that failed. A failure never aborts the
	// run; the remaining resources are still attempted.
	Errors []CopyError
}

// Err returns nil when every resource copied cleanly, otherwise an error
// summarizing the failures.
func (r *CopyResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("evaldb: %d of %d resources failed to copy (first: %v)",
		len(r.Errors), r.Copied+len(r.Errors), r.Errors[0].Err)
}

// CopyAll mirrors every resource of src into dst, across backends. Data
// moves as stored: JSON routes transfer their serialized text and binary
// routes their raw bytes, with no version translation applied, so the
// destination is a faithful replica.
//
// Resources that fail are recorded in the result and skipped; the run
// continues. Callers wanting exclusive access during the copy can hold
// src.Lock / dst.Lock around the call.
func CopyAll(ctx context.Context, src, dst *DB, opts ...CopyOption) (*CopyResult, error) {
	cfg := copyConfig{hashType: HashSHA256}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = src.logger
	}

	uris, err := src.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	cfg.logger.Info("starting copy",
		slog.Int("resources", len(uris)),
		slog.Bool("dry_run", cfg.dryRun),
	)

	result := &CopyResult{}
	for _, uri := range uris {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if cfg.dryRun {
			cfg.logger.Info("would copy", slog.String("uri", uri))
			result.Copied++
			continue
		}
		if err := copyOne(ctx, src, dst, uri, &cfg); err != nil {
			var ce *CopyError
			if !errors.As(err, &ce) {
				ce = &CopyError{URI: uri, Op: "put", Err: err}
			}
			cfg.logger.Warn("resource failed to copy",
				slog.String("uri", uri),
				slog.String("op", ce.Op),
				slog.Any("error", ce.Err),
			)
			result.Errors = append(result.Errors, *ce)
			continue
		}
		result.Copied++
		cfg.logger.Debug("copied resource", slog.String("uri", uri))
	}

	cfg.logger.Info("copy finished",
		slog.Int("copied", result.Copied),
		slog.Int("failed", len(result.Errors)),
	)
	return result, nil
}

func copyOne(ctx context.Context, src, dst *DB, uri string, cfg *copyConfig) error {
	u, err := Decode(uri)
	if err != nil {
		return &CopyError{URI: uri, Op: "get", Err: err}
	}

	access := AccessJSON
	if u.Route.Binary {
		access = AccessBlob
	}

	v, err := src.GetByURI(ctx, uri, WithAccess(access), SkipCache())
	if err != nil {
		return &CopyError{URI: uri, Op: "get", Err: err}
	}
	if err := dst.PutByURI(ctx, v, uri); err != nil {
		return &CopyError{URI: uri, Op: "put", Err: err}
	}

	if !cfg.verify {
		return nil
	}
	stored, err := dst.GetByURI(ctx, uri, WithAccess(access), SkipCache())
	if err != nil {
		return &CopyError{URI: uri, Op: "verify", Err: err}
	}
	if HashBytes(rawBytes(v), cfg.hashType) != HashBytes(rawBytes(stored), cfg.hashType) {
		return &CopyError{URI: uri, Op: "verify", Err: fmt.Errorf("content hash mismatch")}
	}
	return nil
}

func rawBytes(v any) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%v", v)
	return buf.Bytes()
}
