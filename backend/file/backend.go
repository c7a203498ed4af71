// Package file provides the local filesystem store. It persists each
// resource as one file under a root directory, which makes the resulting
// tree directly servable and inspectable. This is the default backend.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evalkit/evaldb"
	"github.com/evalkit/evaldb/compress/zstd"
)

func init() {
	evaldb.Register("json_files", NewFromConfig)
}

// zstExt is appended to keys on disk when compression is enabled.
const zstExt = ".zst"

// Config holds configuration for the filesystem store.
type Config struct {
	// Root is the directory all keys resolve under.
	Root string

	// CreateDirs controls whether parent directories are created
	// automatically on write. Default: true.
	CreateDirs bool

	// DirPermissions is the mode for created directories. Default: 0755.
	DirPermissions os.FileMode

	// FilePermissions is the mode for created files. Default: 0644.
	FilePermissions os.FileMode

	// Compress stores objects zstd-compressed (with a .zst suffix on
	// disk). Reads handle mixed trees: a plain file is preferred, a
	// compressed one decompressed transparently.
	Compress bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Root:            ".",
		CreateDirs:      true,
		DirPermissions:  0755,
		FilePermissions: 0644,
	}
}

// Store implements evaldb.Store over a local directory tree.
type Store struct {
	config Config
	closed bool
	mu     sync.RWMutex
}

// New creates a filesystem store with the given configuration.
func New(config Config) *Store {
	if config.Root == "" {
		config.Root = "."
	}
	if config.DirPermissions == 0 {
		config.DirPermissions = 0755
	}
	if config.FilePermissions == 0 {
		config.FilePermissions = 0644
	}
	return &Store{config: config}
}

// NewFromConfig creates a filesystem store from a config map.
// Supported keys:
//   - root: root directory (default: ".")
//   - create_dirs: "true" or "false" (default: "true")
//   - compress: "true" to store objects zstd-compressed
func NewFromConfig(configMap map[string]string) (evaldb.Store, error) {
	config := DefaultConfig()

	if root, ok := configMap["root"]; ok && root != "" {
		config.Root = root
	}
	if createDirs, ok := configMap["create_dirs"]; ok {
		config.CreateDirs = createDirs != "false"
	}
	if compress, ok := configMap["compress"]; ok {
		config.Compress = compress == "true"
	}
	return New(config), nil
}

// NewWriter creates a writer for the given key.
func (s *Store) NewWriter(ctx context.Context, key string) (io.WriteCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validateKey(key); err != nil {
		return nil, err
	}

	fullPath := s.fullPath(key)
	if s.config.Compress {
		fullPath += zstExt
	}

	if s.config.CreateDirs {
		dir := filepath.Dir(fullPath)
		if err := os.MkdirAll(dir, s.config.DirPermissions); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.config.FilePermissions)
	if err != nil {
		return nil, fmt.Errorf("creating file %s: %w", key, err)
	}
	if s.config.Compress {
		// A compressed write replaces any plain-file predecessor so reads
		// never resurrect stale data.
		_ = os.Remove(s.fullPath(key))
		return zstd.NewWriter(f)
	}
	return f, nil
}

// NewReader creates a reader for the given key.
func (s *Store) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validateKey(key); err != nil {
		return nil, err
	}

	fullPath := s.fullPath(key)

	f, err := os.Open(fullPath)
	if os.IsNotExist(err) {
		var zerr error
		f, zerr = os.Open(fullPath + zstExt)
		if zerr == nil {
			return zstd.NewReader(f)
		}
		if os.IsNotExist(zerr) {
			return nil, fmt.Errorf("%w: %s", evaldb.ErrNotFound, key)
		}
		err = zerr
	}
	if err != nil {
		return nil, fmt.Errorf("opening file %s: %w", key, err)
	}
	return f, nil
}

// Exists checks if a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.checkClosed(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.validateKey(key); err != nil {
		return false, err
	}

	for _, p := range []string{s.fullPath(key), s.fullPath(key) + zstExt} {
		_, err := os.Stat(p)
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			return false, fmt.Errorf("checking existence of %s: %w", key, err)
		}
	}
	return false, nil
}

// Delete removes a key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.validateKey(key); err != nil {
		return err
	}

	for _, p := range []string{s.fullPath(key), s.fullPath(key) + zstExt} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	return nil
}

// List lists keys with the given prefix. Compressed files are reported
// under their logical key, without the on-disk suffix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := s.config.Root
	if prefix != "" {
		root = s.fullPath(prefix)
	}

	var keys []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.config.Root, path)
		if err != nil {
			return err
		}
		keys = append(keys, strings.TrimSuffix(filepath.ToSlash(rel), zstExt))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	return keys, nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fullPath returns the filesystem path for a key.
func (s *Store) fullPath(key string) string {
	return filepath.Join(s.config.Root, filepath.FromSlash(key))
}

// validateKey rejects empty keys and path traversal.
func (s *Store) validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", evaldb.ErrInvalidKey)
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", evaldb.ErrInvalidKey, key)
	}
	return nil
}

func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return evaldb.ErrBackendClosed
	}
	return nil
}

var _ evaldb.Store = (*Store)(nil)
