// Package memory provides an in-memory store, primarily for tests and
// ephemeral scratch databases. Contents are lost when the store is closed
// or the process exits.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evalkit/evaldb"
)

func init() {
	evaldb.Register("memory", NewFromConfig)
}

type object struct {
	data    []byte
	modTime time.Time
}

// Store implements evaldb.Store backed by a map.
type Store struct {
	objects map[string]*object
	closed  bool
	mu      sync.RWMutex
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{objects: make(map[string]*object)}
}

// NewFromConfig creates an in-memory store. All configuration is ignored.
func NewFromConfig(_ map[string]string) (evaldb.Store, error) {
	return New(), nil
}

// NewWriter creates a writer for key. The object becomes visible atomically
// when the writer is closed.
func (s *Store) NewWriter(ctx context.Context, key string) (io.WriteCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return &memoryWriter{store: s, key: normalizeKey(key)}, nil
}

// NewReader creates a reader over a snapshot of key's current content.
func (s *Store) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	obj, exists := s.objects[normalizeKey(key)]
	s.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", evaldb.ErrNotFound, key)
	}

	// Snapshot so later writes don't race the reader.
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists checks if a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.checkClosed(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateKey(key); err != nil {
		return false, err
	}

	s.mu.RLock()
	_, exists := s.objects[normalizeKey(key)]
	s.mu.RUnlock()
	return exists, nil
}

// Delete removes a key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.objects, normalizeKey(key))
	s.mu.Unlock()
	return nil
}

// List returns all keys with the given prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalPrefix := normalizeKey(prefix)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.objects {
		if normalPrefix == "" || strings.HasPrefix(k, normalPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close discards all objects and marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.objects = nil
	return nil
}

// Stat returns metadata about the object at key.
func (s *Store) Stat(ctx context.Context, key string) (evaldb.ObjectInfo, error) {
	if err := s.checkClosed(); err != nil {
		return evaldb.ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return evaldb.ObjectInfo{}, err
	}
	if err := validateKey(key); err != nil {
		return evaldb.ObjectInfo{}, err
	}

	s.mu.RLock()
	obj, exists := s.objects[normalizeKey(key)]
	s.mu.RUnlock()
	if !exists {
		return evaldb.ObjectInfo{}, fmt.Errorf("%w: %s", evaldb.ErrNotFound, key)
	}
	return evaldb.ObjectInfo{
		Key:     normalizeKey(key),
		Size:    int64(len(obj.data)),
		ModTime: obj.modTime,
	}, nil
}

// FilePath is not supported; objects have no on-disk location.
func (s *Store) FilePath(ctx context.Context, key string) (string, error) {
	return "", fmt.Errorf("%w: in-memory objects have no file path", evaldb.ErrUnsupportedAccess)
}

// Features returns the capabilities of the in-memory store.
func (s *Store) Features() evaldb.Features {
	return evaldb.Features{
		FilePath: false,
		Stat:     true,
	}
}

// Count returns the number of stored objects.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Clear removes all objects.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]*object)
}

func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return evaldb.ErrBackendClosed
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", evaldb.ErrInvalidKey)
	}
	cleaned := path.Clean(key)
	if strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("%w: %s", evaldb.ErrInvalidKey, key)
	}
	return nil
}

func normalizeKey(key string) string {
	if key == "" {
		return ""
	}
	key = strings.TrimPrefix(path.Clean(key), "/")
	if key == "." {
		return ""
	}
	return key
}

// memoryWriter buffers writes and commits on Close.
type memoryWriter struct {
	store  *Store
	key    string
	buffer bytes.Buffer
	closed bool
	mu     sync.Mutex
}

func (w *memoryWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, evaldb.ErrWriterClosed
	}
	return w.buffer.Write(p)
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	if w.store.closed {
		return evaldb.ErrBackendClosed
	}
	w.store.objects[w.key] = &object{
		data:    w.buffer.Bytes(),
		modTime: time.Now(),
	}
	return nil
}

var _ evaldb.ExtendedStore = (*Store)(nil)
