package file

import (
	"context"
	"fmt"
	"os"

	"github.com/evalkit/evaldb"
)

// Stat returns metadata about the object at key. For compressed objects the
// size is the on-disk (compressed) size; the modification time is exact
// either way.
func (s *Store) Stat(ctx context.Context, key string) (evaldb.ObjectInfo, error) {
	if err := s.checkClosed(); err != nil {
		return evaldb.ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return evaldb.ObjectInfo{}, err
	}
	if err := s.validateKey(key); err != nil {
		return evaldb.ObjectInfo{}, err
	}

	for _, p := range []string{s.fullPath(key), s.fullPath(key) + zstExt} {
		info, err := os.Stat(p)
		if err == nil {
			return evaldb.ObjectInfo{
				Key:     key,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}, nil
		}
		if !os.IsNotExist(err) {
			return evaldb.ObjectInfo{}, fmt.Errorf("stat %s: %w", key, err)
		}
	}
	return evaldb.ObjectInfo{}, fmt.Errorf("%w: %s", evaldb.ErrNotFound, key)
}

// FilePath returns the on-disk location backing key. Only uncompressed
// objects have a stable plain-bytes location.
func (s *Store) FilePath(ctx context.Context, key string) (string, error) {
	if err := s.checkClosed(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.validateKey(key); err != nil {
		return "", err
	}

	fullPath := s.fullPath(key)
	if _, err := os.Stat(fullPath); err == nil {
		return fullPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat %s: %w", key, err)
	}
	if _, err := os.Stat(fullPath + zstExt); err == nil {
		return "", fmt.Errorf("%w: %s is stored compressed", evaldb.ErrUnsupportedAccess, key)
	}
	return "", fmt.Errorf("%w: %s", evaldb.ErrNotFound, key)
}

// Features returns the capabilities of the filesystem store.
func (s *Store) Features() evaldb.Features {
	return evaldb.Features{
		FilePath: !s.config.Compress,
		Stat:     true,
	}
}

var _ evaldb.ExtendedStore = (*Store)(nil)
