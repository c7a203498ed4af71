package evaldb

import (
	"crypto/md5" //nolint:gosec // MD5 used for content verification, not security
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// HashType represents a hash algorithm used for content verification
// during migration.
type HashType string

const (
	// HashNone indicates no hash.
	HashNone HashType = ""

	// HashMD5 is the MD5 hash algorithm.
	HashMD5 HashType = "md5"

	// HashSHA256 is the SHA-256 hash algorithm.
	HashSHA256 HashType = "sha256"
)

// String returns the string representation of the hash type.
func (h HashType) String() string {
	return string(h)
}

// NewHash creates a new hash.Hash for the given hash type.
// Returns nil if the hash type is not supported.
func NewHash(t HashType) hash.Hash {
	switch t {
	case HashMD5:
		return md5.New() //nolint:gosec // MD5 used for content verification
	case HashSHA256:
		return sha256.New()
	default:
		return nil
	}
}

// HashBytes computes the hash of a byte slice.
// Returns the hex-encoded hash string, or "" for an unsupported type.
func HashBytes(data []byte, t HashType) string {
	h := NewHash(t)
	if h == nil {
		return ""
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
