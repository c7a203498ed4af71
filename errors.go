package evaldb

import "errors"

// Common errors returned by the evaldb engine and its backends.
var (
	// ErrUnknownRoute is returned when a route name is not in the catalog.
	ErrUnknownRoute = errors.New("evaldb: unknown route")

	// ErrMalformedURI is returned when a URI cannot be decoded against the
	// route catalog (wrong arity, bad escaping, missing route separator).
	ErrMalformedURI = errors.New("evaldb: malformed uri")

	// ErrNotFound is returned when no data is stored at the resolved location.
	ErrNotFound = errors.New("evaldb: not found")

	// ErrUnsupportedAccess is returned when the requested access type cannot
	// be produced or consumed for a resource. It is never downgraded to
	// another access type.
	ErrUnsupportedAccess = errors.New("evaldb: unsupported access type")

	// ErrLockTimeout is returned when lock acquisition exceeds the
	// configured deadline. Callers may retry.
	ErrLockTimeout = errors.New("evaldb: lock acquisition timed out")

	// ErrVersionMismatch is returned when no transform path exists between
	// the stored and the requested version of a resource.
	ErrVersionMismatch = errors.New("evaldb: no version transform path")

	// ErrWriteFailed is returned when a backend-level write fails.
	ErrWriteFailed = errors.New("evaldb: write failed")

	// ErrBackendClosed is returned when operating on a closed store.
	ErrBackendClosed = errors.New("evaldb: backend closed")

	// ErrUnknownBackend is returned by Open when the backend identifier in a
	// descriptor is not registered.
	ErrUnknownBackend = errors.New("evaldb: unknown backend")

	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("evaldb: writer closed")

	// ErrInvalidKey is returned when a storage key is invalid.
	ErrInvalidKey = errors.New("evaldb: invalid storage key")
)

// IsNotFound returns true if the error indicates missing data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnsupportedAccess returns true if the error indicates an access type
// that cannot be served.
func IsUnsupportedAccess(err error) bool {
	return errors.Is(err, ErrUnsupportedAccess)
}

// IsLockTimeout returns true if the error indicates a lock wait deadline.
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsVersionMismatch returns true if the error indicates a missing version
// transform path.
func IsVersionMismatch(err error) bool {
	return errors.Is(err, ErrVersionMismatch)
}
