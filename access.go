package evaldb

import (
	"encoding/json"
	"fmt"
	"io"
)

// AccessType specifies the materialized form in which a resource is read or
// written.
type AccessType string

const (
	// AccessObject returns the parsed in-memory structure
	// (map[string]any / []any / scalars). This is the caller default.
	AccessObject AccessType = "OBJ"

	// AccessJSON returns the resource as an unparsed JSON string.
	AccessJSON AccessType = "JSON_STR"

	// AccessFile returns an open read-only handle at the backend-native
	// location. Get-only: a put with AccessFile fails with
	// ErrUnsupportedAccess. Only stores exposing a stable on-disk location
	// can serve it.
	AccessFile AccessType = "FILE"

	// AccessBlob returns raw bytes. Used for binary routes; it is only
	// interchangeable with file handles and raw bytes, never with JSON.
	AccessBlob AccessType = "BLOB"
)

// ParseAccessType converts a string to an AccessType.
// Unknown strings are rejected at the boundary, never guessed.
func ParseAccessType(s string) (AccessType, error) {
	switch AccessType(s) {
	case AccessObject, AccessJSON, AccessFile, AccessBlob:
		return AccessType(s), nil
	}
	return "", fmt.Errorf("%w: %q is not a valid access type", ErrUnsupportedAccess, s)
}

func (t AccessType) String() string { return string(t) }

// FileHandle is an open, read-only stream over a resource's backend-native
// location. The caller owns the handle and must close it. File handles are
// never cached.
type FileHandle struct {
	// Path is the stable on-disk location backing the handle.
	Path string

	io.ReadCloser
}

// materialize converts a resource's raw byte form into the requested access
// type. It performs the minimum number of transformations: JSON text is
// returned without a parse, objects with a single parse. AccessFile is not
// producible from bytes and is handled by the engine via native passthrough
// before bytes are ever read.
func materialize(route *Route, raw []byte, requested AccessType) (any, error) {
	if route.Binary {
		switch requested {
		case AccessBlob:
			return raw, nil
		case AccessObject, AccessJSON:
			return nil, fmt.Errorf("%w: route %s holds binary data, not JSON", ErrUnsupportedAccess, route.Name)
		}
		return nil, fmt.Errorf("%w: cannot produce %s from raw bytes", ErrUnsupportedAccess, requested)
	}

	switch requested {
	case AccessJSON:
		return string(raw), nil
	case AccessObject:
		var obj any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("evaldb: parsing resource for route %s: %w", route.Name, err)
		}
		return obj, nil
	case AccessBlob:
		return nil, fmt.Errorf("%w: route %s holds JSON, request OBJ or JSON_STR", ErrUnsupportedAccess, route.Name)
	}
	return nil, fmt.Errorf("%w: cannot produce %s from raw bytes", ErrUnsupportedAccess, requested)
}

// encodePut converts a caller-supplied value into the byte form a store
// writes. An already-serialized JSON string is written as-is with no
// parse/reserialize round trip; anything else is serialized once.
func encodePut(route *Route, obj any) ([]byte, error) {
	if _, ok := obj.(*FileHandle); ok {
		return nil, fmt.Errorf("%w: FILE access is get-only", ErrUnsupportedAccess)
	}

	if route.Binary {
		switch v := obj.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
		return nil, fmt.Errorf("%w: route %s requires raw bytes", ErrUnsupportedAccess, route.Name)
	}

	switch v := obj.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("evaldb: serializing value for route %s: %w", route.Name, err)
	}
	return data, nil
}
