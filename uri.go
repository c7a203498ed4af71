package evaldb

import (
	"fmt"
	"net/url"
	"strings"
)

// URI is the canonical identifier of a single resource: a route, a full set
// of route arguments, and optionally an access type and a version token.
//
// The string form is
//
//	<route>:<arg1>/<arg2>/...?access_type=<T>&version=<V>
//
// with each argument value path-escaped, so values may contain any
// character. Two URIs are equal iff all fields are equal. Unrecognized query
// parameters are ignored on decode for forward compatibility.
type URI struct {
	Route *Route

	// Args maps argument name to value. Arity and names always match the
	// route's declared shape; a URI is never partially normalized.
	Args map[string]string

	// Access is the requested access type. Empty means the route default.
	Access AccessType

	// Version is the requested version token, empty when unversioned.
	Version string
}

// NewURI builds a normalized URI for route name and args.
// Fails with ErrUnknownRoute or ErrMalformedURI if the route does not exist
// or args do not match its declared shape.
func NewURI(routeName string, args map[string]string) (*URI, error) {
	route, err := ResolveRoute(routeName)
	if err != nil {
		return nil, err
	}
	if len(args) != len(route.Args) {
		return nil, fmt.Errorf("%w: route %s takes %d args, got %d",
			ErrMalformedURI, route.Name, len(route.Args), len(args))
	}
	for _, name := range route.Args {
		if _, ok := args[name]; !ok {
			return nil, fmt.Errorf("%w: route %s missing arg %q", ErrMalformedURI, route.Name, name)
		}
	}
	copied := make(map[string]string, len(args))
	for k, v := range args {
		copied[k] = v
	}
	return &URI{Route: route, Args: copied}, nil
}

// WithAccess returns a copy of the URI with the access type set.
func (u *URI) WithAccess(t AccessType) *URI {
	c := *u
	c.Access = t
	return &c
}

// WithVersion returns a copy of the URI with the version token set.
func (u *URI) WithVersion(v string) *URI {
	c := *u
	c.Version = v
	return &c
}

// Key returns the canonical resource key: the URI string without query
// parameters. Two requests for the same resource share a Key regardless of
// access type or version, which makes Key the cache discriminator.
func (u *URI) Key() string {
	var b strings.Builder
	b.WriteString(u.Route.Name)
	b.WriteByte(':')
	for i, name := range u.Route.Args {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(url.PathEscape(u.Args[name]))
	}
	return b.String()
}

// String returns the canonical URI string. Encoding is deterministic and
// total for any valid URI: Decode(u.String()) reproduces u exactly.
func (u *URI) String() string {
	s := u.Key()
	var query []string
	if u.Access != "" {
		query = append(query, "access_type="+url.QueryEscape(string(u.Access)))
	}
	if u.Version != "" {
		query = append(query, "version="+url.QueryEscape(u.Version))
	}
	if len(query) > 0 {
		s += "?" + strings.Join(query, "&")
	}
	return s
}

// Decode parses a canonical URI string.
// Fails with ErrUnknownRoute for routes not in the catalog, and with
// ErrMalformedURI for wrong argument arity or bad escaping. It never
// guesses: a URI either matches a route's declared shape exactly or the
// decode fails.
func Decode(s string) (*URI, error) {
	head, rawQuery, _ := strings.Cut(s, "?")

	routeName, rawArgs, ok := strings.Cut(head, ":")
	if !ok {
		return nil, fmt.Errorf("%w: missing route separator in %q", ErrMalformedURI, s)
	}
	route, err := ResolveRoute(routeName)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(rawArgs, "/")
	if len(parts) != len(route.Args) {
		return nil, fmt.Errorf("%w: route %s takes %d args, got %d in %q",
			ErrMalformedURI, route.Name, len(route.Args), len(parts), s)
	}

	args := make(map[string]string, len(parts))
	for i, name := range route.Args {
		v, err := url.PathUnescape(parts[i])
		if err != nil {
			return nil, fmt.Errorf("%w: bad escaping in arg %q of %q", ErrMalformedURI, name, s)
		}
		args[name] = v
	}

	u := &URI{Route: route, Args: args}

	if rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, fmt.Errorf("%w: bad query in %q", ErrMalformedURI, s)
		}
		// Recognized parameters only; everything else is ignored so newer
		// writers remain readable.
		if t := values.Get("access_type"); t != "" {
			access, err := ParseAccessType(t)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedURI, err)
			}
			u.Access = access
		}
		if v := values.Get("version"); v != "" {
			u.Version = v
		}
	}

	return u, nil
}
