package evaldb

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
)

// TransformFunc rewrites a resource payload from one schema version to
// another. Implementations must not mutate their input.
type TransformFunc func(obj any) (any, error)

type transform struct {
	from, to string
	fn       TransformFunc
}

// TransformRegistry holds version transforms registered per (route, from,
// to) triple. Chains are composed in ascending version order one registered
// step at a time; an explicitly registered direct transform between two
// versions shortcuts the chain.
type TransformRegistry struct {
	mu      sync.RWMutex
	byRoute map[string][]transform
}

// NewTransformRegistry returns an empty registry.
func NewTransformRegistry() *TransformRegistry {
	return &TransformRegistry{byRoute: make(map[string][]transform)}
}

// canonVersion normalizes a version token to the "vX.Y.Z" form expected by
// golang.org/x/mod/semver. Stored data uses bare "X.Y.Z" tokens.
func canonVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// CompareVersions orders two version tokens by standard major.minor.patch
// precedence. The result is -1, 0 or +1.
func CompareVersions(a, b string) int {
	return semver.Compare(canonVersion(a), canonVersion(b))
}

// ValidVersion reports whether v is a well-formed version token.
func ValidVersion(v string) bool {
	return semver.IsValid(canonVersion(v))
}

// Register adds a transform for route from version `from` to version `to`.
// Fails with ErrUnknownRoute for catalog misses and ErrVersionMismatch for
// malformed version tokens.
func (r *TransformRegistry) Register(routeName, from, to string, fn TransformFunc) error {
	if _, err := ResolveRoute(routeName); err != nil {
		return err
	}
	if !ValidVersion(from) || !ValidVersion(to) {
		return fmt.Errorf("%w: invalid version range %q -> %q", ErrVersionMismatch, from, to)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRoute[routeName] = append(r.byRoute[routeName], transform{from: from, to: to, fn: fn})
	return nil
}

// Adapt rewrites obj from its stored version to the requested version.
//
// When stored == requested (or either is unset) obj is returned unchanged
// with no allocation. A registered direct (stored, requested) transform is
// applied in preference to a chain. Otherwise a chain is walked one
// registered step at a time in version order; if no complete path exists the
// call fails with ErrVersionMismatch. In particular a stored version newer
// than the requested one with no registered downgrade is a hard failure,
// never a silent return of the newer shape.
func (r *TransformRegistry) Adapt(routeName string, obj any, stored, requested string) (any, error) {
	if stored == "" || requested == "" || CompareVersions(stored, requested) == 0 {
		return obj, nil
	}

	r.mu.RLock()
	chain := r.byRoute[routeName]
	r.mu.RUnlock()

	// Direct transforms take priority over chained ones.
	for _, t := range chain {
		if CompareVersions(t.from, stored) == 0 && CompareVersions(t.to, requested) == 0 {
			return t.fn(obj)
		}
	}

	upgrade := CompareVersions(stored, requested) < 0
	current := stored
	for {
		next, ok := nextStep(chain, current, requested, upgrade)
		if !ok {
			return nil, fmt.Errorf("%w: route %s has no transform path %s -> %s",
				ErrVersionMismatch, routeName, stored, requested)
		}
		var err error
		obj, err = next.fn(obj)
		if err != nil {
			return nil, fmt.Errorf("evaldb: transform %s -> %s for route %s: %w",
				next.from, next.to, routeName, err)
		}
		current = next.to
		if CompareVersions(current, requested) == 0 {
			return obj, nil
		}
	}
}

// nextStep picks the registered transform leaving `current` that moves the
// smallest distance toward `target` without overshooting it.
func nextStep(chain []transform, current, target string, upgrade bool) (transform, bool) {
	var best transform
	found := false
	for _, t := range chain {
		if CompareVersions(t.from, current) != 0 {
			continue
		}
		if upgrade {
			if CompareVersions(t.to, current) <= 0 || CompareVersions(t.to, target) > 0 {
				continue
			}
			if !found || CompareVersions(t.to, best.to) < 0 {
				best, found = t, true
			}
		} else {
			if CompareVersions(t.to, current) >= 0 || CompareVersions(t.to, target) < 0 {
				continue
			}
			if !found || CompareVersions(t.to, best.to) > 0 {
				best, found = t, true
			}
		}
	}
	return best, found
}

// DefaultTransforms returns a registry pre-loaded with the known legacy
// payload migrations. Currently this covers heatmap_timeseries files written
// before 0.13.2, whose series were keyed by a composite
// "region-network-obsvar-layer" string instead of nested maps.
func DefaultTransforms() *TransformRegistry {
	r := NewTransformRegistry()
	// Registration over the static catalog cannot fail.
	_ = r.Register("heatmap_timeseries", "0.12.2", "0.13.2", splitCompositeSeriesKeys)
	return r
}

// splitCompositeSeriesKeys converts {"a-b-c": v} into {"a": {"b": {"c": v}}}
// without mutating its input. Keys without a separator are kept as-is.
func splitCompositeSeriesKeys(obj any) (any, error) {
	m, ok := obj.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", obj)
	}
	out := make(map[string]any, len(m))
	for key, value := range m {
		parts := strings.Split(key, "-")
		node := out
		for i, part := range parts {
			if i == len(parts)-1 {
				node[part] = value
				break
			}
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
	}
	return out, nil
}
