package evaldb

import (
	"errors"
	"testing"
)

func TestResolveRoute(t *testing.T) {
	r, err := ResolveRoute("heatmap")
	if err != nil {
		t.Fatalf("ResolveRoute failed: %v", err)
	}
	if r.Name != "heatmap" {
		t.Errorf("Name = %q", r.Name)
	}

	if _, err := ResolveRoute("not_a_route"); !errors.Is(err, ErrUnknownRoute) {
		t.Errorf("ResolveRoute unknown = %v, want ErrUnknownRoute", err)
	}
}

func TestCatalogShape(t *testing.T) {
	seen := make(map[string]bool)
	for _, r := range Routes() {
		if seen[r.Name] {
			t.Errorf("duplicate route name %q", r.Name)
		}
		seen[r.Name] = true

		if len(r.Args) == 0 {
			t.Errorf("route %s has no arguments", r.Name)
		}
		argSeen := make(map[string]bool)
		for _, a := range r.Args {
			if argSeen[a] {
				t.Errorf("route %s repeats arg %q", r.Name, a)
			}
			argSeen[a] = true
		}

		// Binary payloads always need dedicated dispatch and default to
		// raw bytes.
		if r.Binary {
			if !r.RequiresHandler {
				t.Errorf("binary route %s does not require a handler", r.Name)
			}
			if r.DefaultAccess != AccessBlob {
				t.Errorf("binary route %s defaults to %s", r.Name, r.DefaultAccess)
			}
		} else if r.DefaultAccess != AccessObject {
			t.Errorf("JSON route %s defaults to %s", r.Name, r.DefaultAccess)
		}
	}
	if len(seen) != 22 {
		t.Errorf("catalog has %d routes, want 22", len(seen))
	}
}

func TestHasArg(t *testing.T) {
	r, _ := ResolveRoute("glob_stats")
	if !r.HasArg("frequency") {
		t.Error("HasArg(frequency) = false")
	}
	if r.HasArg("region") {
		t.Error("HasArg(region) = true")
	}
}
