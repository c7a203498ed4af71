package evaldb

import (
	"errors"
	"fmt"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"0.0.1", "0.0.1", 0},
		{"0.13.1", "0.13.2", -1},
		{"0.13.2", "0.13.1", 1},
		{"1.0.0", "0.99.99", 1},
	}
	for _, tt := range tests {
		if got := CompareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestValidVersion(t *testing.T) {
	if !ValidVersion("0.13.2") {
		t.Error("ValidVersion(0.13.2) = false")
	}
	if ValidVersion("not-a-version") {
		t.Error("ValidVersion(not-a-version) = true")
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewTransformRegistry()
	identity := func(obj any) (any, error) { return obj, nil }

	if err := r.Register("bogus", "0.1.0", "0.2.0", identity); !errors.Is(err, ErrUnknownRoute) {
		t.Errorf("Register bogus route = %v, want ErrUnknownRoute", err)
	}
	if err := r.Register("heatmap", "junk", "0.2.0", identity); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("Register bad version = %v, want ErrVersionMismatch", err)
	}
	if err := r.Register("heatmap", "0.1.0", "0.2.0", identity); err != nil {
		t.Errorf("Register failed: %v", err)
	}
}

func TestAdaptIdentity(t *testing.T) {
	r := NewTransformRegistry()
	obj := map[string]any{"a": 1}

	for _, tt := range []struct{ stored, requested string }{
		{"0.1.0", "0.1.0"},
		{"", "0.1.0"},
		{"0.1.0", ""},
	} {
		got, err := r.Adapt("heatmap", obj, tt.stored, tt.requested)
		if err != nil {
			t.Fatalf("Adapt(%q, %q) failed: %v", tt.stored, tt.requested, err)
		}
		// Identity adaptation returns the same value, no copy.
		if fmt.Sprintf("%p", got) != fmt.Sprintf("%p", obj) {
			t.Errorf("Adapt(%q, %q) copied the value", tt.stored, tt.requested)
		}
	}
}

func tagTransform(tag string) TransformFunc {
	return func(obj any) (any, error) {
		return append(append([]string{}, obj.([]string)...), tag), nil
	}
}

func TestAdaptChain(t *testing.T) {
	r := NewTransformRegistry()
	mustRegister(t, r, "heatmap", "0.1.0", "0.2.0", tagTransform("a"))
	mustRegister(t, r, "heatmap", "0.2.0", "0.3.0", tagTransform("b"))
	mustRegister(t, r, "heatmap", "0.3.0", "0.4.0", tagTransform("c"))

	got, err := r.Adapt("heatmap", []string{}, "0.1.0", "0.4.0")
	if err != nil {
		t.Fatalf("Adapt failed: %v", err)
	}
	steps := got.([]string)
	if len(steps) != 3 || steps[0] != "a" || steps[1] != "b" || steps[2] != "c" {
		t.Errorf("chain applied %v, want [a b c]", steps)
	}
}

func TestAdaptDirectTransformPriority(t *testing.T) {
	r := NewTransformRegistry()
	mustRegister(t, r, "heatmap", "0.1.0", "0.2.0", tagTransform("step1"))
	mustRegister(t, r, "heatmap", "0.2.0", "0.3.0", tagTransform("step2"))
	mustRegister(t, r, "heatmap", "0.1.0", "0.3.0", tagTransform("direct"))

	got, err := r.Adapt("heatmap", []string{}, "0.1.0", "0.3.0")
	if err != nil {
		t.Fatalf("Adapt failed: %v", err)
	}
	steps := got.([]string)
	if len(steps) != 1 || steps[0] != "direct" {
		t.Errorf("applied %v, want [direct]", steps)
	}
}

func TestAdaptMissingPath(t *testing.T) {
	r := NewTransformRegistry()
	mustRegister(t, r, "heatmap", "0.1.0", "0.2.0", tagTransform("a"))

	// Gap between 0.2.0 and 0.4.0.
	if _, err := r.Adapt("heatmap", []string{}, "0.1.0", "0.4.0"); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("Adapt with gap = %v, want ErrVersionMismatch", err)
	}
}

func TestAdaptDowngradeWithoutTransformFails(t *testing.T) {
	r := NewTransformRegistry()
	mustRegister(t, r, "heatmap", "0.1.0", "0.2.0", tagTransform("up"))

	// Stored newer than requested and no registered downgrade: hard
	// failure, never a silent return of the newer shape.
	if _, err := r.Adapt("heatmap", []string{}, "0.2.0", "0.1.0"); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("downgrade = %v, want ErrVersionMismatch", err)
	}
}

func TestAdaptRegisteredDowngrade(t *testing.T) {
	r := NewTransformRegistry()
	mustRegister(t, r, "heatmap", "0.2.0", "0.1.0", tagTransform("down"))

	got, err := r.Adapt("heatmap", []string{}, "0.2.0", "0.1.0")
	if err != nil {
		t.Fatalf("Adapt failed: %v", err)
	}
	if steps := got.([]string); len(steps) != 1 || steps[0] != "down" {
		t.Errorf("applied %v, want [down]", steps)
	}
}

func TestSplitCompositeSeriesKeys(t *testing.T) {
	in := map[string]any{
		"EU-AeronetSun-od550aer-Column":  1.5,
		"EU-AeronetSun-abs550aer-Column": 2.5,
		"plain":                          3.5,
	}

	got, err := splitCompositeSeriesKeys(in)
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	out := got.(map[string]any)

	eu := out["EU"].(map[string]any)["AeronetSun"].(map[string]any)
	if eu["od550aer"].(map[string]any)["Column"] != 1.5 {
		t.Errorf("nested value = %v", out)
	}
	if eu["abs550aer"].(map[string]any)["Column"] != 2.5 {
		t.Errorf("sibling series missing: %v", out)
	}
	if out["plain"] != 3.5 {
		t.Errorf("separator-free key rewritten: %v", out)
	}

	// Input must be untouched.
	if _, ok := in["EU"]; ok {
		t.Error("transform mutated its input")
	}
	if len(in) != 3 {
		t.Errorf("input has %d keys after transform", len(in))
	}
}

func TestDefaultTransforms(t *testing.T) {
	r := DefaultTransforms()

	in := map[string]any{"EU-net-var-layer": 1.0}
	got, err := r.Adapt("heatmap_timeseries", in, "0.12.2", "0.13.2")
	if err != nil {
		t.Fatalf("Adapt failed: %v", err)
	}
	if _, ok := got.(map[string]any)["EU"]; !ok {
		t.Errorf("default transform not applied: %v", got)
	}
}

func mustRegister(t *testing.T, r *TransformRegistry, route, from, to string, fn TransformFunc) {
	t.Helper()
	if err := r.Register(route, from, to, fn); err != nil {
		t.Fatalf("Register(%s, %s, %s) failed: %v", route, from, to, err)
	}
}
