package evaldb

import (
	"errors"
	"testing"
)

func TestNewURIValidation(t *testing.T) {
	tests := []struct {
		name    string
		route   string
		args    map[string]string
		wantErr error
	}{
		{
			name:  "valid",
			route: "glob_stats",
			args:  map[string]string{"project": "aero", "experiment": "base", "frequency": "monthly"},
		},
		{
			name:    "unknown route",
			route:   "nope",
			args:    map[string]string{},
			wantErr: ErrUnknownRoute,
		},
		{
			name:    "missing arg",
			route:   "glob_stats",
			args:    map[string]string{"project": "aero", "experiment": "base"},
			wantErr: ErrMalformedURI,
		},
		{
			name:    "wrong arg name",
			route:   "glob_stats",
			args:    map[string]string{"project": "aero", "experiment": "base", "freq": "monthly"},
			wantErr: ErrMalformedURI,
		},
		{
			name:    "extra arg",
			route:   "menu",
			args:    map[string]string{"project": "aero", "experiment": "base", "bonus": "x"},
			wantErr: ErrMalformedURI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewURI(tt.route, tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewURI error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewURI failed: %v", err)
			}
			if u.Route.Name != tt.route {
				t.Errorf("Route = %q, want %q", u.Route.Name, tt.route)
			}
		})
	}
}

func TestNewURICopiesArgs(t *testing.T) {
	args := map[string]string{"project": "aero", "experiment": "base"}
	u, err := NewURI("menu", args)
	if err != nil {
		t.Fatalf("NewURI failed: %v", err)
	}
	args["project"] = "mutated"
	if u.Args["project"] != "aero" {
		t.Error("URI shares caller's args map")
	}
}

func TestURIStringAndKey(t *testing.T) {
	u, err := NewURI("heatmap", map[string]string{
		"project": "aero", "experiment": "base", "frequency": "monthly",
		"region": "EU", "time": "2024",
	})
	if err != nil {
		t.Fatalf("NewURI failed: %v", err)
	}

	wantKey := "heatmap:aero/base/monthly/EU/2024"
	if u.Key() != wantKey {
		t.Errorf("Key = %q, want %q", u.Key(), wantKey)
	}
	if u.String() != wantKey {
		t.Errorf("String without query = %q, want %q", u.String(), wantKey)
	}

	full := u.WithAccess(AccessJSON).WithVersion("0.13.2")
	want := wantKey + "?access_type=JSON_STR&version=0.13.2"
	if full.String() != want {
		t.Errorf("String = %q, want %q", full.String(), want)
	}
	// The base key is unaffected by access type and version.
	if full.Key() != wantKey {
		t.Errorf("Key with query = %q, want %q", full.Key(), wantKey)
	}
}

func TestURIRoundTripAllRoutes(t *testing.T) {
	for _, route := range Routes() {
		args := make(map[string]string, len(route.Args))
		for i, name := range route.Args {
			args[name] = name + "-v" + string(rune('0'+i))
		}
		u, err := NewURI(route.Name, args)
		if err != nil {
			t.Fatalf("NewURI(%s) failed: %v", route.Name, err)
		}
		u = u.WithAccess(route.DefaultAccess).WithVersion("1.2.3")

		decoded, err := Decode(u.String())
		if err != nil {
			t.Fatalf("Decode(%q) failed: %v", u.String(), err)
		}
		if decoded.Route != u.Route {
			t.Errorf("route %s: decoded route %q", route.Name, decoded.Route.Name)
		}
		for name, v := range u.Args {
			if decoded.Args[name] != v {
				t.Errorf("route %s: arg %s = %q, want %q", route.Name, name, decoded.Args[name], v)
			}
		}
		if decoded.Access != u.Access || decoded.Version != u.Version {
			t.Errorf("route %s: access/version = %q/%q, want %q/%q",
				route.Name, decoded.Access, decoded.Version, u.Access, u.Version)
		}
	}
}

func TestURIEscaping(t *testing.T) {
	u, err := NewURI("timeseries", map[string]string{
		"project": "aero", "experiment": "base", "location": "Par/is 12",
		"network": "Aero?net", "obsvar": "od550aer", "layer": "Column",
	})
	if err != nil {
		t.Fatalf("NewURI failed: %v", err)
	}

	decoded, err := Decode(u.String())
	if err != nil {
		t.Fatalf("Decode(%q) failed: %v", u.String(), err)
	}
	if decoded.Args["location"] != "Par/is 12" {
		t.Errorf("location = %q", decoded.Args["location"])
	}
	if decoded.Args["network"] != "Aero?net" {
		t.Errorf("network = %q", decoded.Args["network"])
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		uri     string
		wantErr error
	}{
		{"no-separator", ErrMalformedURI},
		{"bogus:a/b", ErrUnknownRoute},
		{"menu:aero", ErrMalformedURI},            // too few args
		{"menu:aero/base/extra", ErrMalformedURI}, // too many args
		{"menu:aero/base?access_type=NOPE", ErrMalformedURI},
		{"menu:aero/%zz", ErrMalformedURI}, // bad escaping
	}
	for _, tt := range tests {
		if _, err := Decode(tt.uri); !errors.Is(err, tt.wantErr) {
			t.Errorf("Decode(%q) = %v, want %v", tt.uri, err, tt.wantErr)
		}
	}
}

func TestDecodeIgnoresUnknownQueryParams(t *testing.T) {
	u, err := Decode("menu:aero/base?future_param=x&version=0.1.0")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if u.Version != "0.1.0" {
		t.Errorf("Version = %q, want 0.1.0", u.Version)
	}
}
