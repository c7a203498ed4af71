package evaldb

import (
	"errors"
	"testing"
)

func mustURI(t *testing.T, route string, args map[string]string) *URI {
	t.Helper()
	u, err := NewURI(route, args)
	if err != nil {
		t.Fatalf("NewURI(%s) failed: %v", route, err)
	}
	return u
}

func TestKeyForURI(t *testing.T) {
	tests := []struct {
		route   string
		args    map[string]string
		version string
		want    string
	}{
		{
			route:   "glob_stats",
			args:    map[string]string{"project": "aero", "experiment": "base", "frequency": "monthly"},
			version: "0.25.0",
			want:    "aero/base/hm/glob_stats_monthly.json",
		},
		{
			route:   "config",
			args:    map[string]string{"project": "aero", "experiment": "base"},
			version: "0.25.0",
			want:    "aero/base/cfg_aero_base.json",
		},
		{
			route:   "experiments",
			args:    map[string]string{"project": "aero"},
			version: "",
			want:    "aero/experiments.json",
		},
		{
			route: "timeseries_weekly",
			args: map[string]string{
				"project": "aero", "experiment": "base", "location": "Leipzig",
				"network": "AeronetSun", "obsvar": "od550aer", "layer": "Column",
			},
			version: "0.25.0",
			want:    "aero/base/ts/diurnal/Leipzig_AeronetSun-od550aer_Column.json",
		},
		{
			route: "map",
			args: map[string]string{
				"project": "aero", "experiment": "base", "network": "AeronetSun",
				"obsvar": "od550aer", "layer": "Column", "model": "ECMWF",
				"modvar": "od550aer", "time": "2024",
			},
			version: "0.14.0",
			want:    "aero/base/map/AeronetSun-od550aer_Column_ECMWF-od550aer_2024.json",
		},
		{
			route:   "contour",
			args:    map[string]string{"project": "aero", "experiment": "base", "obsvar": "od550aer", "model": "ECMWF"},
			version: "0.25.0",
			want:    "aero/base/contour/od550aer_ECMWF.geojson",
		},
		{
			route:   "report_image",
			args:    map[string]string{"project": "aero", "experiment": "base", "path": "img/2024/plot.png"},
			version: "0.25.0",
			want:    "reports/aero/base/img/2024/plot.png",
		},
		{
			route: "map_overlay",
			args: map[string]string{
				"project": "aero", "experiment": "base", "source": "MODIS",
				"variable": "od550aer", "date": "20240115",
			},
			version: "0.25.0",
			want:    "aero/base/overlay/MODIS/od550aer_20240115.png",
		},
	}

	for _, tt := range tests {
		u := mustURI(t, tt.route, tt.args)
		got, err := keyForURI(u, tt.version)
		if err != nil {
			t.Errorf("keyForURI(%s) failed: %v", tt.route, err)
			continue
		}
		if got != tt.want {
			t.Errorf("keyForURI(%s) = %q, want %q", tt.route, got, tt.want)
		}
	}
}

func TestKeyForURIVersionedLayouts(t *testing.T) {
	args := map[string]string{
		"project": "aero", "experiment": "base", "network": "AeronetSun",
		"obsvar": "od550aer", "layer": "Column", "model": "ECMWF",
		"modvar": "od550aer", "time": "2024",
	}
	u := mustURI(t, "map", args)

	// At or above 0.13.2 the layout carries the time component.
	modern, err := keyForURI(u, "0.13.2")
	if err != nil {
		t.Fatalf("keyForURI modern failed: %v", err)
	}
	if modern != "aero/base/map/AeronetSun-od550aer_Column_ECMWF-od550aer_2024.json" {
		t.Errorf("modern key = %q", modern)
	}

	// Below 0.13.2 the layout predates the time component.
	legacy, err := keyForURI(u, "0.13.1")
	if err != nil {
		t.Fatalf("keyForURI legacy failed: %v", err)
	}
	if legacy != "aero/base/map/AeronetSun-od550aer_Column_ECMWF-od550aer.json" {
		t.Errorf("legacy key = %q", legacy)
	}
}

func TestKeyForURIRejectsPathSeparators(t *testing.T) {
	u := mustURI(t, "menu", map[string]string{"project": "aero/evil", "experiment": "base"})
	if _, err := keyForURI(u, "0.25.0"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("keyForURI = %v, want ErrInvalidKey", err)
	}
}

func TestURIForKeyRoundTrip(t *testing.T) {
	cases := []struct {
		route string
		args  map[string]string
	}{
		{"glob_stats", map[string]string{"project": "aero", "experiment": "base", "frequency": "monthly"}},
		{"menu", map[string]string{"project": "aero", "experiment": "base"}},
		{"experiments", map[string]string{"project": "aero"}},
		{"report", map[string]string{"project": "aero", "experiment": "base", "title": "summary"}},
		{"report_image", map[string]string{"project": "aero", "experiment": "base", "path": "img/plot.png"}},
		{"contour", map[string]string{"project": "aero", "experiment": "base", "obsvar": "od550aer", "model": "ECMWF"}},
		{"gridded_map", map[string]string{"project": "aero", "experiment": "base", "obsvar": "od550aer", "model": "ECMWF"}},
		{"map_overlay", map[string]string{"project": "aero", "experiment": "base", "source": "MODIS", "variable": "od550aer", "date": "20240115"}},
	}

	for _, tt := range cases {
		u := mustURI(t, tt.route, tt.args)
		key, err := keyForURI(u, "0.25.0")
		if err != nil {
			t.Fatalf("keyForURI(%s) failed: %v", tt.route, err)
		}
		back, ok := uriForKey(key)
		if !ok {
			t.Errorf("uriForKey(%q) found no route", key)
			continue
		}
		if back.Route.Name != tt.route {
			t.Errorf("uriForKey(%q) route = %s, want %s", key, back.Route.Name, tt.route)
			continue
		}
		for name, v := range tt.args {
			if back.Args[name] != v {
				t.Errorf("uriForKey(%q) arg %s = %q, want %q", key, name, back.Args[name], v)
			}
		}
	}
}

func TestURIForKeyWeeklyVsDaily(t *testing.T) {
	daily, ok := uriForKey("aero/base/ts/Leipzig_AeronetSun-od550aer_Column.json")
	if !ok || daily.Route.Name != "timeseries" {
		t.Errorf("daily key mapped to %v", daily)
	}
	weekly, ok := uriForKey("aero/base/ts/diurnal/Leipzig_AeronetSun-od550aer_Column.json")
	if !ok || weekly.Route.Name != "timeseries_weekly" {
		t.Errorf("weekly key mapped to %v", weekly)
	}
}

func TestURIForKeyUnknown(t *testing.T) {
	for _, key := range []string{
		"random/file.txt",
		"aero/base/unknown_dir/x.json",
		// Legacy map layout without time cannot reconstruct a full
		// argument set and must not be enumerated.
		"aero/base/map/AeronetSun-od550aer_Column_ECMWF-od550aer.json",
	} {
		if u, ok := uriForKey(key); ok {
			t.Errorf("uriForKey(%q) = %s, want no match", key, u.Route.Name)
		}
	}
}

func TestTemplatesCoverCatalog(t *testing.T) {
	for _, route := range Routes() {
		templates := compiledTemplates[route.Name]
		if len(templates) == 0 {
			t.Errorf("route %s has no compiled template", route.Name)
			continue
		}
		complete := false
		for _, ct := range templates {
			if ct.complete {
				complete = true
			}
		}
		if !complete {
			t.Errorf("route %s has no complete template", route.Name)
		}
	}
}
