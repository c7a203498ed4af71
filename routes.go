package evaldb

import "fmt"

// Route is an immutable catalog entry describing one logical resource kind:
// its name, the ordered argument names a caller must supply, the default
// access type, and dispatch flags.
//
// The catalog is fixed at process start and never mutated.
type Route struct {
	// Name identifies the route, e.g. "heatmap".
	Name string

	// Args lists the required argument names in canonical order.
	// Every argument is required; there are no optional positions.
	Args []string

	// DefaultAccess is the access type used when a caller does not
	// request one explicitly.
	DefaultAccess AccessType

	// Binary marks routes whose payload is not JSON (images and other
	// static assets). Binary routes bypass JSON handling entirely and
	// always dispatch through a dedicated handler.
	Binary bool

	// RequiresHandler marks routes for which generic key-template dispatch
	// is not sufficient: binary assets and legacy-layout exceptions.
	// NewDB refuses a store that leaves such a route without a handler.
	RequiresHandler bool
}

// HasArg reports whether name is one of the route's declared arguments.
func (r *Route) HasArg(name string) bool {
	for _, a := range r.Args {
		if a == name {
			return true
		}
	}
	return false
}

// routes is the fixed catalog. Order is stable so listings are deterministic.
var routes = []*Route{
	{Name: "glob_stats", Args: []string{"project", "experiment", "frequency"}, DefaultAccess: AccessObject},
	{Name: "regional_stats", Args: []string{"project", "experiment", "frequency", "network", "variable", "layer"}, DefaultAccess: AccessObject},
	{Name: "heatmap", Args: []string{"project", "experiment", "frequency", "region", "time"}, DefaultAccess: AccessObject},
	{Name: "contour", Args: []string{"project", "experiment", "obsvar", "model"}, DefaultAccess: AccessObject},
	{Name: "timeseries", Args: []string{"project", "experiment", "location", "network", "obsvar", "layer"}, DefaultAccess: AccessObject},
	{Name: "timeseries_weekly", Args: []string{"project", "experiment", "location", "network", "obsvar", "layer"}, DefaultAccess: AccessObject, RequiresHandler: true},
	{Name: "experiments", Args: []string{"project"}, DefaultAccess: AccessObject},
	{Name: "config", Args: []string{"project", "experiment"}, DefaultAccess: AccessObject},
	{Name: "menu", Args: []string{"project", "experiment"}, DefaultAccess: AccessObject},
	{Name: "statistics", Args: []string{"project", "experiment"}, DefaultAccess: AccessObject},
	{Name: "ranges", Args: []string{"project", "experiment"}, DefaultAccess: AccessObject},
	{Name: "regions", Args: []string{"project", "experiment"}, DefaultAccess: AccessObject},
	{Name: "models_style", Args: []string{"project"}, DefaultAccess: AccessObject},
	{Name: "map", Args: []string{"project", "experiment", "network", "obsvar", "layer", "model", "modvar", "time"}, DefaultAccess: AccessObject},
	{Name: "scatter", Args: []string{"project", "experiment", "network", "obsvar", "layer", "model", "modvar", "time"}, DefaultAccess: AccessObject},
	{Name: "profiles", Args: []string{"project", "experiment", "location", "network", "obsvar"}, DefaultAccess: AccessObject},
	{Name: "heatmap_timeseries", Args: []string{"project", "experiment", "region", "network", "obsvar", "layer"}, DefaultAccess: AccessObject},
	{Name: "forecast", Args: []string{"project", "experiment", "region", "network", "obsvar", "layer"}, DefaultAccess: AccessObject},
	{Name: "gridded_map", Args: []string{"project", "experiment", "obsvar", "model"}, DefaultAccess: AccessObject},
	{Name: "report", Args: []string{"project", "experiment", "title"}, DefaultAccess: AccessObject},
	{Name: "report_image", Args: []string{"project", "experiment", "path"}, DefaultAccess: AccessBlob, Binary: true, RequiresHandler: true},
	{Name: "map_overlay", Args: []string{"project", "experiment", "source", "variable", "date"}, DefaultAccess: AccessBlob, Binary: true, RequiresHandler: true},
}

var routesByName = func() map[string]*Route {
	m := make(map[string]*Route, len(routes))
	for _, r := range routes {
		m[r.Name] = r
	}
	return m
}()

// ResolveRoute returns the catalog entry for name.
// Returns ErrUnknownRoute if name is not in the catalog.
func ResolveRoute(name string) (*Route, error) {
	r, ok := routesByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, name)
	}
	return r, nil
}

// Routes returns the full catalog in stable order.
// The returned slice must not be modified.
func Routes() []*Route {
	return routes
}
