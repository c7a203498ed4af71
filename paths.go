package evaldb

import (
	"fmt"
	"regexp"
	"strings"
)

// Key templates map a (route, args, data version) triple to the hierarchical
// storage key used by every store. The layout mirrors the established
// on-disk structure of evaluation databases, so existing trees are readable
// as-is. A template whose version range excludes the database's data version
// is skipped; ranges are inclusive.
//
// Placeholders are {arg}; {arg*} spans path separators and may only appear
// last.
type keyTemplate struct {
	pattern    string
	minVersion string // inclusive, "" = unbounded
	maxVersion string // inclusive, "" = unbounded
}

var keyTemplates = map[string][]keyTemplate{
	"glob_stats":     {{pattern: "{project}/{experiment}/hm/glob_stats_{frequency}.json"}},
	"regional_stats": {{pattern: "{project}/{experiment}/hm/regional_stats_{frequency}_{network}_{variable}_{layer}.json"}},
	"heatmap":        {{pattern: "{project}/{experiment}/hm/heatmap_{frequency}_{region}_{time}.json"}},
	"contour":        {{pattern: "{project}/{experiment}/contour/{obsvar}_{model}.geojson"}},
	"timeseries":     {{pattern: "{project}/{experiment}/ts/{location}_{network}-{obsvar}_{layer}.json"}},
	"timeseries_weekly": {
		{pattern: "{project}/{experiment}/ts/diurnal/{location}_{network}-{obsvar}_{layer}.json"},
	},
	"experiments": {{pattern: "{project}/experiments.json"}},
	"config":      {{pattern: "{project}/{experiment}/cfg_{project}_{experiment}.json"}},
	"menu":        {{pattern: "{project}/{experiment}/menu.json"}},
	"statistics":  {{pattern: "{project}/{experiment}/statistics.json"}},
	"ranges":      {{pattern: "{project}/{experiment}/ranges.json"}},
	"regions":     {{pattern: "{project}/{experiment}/regions.json"}},
	"models_style": {
		{pattern: "{project}/models-style.json"},
	},
	"map": {
		{pattern: "{project}/{experiment}/map/{network}-{obsvar}_{layer}_{model}-{modvar}_{time}.json", minVersion: "0.13.2"},
		{pattern: "{project}/{experiment}/map/{network}-{obsvar}_{layer}_{model}-{modvar}.json", maxVersion: "0.13.1"},
	},
	"scatter": {
		{pattern: "{project}/{experiment}/scat/{network}-{obsvar}_{layer}_{model}-{modvar}_{time}.json", minVersion: "0.13.2"},
		{pattern: "{project}/{experiment}/scat/{network}-{obsvar}_{layer}_{model}-{modvar}.json", maxVersion: "0.13.1"},
	},
	"profiles":           {{pattern: "{project}/{experiment}/profiles/{location}_{network}-{obsvar}.json"}},
	"heatmap_timeseries": {{pattern: "{project}/{experiment}/hm/ts/{region}-{network}-{obsvar}-{layer}.json"}},
	"forecast":           {{pattern: "{project}/{experiment}/forecast/{region}_{network}-{obsvar}_{layer}.json"}},
	"gridded_map":        {{pattern: "{project}/{experiment}/contour/{obsvar}_{model}.json"}},
	"report":             {{pattern: "reports/{project}/{experiment}/{title}.json"}},
	"report_image":       {{pattern: "reports/{project}/{experiment}/{path*}"}},
	"map_overlay":        {{pattern: "{project}/{experiment}/overlay/{source}/{variable}_{date}.png"}},
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\*?\}`)

// compiledTemplate pairs a template with its reverse-matching regexp.
type compiledTemplate struct {
	keyTemplate
	route *Route
	re    *regexp.Regexp
	args  []string // placeholder names in pattern order
	// complete is true when the pattern names every route argument, so a
	// reverse match can reconstruct a full URI.
	complete bool
}

var compiledTemplates = func() map[string][]compiledTemplate {
	out := make(map[string][]compiledTemplate, len(keyTemplates))
	for _, route := range routes {
		templates, ok := keyTemplates[route.Name]
		if !ok {
			panic("evaldb: route " + route.Name + " has no key template")
		}
		for _, t := range templates {
			ct := compiledTemplate{keyTemplate: t, route: route}
			var re strings.Builder
			re.WriteString("^")
			rest := t.pattern
			for {
				loc := placeholderRe.FindStringIndex(rest)
				if loc == nil {
					re.WriteString(regexp.QuoteMeta(rest))
					break
				}
				re.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
				ph := rest[loc[0]:loc[1]]
				name := strings.Trim(ph, "{}*")
				if !route.HasArg(name) {
					panic("evaldb: template for " + route.Name + " references unknown arg " + name)
				}
				ct.args = append(ct.args, name)
				if strings.HasSuffix(ph, "*}") {
					re.WriteString("(.+)")
				} else {
					re.WriteString("([^/]+?)")
				}
				rest = rest[loc[1]:]
			}
			re.WriteString("$")
			ct.re = regexp.MustCompile(re.String())
			seen := make(map[string]bool, len(ct.args))
			for _, a := range ct.args {
				seen[a] = true
			}
			ct.complete = len(seen) == len(route.Args)
			out[route.Name] = append(out[route.Name], ct)
		}
	}
	return out
}()

// matchesVersion reports whether the template applies to dataVersion.
// An unset data version matches only unbounded templates' first entry.
func (t *keyTemplate) matchesVersion(dataVersion string) bool {
	if dataVersion == "" {
		return t.minVersion == "" && t.maxVersion == ""
	}
	if t.minVersion != "" && CompareVersions(dataVersion, t.minVersion) < 0 {
		return false
	}
	if t.maxVersion != "" && CompareVersions(dataVersion, t.maxVersion) > 0 {
		return false
	}
	return true
}

// keyForURI renders the storage key for a URI given the database's data
// version. Argument values must not contain path separators except for
// spanning placeholders.
func keyForURI(u *URI, dataVersion string) (string, error) {
	for _, ct := range compiledTemplates[u.Route.Name] {
		if !ct.matchesVersion(dataVersion) && dataVersion != "" {
			continue
		}
		key := ct.pattern
		valid := true
		for _, name := range u.Route.Args {
			v := u.Args[name]
			if strings.Contains(key, "{"+name+"*}") {
				key = strings.ReplaceAll(key, "{"+name+"*}", v)
				continue
			}
			if strings.Contains(v, "/") {
				valid = false
				break
			}
			key = strings.ReplaceAll(key, "{"+name+"}", v)
		}
		if !valid {
			return "", fmt.Errorf("%w: arg value with path separator for route %s", ErrInvalidKey, u.Route.Name)
		}
		if strings.Contains(key, "{") {
			// Template does not cover every argument (legacy layouts); the
			// next template in range order is tried instead.
			continue
		}
		return key, nil
	}
	return "", fmt.Errorf("%w: no key template for route %s at data version %q",
		ErrInvalidKey, u.Route.Name, dataVersion)
}

// uriForKey reverse-maps a storage key to the URI it belongs to. Returns
// false for keys not produced by any complete template, e.g. files from
// legacy layouts missing arguments. Values containing the template's own
// separator characters may not reverse-map to their original split; this
// mirrors the historical on-disk naming scheme.
func uriForKey(key string) (*URI, bool) {
	for _, route := range routes {
		for _, ct := range compiledTemplates[route.Name] {
			if !ct.complete {
				continue
			}
			m := ct.re.FindStringSubmatch(key)
			if m == nil {
				continue
			}
			args := make(map[string]string, len(route.Args))
			for i, name := range ct.args {
				args[name] = m[i+1]
			}
			if len(args) != len(route.Args) {
				continue
			}
			return &URI{Route: route, Args: args}, true
		}
	}
	return nil, false
}
