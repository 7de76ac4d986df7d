// Package geo expands a listing's country into its region/continent
// hierarchy so buyer target lists can name any level of the hierarchy.
package geo

import "strings"

type place struct {
	region    string
	continent string
}

// Countries the marketplace currently operates in. A geography outside the
// table still matches itself, it just has no broader hierarchy.
var places = map[string]place{
	"france":               {"western europe", "europe"},
	"germany":              {"western europe", "europe"},
	"belgium":              {"western europe", "europe"},
	"netherlands":          {"western europe", "europe"},
	"luxembourg":           {"western europe", "europe"},
	"austria":              {"western europe", "europe"},
	"switzerland":          {"western europe", "europe"},
	"spain":                {"southern europe", "europe"},
	"portugal":             {"southern europe", "europe"},
	"italy":                {"southern europe", "europe"},
	"greece":               {"southern europe", "europe"},
	"united kingdom":       {"northern europe", "europe"},
	"ireland":              {"northern europe", "europe"},
	"denmark":              {"northern europe", "europe"},
	"sweden":               {"northern europe", "europe"},
	"norway":               {"northern europe", "europe"},
	"finland":              {"northern europe", "europe"},
	"poland":               {"eastern europe", "europe"},
	"czech republic":       {"eastern europe", "europe"},
	"romania":              {"eastern europe", "europe"},
	"united states":        {"north america", "americas"},
	"canada":               {"north america", "americas"},
	"mexico":               {"north america", "americas"},
	"brazil":               {"south america", "americas"},
	"argentina":            {"south america", "americas"},
	"chile":                {"south america", "americas"},
	"japan":                {"east asia", "asia"},
	"south korea":          {"east asia", "asia"},
	"singapore":            {"southeast asia", "asia"},
	"india":                {"south asia", "asia"},
	"australia":            {"oceania", "oceania"},
	"new zealand":          {"oceania", "oceania"},
	"south africa":         {"southern africa", "africa"},
	"morocco":              {"northern africa", "africa"},
	"israel":               {"western asia", "asia"},
	"united arab emirates": {"western asia", "asia"},
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Expand returns the country plus its region and continent, normalized to
// lower case. An unknown country expands to itself only.
func Expand(country string) []string {
	c := normalize(country)
	if c == "" {
		return nil
	}
	p, ok := places[c]
	if !ok {
		return []string{c}
	}
	return []string{c, p.region, p.continent}
}

// Intersects reports whether the listing's geography, expanded into its
// hierarchy, intersects the buyer's target list. Targets may name a
// country, a region or a continent.
func Intersects(country string, targets []string) bool {
	expanded := Expand(country)
	if len(expanded) == 0 || len(targets) == 0 {
		return false
	}
	for _, t := range targets {
		nt := normalize(t)
		for _, e := range expanded {
			if nt == e {
				return true
			}
		}
	}
	return false
}
