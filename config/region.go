package config

import "strings"

// Region describes the island the directory covers
type Region struct {
	Name      string    `json:"name"`
	Center    []float64 `json:"center"`
	ZoomLevel int       `json:"zoom_level"`
	// Bounds is min lat, min lng, max lat, max lng
	Bounds []float64 `json:"bounds"`
	Areas  []string  `json:"areas"`
}

// Bonaire is the region served by the directory
var Bonaire = Region{
	Name:      "bonaire",
	Center:    []float64{12.1784, -68.2385},
	ZoomLevel: 11,
	Bounds:    []float64{11.98, -68.45, 12.33, -68.18},
	Areas: []string{
		"Kralendijk",
		"Rincon",
		"Antriol",
		"Nikiboko",
		"Hato",
		"Belnem",
		"Sorobon",
		"Lagun",
		"Playa",
		"Tera Kora",
		"Klein Bonaire",
	},
}

// GetAreaNames returns the known areas of the region
func (r Region) GetAreaNames() []string {
	names := make([]string, len(r.Areas))
	copy(names, r.Areas)
	return names
}

// CanonicalArea returns the known spelling of an area, matching case-insensitively.
// Unknown names are returned trimmed but otherwise unchanged.
func (r Region) CanonicalArea(name string) string {
	name = strings.TrimSpace(name)
	for _, area := range r.Areas {
		if strings.EqualFold(area, name) {
			return area
		}
	}
	return name
}
