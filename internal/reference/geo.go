package reference

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"sales-insights/internal/models"
)

//go:embed geo_default.json
var defaultGeoJSON []byte

// DefaultCentroid is used for states that have no coordinate entry.
var DefaultCentroid = models.Coordinate{Lat: 20.5937, Lon: 78.9629}

type geoFile struct {
	Centroid *models.Coordinate           `json:"centroid"`
	States   map[string]models.Coordinate `json:"states"`
	Cities   map[string]models.Coordinate `json:"cities"`
}

// Geo answers coordinate lookups for states and cities by normalized name.
type Geo struct {
	centroid models.Coordinate
	states   map[string]models.Coordinate
	cities   map[string]models.Coordinate
}

// DefaultGeo returns the built-in coordinate tables.
func DefaultGeo() *Geo {
	g, err := parseGeo(defaultGeoJSON)
	if err != nil {
		panic(fmt.Sprintf("reference: built-in geo data is invalid: %v", err))
	}
	return g
}

// LoadGeo reads coordinate tables from a JSON file; an empty path yields
// the built-in tables.
func LoadGeo(path string) (*Geo, error) {
	if path == "" {
		return DefaultGeo(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load geo reference: %w", err)
	}
	g, err := parseGeo(data)
	if err != nil {
		return nil, fmt.Errorf("load geo reference %s: %w", path, err)
	}
	return g, nil
}

func parseGeo(data []byte) (*Geo, error) {
	var f geoFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	g := &Geo{
		centroid: DefaultCentroid,
		states:   make(map[string]models.Coordinate, len(f.States)),
		cities:   make(map[string]models.Coordinate, len(f.Cities)),
	}
	if f.Centroid != nil {
		g.centroid = *f.Centroid
	}
	for name, c := range f.States {
		g.states[Key(name)] = c
	}
	for name, c := range f.Cities {
		g.cities[Key(name)] = c
	}
	return g, nil
}

// StateCoord resolves a state, falling back to the national centroid. The
// boolean reports whether the state itself was found.
func (g *Geo) StateCoord(state string) (models.Coordinate, bool) {
	if c, ok := g.states[Key(state)]; ok {
		return c, true
	}
	return g.centroid, false
}

// CityCoord resolves a city, district or town. Unknown places have no
// coordinate.
func (g *Geo) CityCoord(place string) (models.Coordinate, bool) {
	c, ok := g.cities[Key(place)]
	return c, ok
}

func (g *Geo) Centroid() models.Coordinate {
	return g.centroid
}
