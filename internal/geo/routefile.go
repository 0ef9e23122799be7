package geo

import (
	"encoding/json"
	"fmt"
	"os"
)

// routeFile is the on-disk route format: a JSON object with a name, a
// list of [lon, lat] pairs and an optional elevation per point.
type routeFile struct {
	Name       string      `json:"name"`
	Points     [][]float64 `json:"points"`
	Elevations []float64   `json:"elevations"`
}

// ParseRouteJSON decodes a route document.
func ParseRouteJSON(data []byte) (*Route, error) {
	var rf routeFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse route: %w", err)
	}
	if len(rf.Elevations) != 0 && len(rf.Elevations) != len(rf.Points) {
		return nil, fmt.Errorf("route has %d points but %d elevations", len(rf.Points), len(rf.Elevations))
	}

	route := &Route{Name: rf.Name, Elevations: rf.Elevations}
	for i, p := range rf.Points {
		if len(p) != 2 {
			return nil, fmt.Errorf("route point %d must be a [lon, lat] pair", i)
		}
		route.Points = append(route.Points, Point{Lon: p[0], Lat: p[1]})
	}
	return route, nil
}

// LoadRouteFile reads and decodes a route document from disk.
func LoadRouteFile(path string) (*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route file %s: %w", path, err)
	}
	return ParseRouteJSON(data)
}
