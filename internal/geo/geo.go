// Package geo provides the pure geometry used by route navigation:
// great-circle distances, cumulative route metrics, nearest-point
// projection and bounding-box containment.
package geo

import "math"

// EarthRadiusM is the mean Earth radius in meters used for all
// great-circle calculations.
const EarthRadiusM = 6371000.0

// Point is a WGS-84 coordinate in decimal degrees.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Route is an ordered polyline of at least two points, optionally with a
// parallel elevation series in meters. A Route is immutable once loaded
// into a session.
type Route struct {
	Points     []Point   `json:"points"`
	Elevations []float64 `json:"elevations,omitempty"`
	Name       string    `json:"name,omitempty"`
}

// BBox is an axis-aligned bounding box in degrees.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// ContainsWithMargin reports whether p falls inside the box expanded by
// margin degrees on every side.
//
// The margin is a fixed angular value, so the effective distance it
// represents shrinks with latitude. This is accurate enough for regional
// use and is kept as-is rather than scaled; changing it changes product
// behaviour.
func (b BBox) ContainsWithMargin(p Point, marginDeg float64) bool {
	return p.Lon >= b.MinLon-marginDeg && p.Lon <= b.MaxLon+marginDeg &&
		p.Lat >= b.MinLat-marginDeg && p.Lat <= b.MaxLat+marginDeg
}

// DistanceMeters returns the great-circle (haversine) distance between two
// points in meters. It is symmetric and zero for identical points.
func DistanceMeters(p1, p2 Point) float64 {
	lat1 := p1.Lat * math.Pi / 180
	lat2 := p2.Lat * math.Pi / 180
	dLat := (p2.Lat - p1.Lat) * math.Pi / 180
	dLon := (p2.Lon - p1.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// Bearing returns the initial great-circle bearing from p1 to p2 in
// degrees clockwise from true north, normalised to [0, 360).
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * math.Pi / 180
	lat2 := p2.Lat * math.Pi / 180
	dLon := (p2.Lon - p1.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// HeadingDelta returns the absolute difference between two headings in
// degrees, wrapped to the short way around so the result is in [0, 180].
func HeadingDelta(h1, h2 float64) float64 {
	d := math.Abs(h2 - h1)
	d = math.Mod(d, 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}
