package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrRouteTooShort is returned for routes with fewer than two points.
var ErrRouteTooShort = errors.New("route needs at least two points")

// RouteMetrics holds the derived, cached quantities for a loaded route.
// CumDistancesM[0] is always 0, the series is non-decreasing, and its last
// element equals TotalDistanceM. CumAscentM follows the same shape when
// elevations are present.
type RouteMetrics struct {
	TotalDistanceM float64   `json:"total_distance_m"`
	TotalAscentM   float64   `json:"total_ascent_m"`
	CumDistancesM  []float64 `json:"-"`
	CumAscentM     []float64 `json:"-"`
	BBox           BBox      `json:"bbox"`
	Start          Point     `json:"start"`
}

// ComputeRouteMetrics walks the route once, accumulating segment distances
// and positive elevation deltas. Descents contribute zero ascent, never a
// negative value. The bounding box is the running min/max over all
// vertices.
func ComputeRouteMetrics(route Route) (*RouteMetrics, error) {
	n := len(route.Points)
	if n < 2 {
		return nil, ErrRouteTooShort
	}
	if len(route.Elevations) > 0 && len(route.Elevations) != n {
		return nil, fmt.Errorf("elevation series length %d does not match %d route points", len(route.Elevations), n)
	}

	m := &RouteMetrics{
		CumDistancesM: make([]float64, n),
		CumAscentM:    make([]float64, n),
		Start:         route.Points[0],
		BBox: BBox{
			MinLon: route.Points[0].Lon,
			MinLat: route.Points[0].Lat,
			MaxLon: route.Points[0].Lon,
			MaxLat: route.Points[0].Lat,
		},
	}

	hasElevations := len(route.Elevations) == n

	for i := 1; i < n; i++ {
		p := route.Points[i]

		m.TotalDistanceM += DistanceMeters(route.Points[i-1], p)
		m.CumDistancesM[i] = m.TotalDistanceM

		if hasElevations {
			if delta := route.Elevations[i] - route.Elevations[i-1]; delta > 0 {
				m.TotalAscentM += delta
			}
		}
		m.CumAscentM[i] = m.TotalAscentM

		if p.Lon < m.BBox.MinLon {
			m.BBox.MinLon = p.Lon
		}
		if p.Lon > m.BBox.MaxLon {
			m.BBox.MaxLon = p.Lon
		}
		if p.Lat < m.BBox.MinLat {
			m.BBox.MinLat = p.Lat
		}
		if p.Lat > m.BBox.MaxLat {
			m.BBox.MaxLat = p.Lat
		}
	}

	return m, nil
}

// ProjectOntoRoute finds the nearest route vertex to pos by brute-force
// scan and refines progress by interpolating toward whichever adjacent
// vertex is closer, weighting the two cumulative distances by relative
// distance. Routes are small (dozens to low hundreds of points) so the
// linear scan is deliberate; a spatial index would buy nothing here.
//
// A position before the route start projects to ~0 progress and one past
// the end projects to ~total distance.
func ProjectOntoRoute(pos Point, route Route, cumDistances []float64) (nearestIndex int, progressM float64) {
	nearestIndex = 0
	nearestDist := DistanceMeters(pos, route.Points[0])
	for i := 1; i < len(route.Points); i++ {
		if d := DistanceMeters(pos, route.Points[i]); d < nearestDist {
			nearestDist = d
			nearestIndex = i
		}
	}

	progressM = cumDistances[nearestIndex]

	// Refine between the nearest vertex and its closer neighbour. The
	// weights are the relative distances to each endpoint, so a position
	// midway between two vertices lands midway between their cumulative
	// distances.
	neighbor := -1
	neighborDist := 0.0
	if nearestIndex > 0 {
		neighbor = nearestIndex - 1
		neighborDist = DistanceMeters(pos, route.Points[neighbor])
	}
	if nearestIndex < len(route.Points)-1 {
		if d := DistanceMeters(pos, route.Points[nearestIndex+1]); neighbor < 0 || d < neighborDist {
			neighbor = nearestIndex + 1
			neighborDist = d
		}
	}
	if neighbor >= 0 {
		// Only interpolate when the position actually lies alongside the
		// segment: if the angle at the nearest vertex is obtuse the
		// position is beyond the route end (or before its start) and the
		// vertex's own cumulative distance is the right answer.
		segLen := math.Abs(cumDistances[neighbor] - cumDistances[nearestIndex])
		alongside := neighborDist*neighborDist <= nearestDist*nearestDist+segLen*segLen
		total := nearestDist + neighborDist
		if alongside && total > 0 {
			w := nearestDist / total
			progressM = cumDistances[nearestIndex] + w*(cumDistances[neighbor]-cumDistances[nearestIndex])
		}
	}

	return nearestIndex, progressM
}

// InterpolateCumulative evaluates a cumulative series (distance or ascent)
// at an arbitrary progress value by linear interpolation over the
// cumulative-distance knots. Progress outside the route clamps to the
// first or last value.
func InterpolateCumulative(progressM float64, cumDistances, series []float64) float64 {
	if progressM <= cumDistances[0] {
		return series[0]
	}
	last := len(cumDistances) - 1
	if progressM >= cumDistances[last] {
		return series[last]
	}
	for i := 1; i <= last; i++ {
		if progressM <= cumDistances[i] {
			span := cumDistances[i] - cumDistances[i-1]
			if span <= 0 {
				return series[i]
			}
			w := (progressM - cumDistances[i-1]) / span
			return series[i-1] + w*(series[i]-series[i-1])
		}
	}
	return series[last]
}
