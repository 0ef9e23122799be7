// Package progress turns committed positions into remaining-distance,
// remaining-ascent and ETA figures for a loaded route, with a cheap path
// while the device is far from the route.
package progress

import (
	"github.com/trailride/navcore/internal/geo"
	"github.com/trailride/navcore/internal/location"
)

// Status reports which mode the engine computed metrics in.
type Status string

const (
	// StatusFree means no route is loaded; nothing is computed.
	StatusFree Status = "free"
	// StatusToStart means the device is far from the route and only the
	// distance to its start is computed.
	StatusToStart Status = "to_start"
	// StatusOnRoute means the device is near the route and full metrics
	// are available.
	StatusOnRoute Status = "on_route"
)

// MinMovingSpeedMps is the speed floor below which no ETA is produced.
// Reporting an ETA from a near-zero speed would be infinite or absurd;
// absent is better than wrong.
const MinMovingSpeedMps = 0.5

// DefaultFarMarginDeg expands the route bounding box for the near/far
// gate. Roughly 2 km at mid latitudes; a fixed angular margin is a known
// regional approximation.
const DefaultFarMarginDeg = 0.02

// Metrics is the structured display output. Formatting into strings is a
// presentation concern; see the units package for the rounding contract.
type Metrics struct {
	Status Status `json:"status"`

	// ProgressM and RemainingDistanceM are set when Status is OnRoute.
	ProgressM          float64 `json:"progress_m"`
	RemainingDistanceM float64 `json:"remaining_distance_m"`
	RemainingAscentM   float64 `json:"remaining_ascent_m"`

	// DistanceToStartM is set when Status is ToStart.
	DistanceToStartM float64 `json:"distance_to_start_m"`

	// ETAMinutes is nil when the device is not moving fast enough for a
	// meaningful estimate.
	ETAMinutes *float64 `json:"eta_minutes,omitempty"`
}

// Engine computes route progress metrics. It is stateless between calls;
// all route-derived state lives in the cached RouteMetrics.
type Engine struct {
	farMarginDeg float64
}

// NewEngine returns an Engine with the default far margin.
func NewEngine() *Engine {
	return &Engine{farMarginDeg: DefaultFarMarginDeg}
}

// NewEngineWithMargin returns an Engine with a custom near/far margin in
// degrees.
func NewEngineWithMargin(marginDeg float64) *Engine {
	return &Engine{farMarginDeg: marginDeg}
}

// Update computes display metrics for the given position. route and
// metrics may be nil for free navigation.
func (e *Engine) Update(pos location.Sample, route *geo.Route, metrics *geo.RouteMetrics) Metrics {
	if route == nil || metrics == nil {
		return Metrics{Status: StatusFree}
	}

	// Far gate: outside the expanded bounding box the full projection
	// scan is skipped entirely.
	if !metrics.BBox.ContainsWithMargin(pos.Coordinate, e.farMarginDeg) {
		return Metrics{
			Status:           StatusToStart,
			DistanceToStartM: geo.DistanceMeters(pos.Coordinate, metrics.Start),
		}
	}

	_, progressM := geo.ProjectOntoRoute(pos.Coordinate, *route, metrics.CumDistancesM)

	remaining := metrics.TotalDistanceM - progressM
	if remaining < 0 {
		remaining = 0
	}

	ascentSoFar := geo.InterpolateCumulative(progressM, metrics.CumDistancesM, metrics.CumAscentM)
	remainingAscent := metrics.TotalAscentM - ascentSoFar
	if remainingAscent < 0 {
		remainingAscent = 0
	}

	m := Metrics{
		Status:             StatusOnRoute,
		ProgressM:          progressM,
		RemainingDistanceM: remaining,
		RemainingAscentM:   remainingAscent,
	}

	if pos.SpeedMps >= MinMovingSpeedMps {
		eta := remaining / pos.SpeedMps / 60
		m.ETAMinutes = &eta
	}

	return m
}
