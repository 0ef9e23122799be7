// Package location defines the position capability consumed by the
// navigation core and its concrete providers: a serial NMEA GPS receiver,
// a fixture-driven simulator and a scriptable test mock.
package location

import (
	"context"
	"errors"
	"math"

	"github.com/trailride/navcore/internal/geo"
)

// ErrPermissionDenied is returned when the host refuses access to
// location data.
var ErrPermissionDenied = errors.New("location permission denied")

// ErrNoFix is returned when a provider has no position to report.
var ErrNoFix = errors.New("no position fix available")

// Sample is a single raw position fix as delivered by a provider. Samples
// are transient: they are produced continuously and never persisted.
type Sample struct {
	Coordinate  geo.Point `json:"coordinate"`
	HeadingDeg  float64   `json:"heading_deg"`
	SpeedMps    float64   `json:"speed_mps"`
	AccuracyM   float64   `json:"accuracy_m"`
	TimestampMs int64     `json:"timestamp_ms"`
}

// Valid reports whether a sample is well formed: finite fields, a
// coordinate inside the valid lon/lat range and non-negative accuracy.
// Malformed samples are expected sensor noise and callers drop them
// silently.
func (s Sample) Valid() bool {
	for _, v := range []float64{s.Coordinate.Lon, s.Coordinate.Lat, s.HeadingDeg, s.SpeedMps, s.AccuracyM} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if s.Coordinate.Lon < -180 || s.Coordinate.Lon > 180 {
		return false
	}
	if s.Coordinate.Lat < -90 || s.Coordinate.Lat > 90 {
		return false
	}
	return s.AccuracyM >= 0
}

// Provider is the location capability. Implementations deliver samples by
// callback; there is no polling loop in the core.
type Provider interface {
	// RequestPermission asks the host for location access. It returns
	// ErrPermissionDenied if refused.
	RequestPermission(ctx context.Context) error

	// LastKnownPosition returns the most recent cached fix, if any. The
	// caller decides whether the fix is fresh enough to use.
	LastKnownPosition() (Sample, bool)

	// CurrentPosition blocks for an authoritative fresh fix, bounded by
	// the context deadline.
	CurrentPosition(ctx context.Context) (Sample, error)

	// Subscribe registers fn to receive every subsequent sample and
	// returns a function that cancels the subscription. fn is invoked
	// from the provider's delivery goroutine; it must not block.
	Subscribe(fn func(Sample)) (unsubscribe func())
}
