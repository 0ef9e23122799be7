// Package units holds the display rounding contract for navigation
// figures. The core emits structured numbers; these helpers define the
// one way they are rendered so every surface shows identical values.
package units

import (
	"fmt"
	"math"
)

// FormatDistanceKm renders a distance in kilometers: one decimal below
// 10 km, none at or above. 700 m renders as "0.7", 12.3 km as "12".
func FormatDistanceKm(meters float64) string {
	km := meters / 1000
	if km >= 10 {
		return fmt.Sprintf("%.0f", km)
	}
	return fmt.Sprintf("%.1f", km)
}

// FormatAscent renders an ascent as whole meters.
func FormatAscent(meters float64) string {
	return fmt.Sprintf("%.0f", math.Round(meters))
}

// FormatETA renders an ETA in whole minutes, or "--" when none is
// available.
func FormatETA(minutes *float64) string {
	if minutes == nil {
		return "--"
	}
	return fmt.Sprintf("%.0f", math.Round(*minutes))
}

// MpsToKmh converts a speed in meters per second to km/h.
func MpsToKmh(speedMps float64) float64 {
	return speedMps * 3.6
}
