// Package commit rate-limits the raw position stream into qualified
// commit events and classifies motion state from a rolling displacement
// window.
package commit

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/trailride/navcore/internal/geo"
	"github.com/trailride/navcore/internal/location"
)

// Reason identifies which threshold qualified a sample as a commit.
type Reason string

const (
	// ReasonInit marks the first sample after a start or reset; it always
	// commits.
	ReasonInit Reason = "init"
	// ReasonDistance marks a commit triggered by distance moved.
	ReasonDistance Reason = "distance"
	// ReasonHeading marks a commit triggered by heading change.
	ReasonHeading Reason = "heading"
	// ReasonTime marks a commit triggered by elapsed time.
	ReasonTime Reason = "time"
)

// Motion is the moving/stationary classification.
type Motion string

const (
	// Moving indicates the displacement variance exceeds the threshold.
	Moving Motion = "moving"
	// Stationary indicates the device is effectively not moving.
	Stationary Motion = "stationary"
)

// Event is a qualified position update: the sample that committed plus
// the deltas relative to the previous commit.
type Event struct {
	location.Sample

	DistanceSinceLastM float64
	HeadingDeltaDeg    float64
	TimeSinceLastMs    int64
	Reason             Reason
	Motion             Motion
}

// Thresholds are the tunables the filter operates under.
type Thresholds struct {
	MinDistanceM   float64
	MinHeadingDeg  float64
	MinTime        time.Duration
	MotionVariance float64
	MotionWindow   time.Duration
}

// Filter qualifies a noisy sample stream into commit events. It is safe
// for concurrent use, though the session delivers samples serially.
type Filter struct {
	mu         sync.Mutex
	thresholds Thresholds
	last       *location.Sample
	window     []location.Sample
}

// New returns a Filter with the given thresholds.
func New(t Thresholds) *Filter {
	return &Filter{thresholds: t}
}

// SetThresholds swaps in new tunables; the committed reference and motion
// window carry over.
func (f *Filter) SetThresholds(t Thresholds) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thresholds = t
}

// Reset clears the committed reference and the motion window. The next
// accepted sample commits with ReasonInit.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = nil
	f.window = nil
}

// Accept evaluates one sample. It returns the commit event and true when
// the sample qualifies, or nil and false when it is filtered out.
//
// Malformed samples are dropped without advancing any state. A sample
// older than the last committed one is dropped so commits are never
// emitted out of order.
func (f *Filter) Accept(s location.Sample) (*Event, bool) {
	if !s.Valid() {
		return nil, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.last != nil && s.TimestampMs < f.last.TimestampMs {
		return nil, false
	}

	f.pushWindow(s)
	motion := f.classify()

	if f.last == nil {
		f.last = &s
		return &Event{Sample: s, Reason: ReasonInit, Motion: motion}, true
	}

	dist := geo.DistanceMeters(f.last.Coordinate, s.Coordinate)
	headingDelta := geo.HeadingDelta(f.last.HeadingDeg, s.HeadingDeg)
	elapsed := s.TimestampMs - f.last.TimestampMs

	var reason Reason
	switch {
	case dist >= f.thresholds.MinDistanceM:
		reason = ReasonDistance
	case headingDelta >= f.thresholds.MinHeadingDeg:
		reason = ReasonHeading
	case time.Duration(elapsed)*time.Millisecond >= f.thresholds.MinTime:
		reason = ReasonTime
	default:
		return nil, false
	}

	f.last = &s
	return &Event{
		Sample:             s,
		DistanceSinceLastM: dist,
		HeadingDeltaDeg:    headingDelta,
		TimeSinceLastMs:    elapsed,
		Reason:             reason,
		Motion:             motion,
	}, true
}

// pushWindow appends s and evicts samples that have fallen out of the
// motion window relative to the newest timestamp.
func (f *Filter) pushWindow(s location.Sample) {
	f.window = append(f.window, s)
	cutoff := s.TimestampMs - f.thresholds.MotionWindow.Milliseconds()
	start := 0
	for start < len(f.window) && f.window[start].TimestampMs < cutoff {
		start++
	}
	if start > 0 {
		f.window = append(f.window[:0], f.window[start:]...)
	}
}

// classify computes the variance of each window sample's displacement
// from the window's mean position, in meters. High variance means the
// positions are spread out, i.e. the device is moving. The result is
// independent of what triggered the commit: spinning in place fires
// heading commits while still classifying stationary.
func (f *Filter) classify() Motion {
	if len(f.window) < 2 {
		return Stationary
	}

	var meanLon, meanLat float64
	for _, s := range f.window {
		meanLon += s.Coordinate.Lon
		meanLat += s.Coordinate.Lat
	}
	mean := geo.Point{
		Lon: meanLon / float64(len(f.window)),
		Lat: meanLat / float64(len(f.window)),
	}

	displacements := make([]float64, len(f.window))
	for i, s := range f.window {
		displacements[i] = geo.DistanceMeters(s.Coordinate, mean)
	}

	if stat.Variance(displacements, nil) > f.thresholds.MotionVariance {
		return Moving
	}
	return Stationary
}
