// Package config holds the persisted navigation settings: commit
// thresholds, motion-detection tuning and the auto-dim preferences.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/trailride/navcore/internal/store"
)

// KeyNavigationConfig is the store key the config persists under.
const KeyNavigationConfig = "navigation_config"

// NavConfig represents the user-tunable navigation parameters. Fields are
// pointers so a partial JSON document only overrides what it names; the
// Get* methods supply defaults for everything else. The same shape is
// used for persisted state and for partial updates from settings screens.
type NavConfig struct {
	// Commit thresholds
	MinDistanceMeters *float64 `json:"min_distance_meters,omitempty"`
	MinHeadingDegrees *float64 `json:"min_heading_degrees,omitempty"`
	MinTimeMs         *int64   `json:"min_time_ms,omitempty"`

	// Motion classification
	MotionVarianceThreshold *float64 `json:"motion_variance_threshold,omitempty"`
	MotionWindowMs          *int64   `json:"motion_window_ms,omitempty"`

	// Display power
	AutoDimEnabled *bool    `json:"auto_dim_enabled,omitempty"`
	AutoDimLevel   *float64 `json:"auto_dim_level,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt64(v int64) *int64       { return &v }

// Default returns a NavConfig with every field explicitly set to its
// default value.
func Default() *NavConfig {
	return &NavConfig{
		MinDistanceMeters:       ptrFloat64(10),
		MinHeadingDegrees:       ptrFloat64(15),
		MinTimeMs:               ptrInt64(5000),
		MotionVarianceThreshold: ptrFloat64(2.0),
		MotionWindowMs:          ptrInt64(10000),
		AutoDimEnabled:          ptrBool(true),
		AutoDimLevel:            ptrFloat64(0.4),
	}
}

// Validate checks that any set fields hold usable values.
func (c *NavConfig) Validate() error {
	if c.MinDistanceMeters != nil && *c.MinDistanceMeters <= 0 {
		return fmt.Errorf("min_distance_meters must be positive, got %f", *c.MinDistanceMeters)
	}
	if c.MinHeadingDegrees != nil && (*c.MinHeadingDegrees <= 0 || *c.MinHeadingDegrees > 180) {
		return fmt.Errorf("min_heading_degrees must be in (0, 180], got %f", *c.MinHeadingDegrees)
	}
	if c.MinTimeMs != nil && *c.MinTimeMs <= 0 {
		return fmt.Errorf("min_time_ms must be positive, got %d", *c.MinTimeMs)
	}
	if c.MotionVarianceThreshold != nil && *c.MotionVarianceThreshold < 0 {
		return fmt.Errorf("motion_variance_threshold must be non-negative, got %f", *c.MotionVarianceThreshold)
	}
	if c.MotionWindowMs != nil && *c.MotionWindowMs <= 0 {
		return fmt.Errorf("motion_window_ms must be positive, got %d", *c.MotionWindowMs)
	}
	if c.AutoDimLevel != nil && (*c.AutoDimLevel <= 0 || *c.AutoDimLevel > 1) {
		return fmt.Errorf("auto_dim_level must be in (0, 1], got %f", *c.AutoDimLevel)
	}
	return nil
}

// Merge overlays the set fields of other onto c, returning a new config.
func (c *NavConfig) Merge(other *NavConfig) *NavConfig {
	merged := *c
	if other == nil {
		return &merged
	}
	if other.MinDistanceMeters != nil {
		merged.MinDistanceMeters = other.MinDistanceMeters
	}
	if other.MinHeadingDegrees != nil {
		merged.MinHeadingDegrees = other.MinHeadingDegrees
	}
	if other.MinTimeMs != nil {
		merged.MinTimeMs = other.MinTimeMs
	}
	if other.MotionVarianceThreshold != nil {
		merged.MotionVarianceThreshold = other.MotionVarianceThreshold
	}
	if other.MotionWindowMs != nil {
		merged.MotionWindowMs = other.MotionWindowMs
	}
	if other.AutoDimEnabled != nil {
		merged.AutoDimEnabled = other.AutoDimEnabled
	}
	if other.AutoDimLevel != nil {
		merged.AutoDimLevel = other.AutoDimLevel
	}
	return &merged
}

// GetMinDistanceMeters returns the commit distance threshold or its default.
func (c *NavConfig) GetMinDistanceMeters() float64 {
	if c.MinDistanceMeters == nil {
		return 10
	}
	return *c.MinDistanceMeters
}

// GetMinHeadingDegrees returns the commit heading threshold or its default.
func (c *NavConfig) GetMinHeadingDegrees() float64 {
	if c.MinHeadingDegrees == nil {
		return 15
	}
	return *c.MinHeadingDegrees
}

// GetMinTime returns the commit time threshold or its default.
func (c *NavConfig) GetMinTime() time.Duration {
	if c.MinTimeMs == nil {
		return 5 * time.Second
	}
	return time.Duration(*c.MinTimeMs) * time.Millisecond
}

// GetMotionVarianceThreshold returns the moving/stationary variance
// threshold or its default.
func (c *NavConfig) GetMotionVarianceThreshold() float64 {
	if c.MotionVarianceThreshold == nil {
		return 2.0
	}
	return *c.MotionVarianceThreshold
}

// GetMotionWindow returns the rolling motion window or its default.
func (c *NavConfig) GetMotionWindow() time.Duration {
	if c.MotionWindowMs == nil {
		return 10 * time.Second
	}
	return time.Duration(*c.MotionWindowMs) * time.Millisecond
}

// GetAutoDimEnabled returns whether auto-dim is enabled, defaulting to true.
func (c *NavConfig) GetAutoDimEnabled() bool {
	if c.AutoDimEnabled == nil {
		return true
	}
	return *c.AutoDimEnabled
}

// GetAutoDimLevel returns the dim level multiplier or its default.
func (c *NavConfig) GetAutoDimLevel() float64 {
	if c.AutoDimLevel == nil {
		return 0.4
	}
	return *c.AutoDimLevel
}

// Load reads the persisted config from s. A missing key or a read/parse
// failure falls back to defaults; persistence problems are logged but
// never fatal.
func Load(s store.Store) *NavConfig {
	raw, ok, err := s.Get(KeyNavigationConfig)
	if err != nil {
		log.Printf("failed to read navigation config, using defaults: %v", err)
		return Default()
	}
	if !ok {
		return Default()
	}

	cfg := &NavConfig{}
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		log.Printf("failed to parse stored navigation config, using defaults: %v", err)
		return Default()
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("stored navigation config invalid, using defaults: %v", err)
		return Default()
	}
	return Default().Merge(cfg)
}

// Save persists the config to s. The write completes before Save returns
// so a caller's acknowledgement implies durability.
func Save(s store.Store, cfg *NavConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode navigation config: %w", err)
	}
	if err := s.Set(KeyNavigationConfig, string(data)); err != nil {
		return fmt.Errorf("failed to persist navigation config: %w", err)
	}
	return nil
}
