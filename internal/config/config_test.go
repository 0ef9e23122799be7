package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/trailride/navcore/internal/store"
)

func TestDefaults(t *testing.T) {
	c := &NavConfig{}

	if got := c.GetMinDistanceMeters(); got != 10 {
		t.Errorf("GetMinDistanceMeters() = %f, want 10", got)
	}
	if got := c.GetMinHeadingDegrees(); got != 15 {
		t.Errorf("GetMinHeadingDegrees() = %f, want 15", got)
	}
	if got := c.GetMinTime(); got != 5*time.Second {
		t.Errorf("GetMinTime() = %v, want 5s", got)
	}
	if got := c.GetMotionVarianceThreshold(); got != 2.0 {
		t.Errorf("GetMotionVarianceThreshold() = %f, want 2.0", got)
	}
	if got := c.GetMotionWindow(); got != 10*time.Second {
		t.Errorf("GetMotionWindow() = %v, want 10s", got)
	}
	if !c.GetAutoDimEnabled() {
		t.Error("GetAutoDimEnabled() = false, want true")
	}
	if got := c.GetAutoDimLevel(); got != 0.4 {
		t.Errorf("GetAutoDimLevel() = %f, want 0.4", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     NavConfig
		wantErr bool
	}{
		{"empty is valid", NavConfig{}, false},
		{"full defaults valid", *Default(), false},
		{"zero distance", NavConfig{MinDistanceMeters: ptrFloat64(0)}, true},
		{"negative distance", NavConfig{MinDistanceMeters: ptrFloat64(-5)}, true},
		{"heading above 180", NavConfig{MinHeadingDegrees: ptrFloat64(181)}, true},
		{"zero time", NavConfig{MinTimeMs: ptrInt64(0)}, true},
		{"negative variance", NavConfig{MotionVarianceThreshold: ptrFloat64(-1)}, true},
		{"zero window", NavConfig{MotionWindowMs: ptrInt64(0)}, true},
		{"dim level zero", NavConfig{AutoDimLevel: ptrFloat64(0)}, true},
		{"dim level above one", NavConfig{AutoDimLevel: ptrFloat64(1.1)}, true},
		{"dim level one", NavConfig{AutoDimLevel: ptrFloat64(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMergePartial(t *testing.T) {
	base := Default()
	partial := &NavConfig{
		MinDistanceMeters: ptrFloat64(25),
		AutoDimEnabled:    ptrBool(false),
	}

	merged := base.Merge(partial)

	if merged.GetMinDistanceMeters() != 25 {
		t.Errorf("merged distance = %f, want 25", merged.GetMinDistanceMeters())
	}
	if merged.GetAutoDimEnabled() {
		t.Error("merged auto-dim should be disabled")
	}
	// Untouched fields keep the base values.
	if merged.GetMinHeadingDegrees() != 15 {
		t.Errorf("merged heading = %f, want 15", merged.GetMinHeadingDegrees())
	}
	// The base is not mutated.
	if !base.GetAutoDimEnabled() {
		t.Error("Merge mutated the receiver")
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	s := store.NewMemory()

	cfg := Default().Merge(&NavConfig{
		MinDistanceMeters: ptrFloat64(30),
		AutoDimLevel:      ptrFloat64(0.25),
	})
	if err := Save(s, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := Load(s)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*store.Memory)
	}{
		{"missing key", func(m *store.Memory) {}},
		{"garbage payload", func(m *store.Memory) { m.Set(KeyNavigationConfig, "{not json") }},
		{"invalid values", func(m *store.Memory) { m.Set(KeyNavigationConfig, `{"min_distance_meters":-1}`) }},
		{"read failure", func(m *store.Memory) {
			m.FailReads = true
			m.FailErr = errFake
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := store.NewMemory()
			tt.setup(m)
			got := Load(m)
			if diff := cmp.Diff(Default(), got); diff != "" {
				t.Errorf("Load did not fall back to defaults (-want +got):\n%s", diff)
			}
		})
	}
}

var errFake = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "injected store failure" }
