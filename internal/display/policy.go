// Package display implements the power policy that dims the screen after
// a sustained stationary period and restores it on motion, wake or
// session end.
package display

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/trailride/navcore/internal/brightness"
	"github.com/trailride/navcore/internal/commit"
	"github.com/trailride/navcore/internal/store"
	"github.com/trailride/navcore/internal/timeutil"
)

const (
	// DimDelay is how long the device must stay stationary before the
	// screen dims.
	DimDelay = 15 * time.Second

	// DimFloor is the absolute minimum brightness the policy will ever
	// set, regardless of the configured dim level.
	DimFloor = 0.12

	// RepromptCooldown throttles how often a denied settings permission
	// may be asked for again.
	RepromptCooldown = 30 * 24 * time.Hour
)

// KeyPromptedAt is the store key holding the last permission prompt time.
const KeyPromptedAt = "write_settings_prompted_at"

type promptedAtRecord struct {
	PromptedAtMs int64 `json:"prompted_at_ms"`
}

// Policy owns the dim/restore state machine for one navigation session.
// All entry points are safe for concurrent use; the session calls them
// from its serialized sample path and from lifecycle methods.
type Policy struct {
	ctrl  brightness.Controller
	store store.Store
	clock timeutil.Clock

	mu         sync.Mutex
	enabled    bool
	dimLevel   float64
	baseline   *float64
	dimmed     bool
	timer      timeutil.Timer
	lastMotion commit.Motion

	permissionKnown   bool
	permissionGranted bool
}

// NewPolicy returns a Policy in its reset state.
func NewPolicy(ctrl brightness.Controller, st store.Store, clock timeutil.Clock) *Policy {
	return &Policy{
		ctrl:       ctrl,
		store:      st,
		clock:      clock,
		enabled:    true,
		dimLevel:   0.4,
		lastMotion: commit.Stationary,
	}
}

// Configure applies the user's auto-dim settings. Disabling auto-dim
// cancels any pending dim and restores immediately, like a motion event.
func (p *Policy) Configure(enabled bool, dimLevel float64) {
	p.mu.Lock()
	p.enabled = enabled
	p.dimLevel = dimLevel
	if !enabled {
		p.cancelAndRestoreLocked()
	}
	p.mu.Unlock()
}

// OnMotionChange feeds a motion-state transition into the policy. A
// transition to stationary arms the dim timer; a transition to moving
// cancels it and restores the screen.
func (p *Policy) OnMotionChange(m commit.Motion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastMotion = m

	switch m {
	case commit.Stationary:
		if !p.enabled || p.dimmed || p.timer != nil {
			return
		}
		p.timer = p.clock.AfterFunc(DimDelay, p.dimTimerFired)
	case commit.Moving:
		p.cancelAndRestoreLocked()
	}
}

// Wake restores brightness and cancels any pending dim, independent of
// motion state. The state machine resumes evaluating transitions from
// the next motion change.
func (p *Policy) Wake() {
	p.mu.Lock()
	p.cancelAndRestoreLocked()
	p.mu.Unlock()
}

// Reset tears the session-scoped state down: cancels the timer, restores
// brightness if dimmed and forgets the captured baseline. Safe to call
// at any point, including while nothing is pending.
func (p *Policy) Reset() {
	p.mu.Lock()
	p.cancelAndRestoreLocked()
	p.baseline = nil
	p.lastMotion = commit.Stationary
	p.mu.Unlock()
}

// Dimmed reports whether the screen is currently dimmed by the policy.
func (p *Policy) Dimmed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dimmed
}

// dimTimerFired runs when the stationary delay elapses. The conditions
// are re-checked at fire time: the state may have changed while the
// timer was pending.
func (p *Policy) dimTimerFired() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timer = nil

	if p.lastMotion != commit.Stationary || !p.enabled || p.dimmed {
		return
	}
	if !p.permissionLocked() {
		return
	}

	// Capture the restore target once per session, the first time a dim
	// actually happens.
	if p.baseline == nil {
		current, err := p.ctrl.SystemBrightness()
		if err != nil {
			log.Printf("failed to read brightness, skipping dim: %v", err)
			return
		}
		p.baseline = &current
	}

	target := *p.baseline * p.dimLevel
	if target < DimFloor {
		target = DimFloor
	}
	// Never go brighter than the user's own setting: if the baseline is
	// already at or under the floor there is nothing to dim.
	if target >= *p.baseline {
		return
	}
	if err := p.ctrl.SetSystemBrightness(target); err != nil {
		log.Printf("failed to dim screen: %v", err)
		return
	}
	p.dimmed = true
}

// cancelAndRestoreLocked cancels a pending timer and, if dimmed,
// restores the captured baseline exactly. Restore failures are silent: a
// race with session teardown is expected, not an error.
func (p *Policy) cancelAndRestoreLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.dimmed && p.baseline != nil {
		if err := p.ctrl.SetSystemBrightness(*p.baseline); err != nil {
			log.Printf("failed to restore brightness: %v", err)
		}
	}
	p.dimmed = false
}

// permissionLocked lazily resolves the settings permission. A denial is
// remembered so the hot path never prompts; re-prompting is the settings
// screen's job via CheckAndRequestPermission.
func (p *Policy) permissionLocked() bool {
	if !p.permissionKnown {
		p.permissionGranted = p.ctrl.HasPermission()
		p.permissionKnown = true
	}
	return p.permissionGranted
}

// CheckAndRequestPermission reports whether the settings permission is
// granted, optionally prompting for it. Prompts are throttled to one per
// RepromptCooldown unless force is set. The prompt timestamp is
// persisted before prompting so a crash cannot cause prompt spam.
func (p *Policy) CheckAndRequestPermission(showPrompt, force bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl.HasPermission() {
		p.permissionKnown = true
		p.permissionGranted = true
		return true
	}

	if !showPrompt {
		p.permissionKnown = true
		p.permissionGranted = false
		return false
	}

	if !force && !p.cooldownElapsedLocked() {
		p.permissionKnown = true
		p.permissionGranted = false
		return false
	}

	p.recordPromptLocked()
	err := p.ctrl.RequestPermission()
	p.permissionKnown = true
	p.permissionGranted = err == nil
	return err == nil
}

func (p *Policy) cooldownElapsedLocked() bool {
	raw, ok, err := p.store.Get(KeyPromptedAt)
	if err != nil {
		log.Printf("failed to read permission prompt timestamp: %v", err)
		return true
	}
	if !ok {
		return true
	}
	var rec promptedAtRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return true
	}
	prompted := time.UnixMilli(rec.PromptedAtMs)
	return p.clock.Since(prompted) >= RepromptCooldown
}

func (p *Policy) recordPromptLocked() {
	rec := promptedAtRecord{PromptedAtMs: p.clock.Now().UnixMilli()}
	data, _ := json.Marshal(rec)
	if err := p.store.Set(KeyPromptedAt, string(data)); err != nil {
		log.Printf("failed to persist permission prompt timestamp: %v", err)
	}
}
