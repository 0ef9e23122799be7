// Package session owns the navigation lifecycle: it acquires the
// location stream, funnels samples through the commit filter and fans
// qualified events out to the progress engine and the display power
// policy.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trailride/navcore/internal/commit"
	"github.com/trailride/navcore/internal/config"
	"github.com/trailride/navcore/internal/display"
	"github.com/trailride/navcore/internal/geo"
	"github.com/trailride/navcore/internal/location"
	"github.com/trailride/navcore/internal/progress"
	"github.com/trailride/navcore/internal/store"
	"github.com/trailride/navcore/internal/timeutil"
)

// State is the session lifecycle state.
type State string

const (
	// Idle means no tracking and no resources held.
	Idle State = "idle"
	// Active means the sample stream is live.
	Active State = "active"
)

// Mode is the camera orientation mode.
type Mode string

const (
	// NorthUp keeps the display oriented to true north.
	NorthUp Mode = "north-up"
	// HeadingUp rotates the display to the direction of travel.
	HeadingUp Mode = "heading-up"
)

// KeyNavigationMode is the store key the camera mode persists under.
const KeyNavigationMode = "navigation_mode"

// ErrPermissionDenied is returned by Start when location access is
// refused. The start attempt fails; it is not retried automatically.
var ErrPermissionDenied = location.ErrPermissionDenied

// maxCachedFixAge is how stale a cached fix may be before Start requests
// a fresh one instead.
const maxCachedFixAge = 2 * time.Minute

// StartOptions carries the optional route for a navigation session.
type StartOptions struct {
	Route     *geo.Route
	RouteName string
}

// Deps are the collaborators a Session is built from.
type Deps struct {
	Location location.Provider
	Display  *display.Policy
	Store    store.Store
	Clock    timeutil.Clock
}

// View is the read-only snapshot exposed to UI collaborators.
type View struct {
	SessionID string           `json:"session_id"`
	State     State            `json:"state"`
	Mode      Mode             `json:"mode"`
	Preview   bool             `json:"preview"`
	RouteName string           `json:"route_name,omitempty"`
	Position  *location.Sample `json:"position,omitempty"`
	Motion    commit.Motion    `json:"motion"`

	// BearingDeg is the display bearing: 0 in north-up mode; in
	// heading-up mode it tracks the live heading while moving and holds
	// the last moving heading while stationary.
	BearingDeg float64 `json:"bearing_deg"`

	Metrics progress.Metrics  `json:"metrics"`
	Route   *geo.RouteMetrics `json:"route_metrics,omitempty"`
}

// Session is the single owner of live navigation state. All mutation
// goes through its methods; external actors never touch fields directly.
type Session struct {
	id       string
	provider location.Provider
	policy   *display.Policy
	store    store.Store
	clock    timeutil.Clock

	filter *commit.Filter
	engine *progress.Engine

	mu                sync.Mutex
	cfg               *config.NavConfig
	state             State
	mode              Mode
	route             *geo.Route
	metrics           *geo.RouteMetrics
	routeName         string
	current           *location.Sample
	lastUpdate        time.Time
	latest            progress.Metrics
	preview           bool
	motion            commit.Motion
	lastMovingHeading float64
	unsubscribe       func()
}

// New builds an idle Session, loading persisted config and camera mode.
func New(deps Deps) *Session {
	cfg := config.Load(deps.Store)

	s := &Session{
		id:       uuid.NewString(),
		provider: deps.Location,
		policy:   deps.Display,
		store:    deps.Store,
		clock:    deps.Clock,
		cfg:      cfg,
		state:    Idle,
		mode:     loadMode(deps.Store),
		motion:   commit.Stationary,
		filter:   commit.New(thresholds(cfg)),
		engine:   progress.NewEngine(),
		latest:   progress.Metrics{Status: progress.StatusFree},
	}
	s.policy.Configure(cfg.GetAutoDimEnabled(), cfg.GetAutoDimLevel())
	return s
}

func thresholds(cfg *config.NavConfig) commit.Thresholds {
	return commit.Thresholds{
		MinDistanceM:   cfg.GetMinDistanceMeters(),
		MinHeadingDeg:  cfg.GetMinHeadingDegrees(),
		MinTime:        cfg.GetMinTime(),
		MotionVariance: cfg.GetMotionVarianceThreshold(),
		MotionWindow:   cfg.GetMotionWindow(),
	}
}

func loadMode(st store.Store) Mode {
	raw, ok, err := st.Get(KeyNavigationMode)
	if err != nil || !ok {
		return NorthUp
	}
	var m Mode
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return NorthUp
	}
	if m != NorthUp && m != HeadingUp {
		return NorthUp
	}
	return m
}

// Start transitions idle to active. Starting while already active is
// defined as a full stop followed by a fresh start, so stream
// subscriptions can never duplicate.
func (s *Session) Start(ctx context.Context, opts StartOptions) error {
	s.mu.Lock()
	if s.state == Active {
		s.stopLocked()
	}
	s.mu.Unlock()

	if err := s.provider.RequestPermission(ctx); err != nil {
		return fmt.Errorf("cannot start navigation: %w", err)
	}

	var routeMetrics *geo.RouteMetrics
	if opts.Route != nil {
		var err error
		routeMetrics, err = geo.ComputeRouteMetrics(*opts.Route)
		if err != nil {
			return fmt.Errorf("cannot start navigation with route %q: %w", opts.RouteName, err)
		}
	}

	// Best-effort immediate position so the UI is never blank while the
	// first live sample is acquired. A fresh cached fix wins; otherwise
	// a fresh fix is requested, and its failure is tolerated.
	initial := s.initialFix(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another Start may have raced through the unlocked permission and
	// fix phase and already gone active; tear its stream down so exactly
	// one subscription survives.
	s.stopLocked()

	s.filter.Reset()
	s.filter.SetThresholds(thresholds(s.cfg))

	s.route = opts.Route
	s.metrics = routeMetrics
	s.routeName = opts.RouteName
	s.preview = opts.Route != nil
	s.motion = commit.Stationary
	s.latest = progress.Metrics{Status: progress.StatusFree}

	if initial != nil {
		s.current = initial
		s.lastUpdate = s.clock.Now()
		s.latest = s.engine.Update(*initial, s.route, s.metrics)
	}

	s.unsubscribe = s.provider.Subscribe(s.handleSample)
	s.state = Active
	log.Printf("navigation session %s started (route=%q)", s.id, s.routeName)
	return nil
}

func (s *Session) initialFix(ctx context.Context) *location.Sample {
	if cached, ok := s.provider.LastKnownPosition(); ok {
		age := s.clock.Since(time.UnixMilli(cached.TimestampMs))
		if age >= 0 && age < maxCachedFixAge {
			return &cached
		}
	}
	fresh, err := s.provider.CurrentPosition(ctx)
	if err != nil {
		log.Printf("no initial fix available: %v", err)
		return nil
	}
	return &fresh
}

// Stop transitions active to idle: the stream is torn down, brightness
// is restored while still stopping, and session-scoped state clears.
// Stopping an idle session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *Session) stopLocked() {
	if s.state != Active {
		return
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.policy.Reset()
	s.route = nil
	s.metrics = nil
	s.routeName = ""
	s.current = nil
	s.preview = false
	s.motion = commit.Stationary
	s.latest = progress.Metrics{Status: progress.StatusFree}
	s.state = Idle
	log.Printf("navigation session %s stopped", s.id)
}

// handleSample is the hot path, invoked from the provider's delivery
// context for every raw sample. The whole fan-out runs synchronously
// under the session lock so exactly one event is in flight at a time.
func (s *Session) handleSample(raw location.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return
	}

	ev, ok := s.filter.Accept(raw)
	if !ok {
		return
	}

	s.current = &ev.Sample
	s.lastUpdate = s.clock.Now()

	if ev.Motion == commit.Moving {
		s.lastMovingHeading = ev.HeadingDeg
		s.preview = false
	}
	s.motion = ev.Motion
	// Every commit feeds the policy, not only transitions, so a session
	// that starts parked still arms the dim timer. Repeat classifications
	// are no-ops while a timer is pending.
	s.policy.OnMotionChange(ev.Motion)

	s.latest = s.engine.Update(ev.Sample, s.route, s.metrics)
}

// ToggleMode flips between north-up and heading-up and persists the
// choice. Allowed in any state.
func (s *Session) ToggleMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == NorthUp {
		s.setModeLocked(HeadingUp)
	} else {
		s.setModeLocked(NorthUp)
	}
}

// SetMode sets the camera mode explicitly and persists it.
func (s *Session) SetMode(m Mode) {
	if m != NorthUp && m != HeadingUp {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setModeLocked(m)
}

func (s *Session) setModeLocked(m Mode) {
	s.mode = m
	data, _ := json.Marshal(m)
	if err := s.store.Set(KeyNavigationMode, string(data)); err != nil {
		log.Printf("failed to persist navigation mode: %v", err)
	}
}

// UpdateConfig merges a partial config over the current one, validates
// it, persists it and propagates the new tunables. The write completes
// before the call returns; a persistence failure leaves the new config
// applied in memory and is reported to the caller.
func (s *Session) UpdateConfig(partial *config.NavConfig) error {
	if partial == nil {
		return nil
	}
	if err := partial.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = s.cfg.Merge(partial)
	cfg := s.cfg
	s.mu.Unlock()

	s.filter.SetThresholds(thresholds(cfg))
	s.policy.Configure(cfg.GetAutoDimEnabled(), cfg.GetAutoDimLevel())

	return config.Save(s.store, cfg)
}

// Config returns the current configuration.
func (s *Session) Config() *config.NavConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Recenter leaves route-preview framing and resumes following the user.
func (s *Session) Recenter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview = false
}

// ClearRoute drops to free navigation while keeping the stream live.
func (s *Session) ClearRoute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = nil
	s.metrics = nil
	s.routeName = ""
	s.preview = false
	if s.state == Active {
		s.latest = progress.Metrics{Status: progress.StatusFree}
	}
}

// Wake restores brightness immediately, independent of motion state.
func (s *Session) Wake() {
	s.policy.Wake()
}

// CheckAndRequestDisplayPermission is the settings-screen entry point
// for the system-settings permission backing auto-dim.
func (s *Session) CheckAndRequestDisplayPermission(showPrompt, force bool) bool {
	return s.policy.CheckAndRequestPermission(showPrompt, force)
}

// Snapshot returns a copy of the observable session state.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		SessionID: s.id,
		State:     s.state,
		Mode:      s.mode,
		Preview:   s.preview,
		RouteName: s.routeName,
		Motion:    s.motion,
		Metrics:   s.latest,
		Route:     s.metrics,
	}
	if s.current != nil {
		pos := *s.current
		v.Position = &pos
	}
	if s.mode == HeadingUp {
		// Raw heading while stationary is noise; hold the last heading
		// observed while moving instead.
		if s.motion == commit.Moving && s.current != nil {
			v.BearingDeg = s.current.HeadingDeg
		} else {
			v.BearingDeg = s.lastMovingHeading
		}
	}
	return v
}
