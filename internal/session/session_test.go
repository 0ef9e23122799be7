package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailride/navcore/internal/brightness"
	"github.com/trailride/navcore/internal/commit"
	"github.com/trailride/navcore/internal/config"
	"github.com/trailride/navcore/internal/display"
	"github.com/trailride/navcore/internal/geo"
	"github.com/trailride/navcore/internal/location"
	"github.com/trailride/navcore/internal/progress"
	"github.com/trailride/navcore/internal/store"
	"github.com/trailride/navcore/internal/timeutil"
)

type harness struct {
	session  *Session
	provider *location.Mock
	screen   *brightness.Mock
	store    *store.Memory
	clock    *timeutil.MockClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1_700_000_000, 0))
	provider := location.NewMock()
	screen := brightness.NewMock(0.8)
	st := store.NewMemory()
	policy := display.NewPolicy(screen, st, clock)
	s := New(Deps{Location: provider, Display: policy, Store: st, Clock: clock})
	return &harness{session: s, provider: provider, screen: screen, store: st, clock: clock}
}

func (h *harness) sample(lon, lat, heading, speed float64, ts time.Time) location.Sample {
	return location.Sample{
		Coordinate:  geo.Point{Lon: lon, Lat: lat},
		HeadingDeg:  heading,
		SpeedMps:    speed,
		AccuracyM:   5,
		TimestampMs: ts.UnixMilli(),
	}
}

// emitDrive pushes enough spaced samples through the stream for the
// commit filter to classify the device as moving.
func (h *harness) emitDrive(heading float64) time.Time {
	base := h.clock.Now()
	for i := 0; i < 4; i++ {
		ts := base.Add(time.Duration(i) * 2 * time.Second)
		h.provider.Emit(h.sample(34.78, 32.08+float64(i)*0.0002, heading, 11, ts))
	}
	return base.Add(6 * time.Second)
}

func TestStartDeniedPermission(t *testing.T) {
	h := newHarness(t)
	h.provider.DenyPermission()

	err := h.session.Start(context.Background(), StartOptions{})
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, Idle, h.session.Snapshot().State)
	assert.Equal(t, 0, h.provider.ActiveSubscribers())
}

func TestStartUsesFreshCachedFix(t *testing.T) {
	h := newHarness(t)
	cached := h.sample(34.78, 32.08, 0, 0, h.clock.Now().Add(-30*time.Second))
	h.provider.SetCached(cached)
	h.provider.SetFresh(location.Sample{}, location.ErrNoFix)

	require.NoError(t, h.session.Start(context.Background(), StartOptions{}))

	v := h.session.Snapshot()
	require.NotNil(t, v.Position)
	assert.Equal(t, cached.Coordinate, v.Position.Coordinate)
}

func TestStartIgnoresStaleCachedFix(t *testing.T) {
	h := newHarness(t)
	stale := h.sample(34.70, 32.00, 0, 0, h.clock.Now().Add(-5*time.Minute))
	h.provider.SetCached(stale)
	fresh := h.sample(34.78, 32.08, 0, 0, h.clock.Now())
	h.provider.SetFresh(fresh, nil)

	require.NoError(t, h.session.Start(context.Background(), StartOptions{}))

	v := h.session.Snapshot()
	require.NotNil(t, v.Position)
	assert.Equal(t, fresh.Coordinate, v.Position.Coordinate)
}

func TestStartWithoutAnyFix(t *testing.T) {
	h := newHarness(t)
	h.provider.SetFresh(location.Sample{}, location.ErrNoFix)

	require.NoError(t, h.session.Start(context.Background(), StartOptions{}))

	v := h.session.Snapshot()
	assert.Equal(t, Active, v.State)
	assert.Nil(t, v.Position)
}

// gatedProvider holds RequestPermission until released, so two Start
// calls can be forced to overlap.
type gatedProvider struct {
	*location.Mock
	arrived chan struct{}
	release chan struct{}
}

func (g *gatedProvider) RequestPermission(ctx context.Context) error {
	g.arrived <- struct{}{}
	<-g.release
	return g.Mock.RequestPermission(ctx)
}

func TestConcurrentStartsKeepSingleSubscription(t *testing.T) {
	h := newHarness(t)
	gated := &gatedProvider{
		Mock:    h.provider,
		arrived: make(chan struct{}),
		release: make(chan struct{}),
	}
	sess := New(Deps{Location: gated, Display: display.NewPolicy(h.screen, h.store, h.clock), Store: h.store, Clock: h.clock})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sess.Start(context.Background(), StartOptions{}))
		}()
	}

	// Both calls are now past the stop-if-active check and parked in the
	// permission request.
	<-gated.arrived
	<-gated.arrived
	close(gated.release)
	wg.Wait()

	assert.Equal(t, 1, gated.ActiveSubscribers())
	assert.Equal(t, Active, sess.Snapshot().State)

	require.NoError(t, sess.Stop(context.Background()))
	assert.Equal(t, 0, gated.ActiveSubscribers())
}

func TestRestartNeverDuplicatesSubscriptions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Start(ctx, StartOptions{}))
	require.NoError(t, h.session.Start(ctx, StartOptions{}))

	assert.Equal(t, 1, h.provider.ActiveSubscribers())
	assert.Equal(t, 2, h.provider.SubscribeCount)
	assert.Equal(t, 1, h.provider.UnsubscribeCount)
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Start(ctx, StartOptions{}))
	require.NoError(t, h.session.Stop(ctx))
	require.NoError(t, h.session.Stop(ctx))

	assert.Equal(t, 0, h.provider.ActiveSubscribers())
	assert.Equal(t, 1, h.provider.UnsubscribeCount)
	assert.Equal(t, Idle, h.session.Snapshot().State)
}

func TestStopRestoresBrightnessWhileDimmed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.session.Start(ctx, StartOptions{}))

	last := h.emitDrive(90)
	assert.Equal(t, commit.Moving, h.session.Snapshot().Motion)

	// Come to a stop: a lone sample after the motion window empties it.
	h.provider.Emit(h.sample(34.78, 32.0806, 90, 0, last.Add(15*time.Second)))
	require.Equal(t, commit.Stationary, h.session.Snapshot().Motion)

	h.clock.Advance(display.DimDelay)
	assert.InDelta(t, 0.32, h.screen.Level(), 1e-9)

	require.NoError(t, h.session.Stop(ctx))
	assert.InDelta(t, 0.8, h.screen.Level(), 1e-9)
}

func TestParkedFromStartStillDims(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.Start(context.Background(), StartOptions{}))

	// No motion edge ever happens: the very first commit is already
	// stationary. The dim timer must still arm.
	h.provider.Emit(h.sample(34.78, 32.08, 0, 0, h.clock.Now()))
	require.Equal(t, commit.Stationary, h.session.Snapshot().Motion)

	h.clock.Advance(display.DimDelay)
	assert.InDelta(t, 0.32, h.screen.Level(), 1e-9)
}

func TestSnapshotExposesFixAccuracy(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.Start(context.Background(), StartOptions{}))

	s := h.sample(34.78, 32.08, 0, 0, h.clock.Now())
	s.AccuracyM = 60
	h.provider.Emit(s)

	v := h.session.Snapshot()
	require.NotNil(t, v.Position)
	assert.Equal(t, 60.0, v.Position.AccuracyM)
}

func TestRouteProgressThroughStream(t *testing.T) {
	h := newHarness(t)
	route := &geo.Route{
		Points:     []geo.Point{{Lon: 34.78, Lat: 32.08}, {Lon: 34.79, Lat: 32.09}},
		Elevations: []float64{100, 150},
	}
	require.NoError(t, h.session.Start(context.Background(), StartOptions{Route: route, RouteName: "ridge loop"}))

	h.provider.Emit(h.sample(34.780, 32.080, 45, 2.8, h.clock.Now()))

	v := h.session.Snapshot()
	assert.Equal(t, "ridge loop", v.RouteName)
	require.Equal(t, progress.StatusOnRoute, v.Metrics.Status)
	assert.InDelta(t, 0, v.Metrics.ProgressM, 30)
	require.NotNil(t, v.Route)
	assert.InDelta(t, 1458, v.Route.TotalDistanceM, 60)
}

func TestStartRejectsDegenerateRoute(t *testing.T) {
	h := newHarness(t)
	route := &geo.Route{Points: []geo.Point{{Lon: 34.78, Lat: 32.08}}}

	err := h.session.Start(context.Background(), StartOptions{Route: route})
	require.ErrorIs(t, err, geo.ErrRouteTooShort)
	assert.Equal(t, Idle, h.session.Snapshot().State)
	assert.Equal(t, 0, h.provider.ActiveSubscribers())
}

func TestPreviewClearsOnMotionAndRecenter(t *testing.T) {
	h := newHarness(t)
	route := &geo.Route{
		Points:     []geo.Point{{Lon: 34.78, Lat: 32.08}, {Lon: 34.79, Lat: 32.09}},
		Elevations: []float64{0, 0},
	}
	ctx := context.Background()

	require.NoError(t, h.session.Start(ctx, StartOptions{Route: route}))
	assert.True(t, h.session.Snapshot().Preview)

	h.session.Recenter()
	assert.False(t, h.session.Snapshot().Preview)

	// A fresh start re-enters preview until motion is detected.
	require.NoError(t, h.session.Start(ctx, StartOptions{Route: route}))
	assert.True(t, h.session.Snapshot().Preview)
	h.emitDrive(45)
	assert.False(t, h.session.Snapshot().Preview)
}

func TestHeadingUpHoldsLastMovingHeading(t *testing.T) {
	h := newHarness(t)
	h.session.SetMode(HeadingUp)
	require.NoError(t, h.session.Start(context.Background(), StartOptions{}))

	last := h.emitDrive(90)
	v := h.session.Snapshot()
	require.Equal(t, commit.Moving, v.Motion)
	assert.Equal(t, 90.0, v.BearingDeg)

	// Stopped, with the compass now reading noise. The displayed bearing
	// must keep the heading from the last moving fix.
	stop := last.Add(15 * time.Second)
	h.provider.Emit(h.sample(34.78, 32.0806, 270, 0, stop))
	h.provider.Emit(h.sample(34.78, 32.0806, 270, 0, stop.Add(6*time.Second)))

	v = h.session.Snapshot()
	require.Equal(t, commit.Stationary, v.Motion)
	assert.Equal(t, 90.0, v.BearingDeg)
}

func TestNorthUpBearingIsAlwaysZero(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.Start(context.Background(), StartOptions{}))
	h.emitDrive(135)
	assert.Equal(t, 0.0, h.session.Snapshot().BearingDeg)
}

func TestModePersistsAcrossSessions(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, NorthUp, h.session.Snapshot().Mode)

	h.session.ToggleMode()
	assert.Equal(t, HeadingUp, h.session.Snapshot().Mode)

	reloaded := New(Deps{
		Location: location.NewMock(),
		Display:  display.NewPolicy(brightness.NewMock(0.8), h.store, h.clock),
		Store:    h.store,
		Clock:    h.clock,
	})
	assert.Equal(t, HeadingUp, reloaded.Snapshot().Mode)
}

func TestSetModeRejectsUnknownValues(t *testing.T) {
	h := newHarness(t)
	h.session.SetMode(Mode("sideways"))
	assert.Equal(t, NorthUp, h.session.Snapshot().Mode)
}

func TestUpdateConfigPropagatesAndPersists(t *testing.T) {
	h := newHarness(t)
	min := 25.0
	require.NoError(t, h.session.UpdateConfig(&config.NavConfig{MinDistanceMeters: &min}))

	assert.Equal(t, 25.0, h.session.Config().GetMinDistanceMeters())
	// Untouched fields keep their defaults after the merge.
	assert.Equal(t, 15.0, h.session.Config().GetMinHeadingDegrees())

	raw, ok, err := h.store.Get(config.KeyNavigationConfig)
	require.NoError(t, err)
	require.True(t, ok)
	var persisted config.NavConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	require.NotNil(t, persisted.MinDistanceMeters)
	assert.Equal(t, 25.0, *persisted.MinDistanceMeters)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	h := newHarness(t)
	bad := -1.0
	require.Error(t, h.session.UpdateConfig(&config.NavConfig{MinDistanceMeters: &bad}))
	assert.Equal(t, 10.0, h.session.Config().GetMinDistanceMeters())
}

func TestUpdateConfigWriteFailureKeepsInMemoryState(t *testing.T) {
	h := newHarness(t)
	h.store.FailErr = assert.AnError
	h.store.FailWrites = true

	min := 40.0
	err := h.session.UpdateConfig(&config.NavConfig{MinDistanceMeters: &min})
	require.Error(t, err)
	assert.Equal(t, 40.0, h.session.Config().GetMinDistanceMeters())
}

func TestClearRouteDropsToFreeNavigation(t *testing.T) {
	h := newHarness(t)
	route := &geo.Route{
		Points:     []geo.Point{{Lon: 34.78, Lat: 32.08}, {Lon: 34.79, Lat: 32.09}},
		Elevations: []float64{0, 0},
	}
	require.NoError(t, h.session.Start(context.Background(), StartOptions{Route: route, RouteName: "ridge loop"}))

	h.session.ClearRoute()

	v := h.session.Snapshot()
	assert.Equal(t, Active, v.State)
	assert.Empty(t, v.RouteName)
	assert.Nil(t, v.Route)
	assert.Equal(t, progress.StatusFree, v.Metrics.Status)
}

func TestSamplesIgnoredAfterStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.session.Start(ctx, StartOptions{}))

	fn := h.sample(34.78, 32.08, 0, 0, h.clock.Now())
	require.NoError(t, h.session.Stop(ctx))
	h.provider.Emit(fn)

	assert.Nil(t, h.session.Snapshot().Position)
}
