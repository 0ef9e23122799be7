// navsim replays a GPS fixture file through a complete navigation
// session offline, printing the committed position stream and progress
// metrics. Time is driven by the fixture timestamps, so a day of
// recording evaluates in milliseconds and the auto-dim timers fire
// exactly as they would have on the device.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/trailride/navcore/internal/brightness"
	"github.com/trailride/navcore/internal/display"
	"github.com/trailride/navcore/internal/geo"
	"github.com/trailride/navcore/internal/location"
	"github.com/trailride/navcore/internal/progress"
	"github.com/trailride/navcore/internal/session"
	"github.com/trailride/navcore/internal/store"
	"github.com/trailride/navcore/internal/timeutil"
	"github.com/trailride/navcore/internal/units"
)

var (
	fixtures  = flag.String("fixtures", "", "GPS fixture file to replay")
	routePath = flag.String("route", "", "Route file to navigate")
	verbose   = flag.Bool("v", false, "Print every committed position")
)

func main() {
	flag.Parse()

	if *fixtures == "" {
		log.Fatal("fixtures file is required")
	}
	data, err := os.ReadFile(*fixtures)
	if err != nil {
		log.Fatalf("failed to read fixtures: %v", err)
	}

	// The simulator parses the fixture file; replay cadence is driven
	// here from the recorded timestamps rather than a wall-clock ticker.
	sim, err := location.NewSimulator(data, time.Second, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("failed to parse fixtures: %v", err)
	}
	samples := sim.Samples()

	clock := timeutil.NewMockClock(time.UnixMilli(samples[0].TimestampMs))
	screen := brightness.NewMock(1.0)
	policy := display.NewPolicy(screen, store.NewMemory(), clock)
	sess := session.New(session.Deps{
		Location: sim,
		Display:  policy,
		Store:    store.NewMemory(),
		Clock:    clock,
	})

	opts := session.StartOptions{}
	if *routePath != "" {
		route, err := geo.LoadRouteFile(*routePath)
		if err != nil {
			log.Fatalf("failed to load route: %v", err)
		}
		opts.Route = route
		opts.RouteName = route.Name
	}
	if err := sess.Start(context.Background(), opts); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	commits := 0
	var lastCommitMs int64
	dimEvents := 0
	wasDimmed := false

	for _, s := range samples {
		if d := time.UnixMilli(s.TimestampMs).Sub(clock.Now()); d > 0 {
			clock.Advance(d)
		}
		sim.Emit(s)

		if policy.Dimmed() && !wasDimmed {
			dimEvents++
		}
		wasDimmed = policy.Dimmed()

		v := sess.Snapshot()
		if v.Position == nil || v.Position.TimestampMs == lastCommitMs {
			continue
		}
		lastCommitMs = v.Position.TimestampMs
		commits++

		if *verbose {
			fmt.Printf("%s  %9.5f,%8.5f  %-10s %-8s  remaining=%skm eta=%smin\n",
				time.UnixMilli(s.TimestampMs).UTC().Format("15:04:05"),
				v.Position.Coordinate.Lon, v.Position.Coordinate.Lat,
				v.Motion, v.Metrics.Status,
				units.FormatDistanceKm(v.Metrics.RemainingDistanceM),
				units.FormatETA(v.Metrics.ETAMinutes),
			)
		}
	}

	v := sess.Snapshot()
	elapsed := time.UnixMilli(samples[len(samples)-1].TimestampMs).
		Sub(time.UnixMilli(samples[0].TimestampMs))
	fmt.Printf("replayed %d samples over %s: %d committed (%.1f%%), %d dim events\n",
		len(samples), elapsed.Round(time.Second), commits,
		100*float64(commits)/float64(len(samples)), dimEvents)
	if v.Metrics.Status != progress.StatusFree {
		fmt.Printf("final: status=%s progress=%skm remaining=%skm ascent=%sm\n",
			v.Metrics.Status,
			units.FormatDistanceKm(v.Metrics.ProgressM),
			units.FormatDistanceKm(v.Metrics.RemainingDistanceM),
			units.FormatAscent(v.Metrics.RemainingAscentM),
		)
	}

	if err := sess.Stop(context.Background()); err != nil {
		log.Fatalf("failed to stop session: %v", err)
	}
}
