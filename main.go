package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/trailride/navcore/internal/api"
	"github.com/trailride/navcore/internal/brightness"
	"github.com/trailride/navcore/internal/display"
	"github.com/trailride/navcore/internal/geo"
	"github.com/trailride/navcore/internal/location"
	"github.com/trailride/navcore/internal/session"
	"github.com/trailride/navcore/internal/store"
	"github.com/trailride/navcore/internal/timeutil"
	"github.com/trailride/navcore/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Replay GPS fixtures instead of reading a receiver")
	listen     = flag.String("listen", ":8080", "Listen address")
	serialPath = flag.String("serial", "/dev/ttyACM0", "GPS receiver serial port")
	serialBaud = flag.Int("baud", 9600, "GPS receiver baud rate")
	dbFile     = flag.String("db", "navcore.db", "Settings database path")
	routeFile  = flag.String("route", "", "Route file to navigate at startup")
	fixtures   = flag.String("fixtures", "fixtures.txt", "GPS fixture file for dev mode")
	backlight  = flag.String("backlight", "/sys/class/backlight/rpi_backlight", "Backlight sysfs directory")
)

func main() {
	flag.Parse()

	log.Printf("navd %s", version.String())

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	clock := timeutil.RealClock{}

	st, err := store.OpenSQLite(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open settings database: %v", err)
	}
	defer st.Close()

	// A missing backlight device is loud at startup but not fatal: the
	// session runs fine and auto-dim quietly does nothing.
	var screen brightness.Controller
	if sysfs, err := brightness.OpenSysfs(*backlight); err != nil {
		log.Printf("backlight unavailable, auto-dim disabled: %v", err)
		screen = brightness.NewMockDenied(1.0)
	} else {
		screen = sysfs
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The provider feeds the sample stream: a fixture replay in dev mode,
	// an NMEA receiver on a serial port otherwise.
	var provider location.Provider
	if *devMode {
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		sim, err := location.NewSimulator(data, time.Second, clock)
		if err != nil {
			log.Fatalf("failed to build simulator: %v", err)
		}
		provider = sim
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sim.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("fixture replay stopped: %v", err)
			}
			log.Print("replay routine terminated")
		}()
	} else {
		gps, err := location.OpenSerialNMEA(*serialPath, *serialBaud, clock)
		if err != nil {
			log.Fatalf("failed to open GPS receiver: %v", err)
		}
		defer gps.Close()
		provider = gps
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gps.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("failed to monitor GPS receiver: %v", err)
			}
			log.Print("monitor routine terminated")
		}()
	}

	policy := display.NewPolicy(screen, st, clock)
	sess := session.New(session.Deps{
		Location: provider,
		Display:  policy,
		Store:    st,
		Clock:    clock,
	})

	opts := session.StartOptions{}
	if *routeFile != "" {
		route, err := geo.LoadRouteFile(*routeFile)
		if err != nil {
			log.Fatalf("failed to load route: %v", err)
		}
		opts.Route = route
		opts.RouteName = route.Name
	}
	if err := sess.Start(ctx, opts); err != nil {
		log.Fatalf("failed to start navigation: %v", err)
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(api.NewServer(sess).ServeMux()),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	// Restore the screen before exiting.
	if err := sess.Stop(context.Background()); err != nil {
		log.Printf("failed to stop session: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
