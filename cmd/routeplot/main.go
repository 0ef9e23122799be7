// routeplot renders a route file as an HTML page with the elevation
// profile and the ground track, for checking a route before loading it
// onto a device.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/trailride/navcore/internal/geo"
	"github.com/trailride/navcore/internal/units"
)

var (
	routePath = flag.String("route", "", "Route file to plot")
	output    = flag.String("out", "route.html", "Output HTML file")
)

func main() {
	flag.Parse()

	if *routePath == "" {
		log.Fatal("route file is required")
	}

	route, err := geo.LoadRouteFile(*routePath)
	if err != nil {
		log.Fatalf("failed to load route: %v", err)
	}
	metrics, err := geo.ComputeRouteMetrics(*route)
	if err != nil {
		log.Fatalf("failed to compute route metrics: %v", err)
	}

	subtitle := fmt.Sprintf(
		"distance=%skm ascent=%sm points=%d",
		units.FormatDistanceKm(metrics.TotalDistanceM),
		units.FormatAscent(metrics.TotalAscentM),
		len(route.Points),
	)

	page := components.NewPage()
	page.AddCharts(profileChart(route, metrics, subtitle), trackChart(route, metrics.BBox, subtitle))

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render charts: %v", err)
	}
	log.Printf("wrote %s (%s)", *output, subtitle)
}

// profileChart plots elevation against cumulative distance.
func profileChart(route *geo.Route, metrics *geo.RouteMetrics, subtitle string) *charts.Line {
	x := make([]string, len(metrics.CumDistancesM))
	y := make([]opts.LineData, len(metrics.CumDistancesM))
	for i, d := range metrics.CumDistancesM {
		x[i] = fmt.Sprintf("%.1f", d/1000)
		elev := 0.0
		if i < len(route.Elevations) {
			elev = route.Elevations[i]
		}
		y[i] = opts.LineData{Value: elev}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Route Profile", Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Elevation Profile", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Distance (km)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Elevation (m)"}),
	)
	line.SetXAxis(x).AddSeries("elevation", y,
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.3)}),
	)
	return line
}

// trackChart plots the ground track as lon/lat scatter points.
func trackChart(route *geo.Route, bbox geo.BBox, subtitle string) *charts.Scatter {
	pts := make([]opts.ScatterData, 0, len(route.Points))
	for _, p := range route.Points {
		pts = append(pts, opts.ScatterData{Value: []interface{}{p.Lon, p.Lat}})
	}

	padLon := (bbox.MaxLon - bbox.MinLon) * 0.05
	padLat := (bbox.MaxLat - bbox.MinLat) * 0.05
	if padLon == 0 {
		padLon = 0.001
	}
	if padLat == 0 {
		padLat = 0.001
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Route Track", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Ground Track", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: bbox.MinLon - padLon, Max: bbox.MaxLon + padLon, Name: "Longitude"}),
		charts.WithYAxisOpts(opts.YAxis{Min: bbox.MinLat - padLat, Max: bbox.MaxLat + padLat, Name: "Latitude"}),
	)
	scatter.AddSeries("track", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter
}
