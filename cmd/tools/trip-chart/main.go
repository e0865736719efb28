// Command trip-chart renders a speed-over-time line chart (HTML) from a
// recorded NMEA log. Useful for eyeballing the speed filter against raw
// GPS speeds when tuning thresholds.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/trip.report/internal/config"
	"github.com/banshee-data/trip.report/internal/nmea"
	"github.com/banshee-data/trip.report/internal/trip"
)

var (
	inputPath  = flag.String("input", "", "NMEA log file to chart (required)")
	outputPath = flag.String("output", "trip-chart.html", "Output HTML file")
	tuningPath = flag.String("tuning", "", "Optional JSON tuning file")
)

func main() {
	flag.Parse()
	if *inputPath == "" {
		flag.Usage()
		log.Fatal("missing -input")
	}

	tuning := config.EmptyTuning()
	if *tuningPath != "" {
		loaded, err := config.LoadTuning(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning: %v", err)
		}
		tuning = loaded
	}

	times, raw, smoothed, err := speedSeries(*inputPath, tuning)
	if err != nil {
		log.Fatalf("failed to read %s: %v", *inputPath, err)
	}
	if len(times) == 0 {
		log.Fatalf("no usable GPS fixes in %s", *inputPath)
	}

	if err := renderChart(*outputPath, times, raw, smoothed); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	log.Printf("wrote %s (%d fixes)", *outputPath, len(times))
}

func speedSeries(path string, tuning *config.Tuning) ([]string, []opts.LineData, []opts.LineData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()

	parser := nmea.NewParser()
	motion := trip.NewMotion(tuning)
	motion.StartTrip()

	var (
		times    []string
		raw      []opts.LineData
		smoothed []opts.LineData
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		sample, err := parser.ParseLine(scanner.Text())
		if err != nil || sample == nil {
			continue
		}
		u := motion.Process(*sample)
		if u.Time.IsZero() {
			continue
		}
		times = append(times, u.Time.UTC().Format(time.TimeOnly))
		raw = append(raw, opts.LineData{Value: u.RawKMH})
		smoothed = append(smoothed, opts.LineData{Value: u.SmoothedKMH})
	}
	return times, raw, smoothed, scanner.Err()
}

func renderChart(path string, times []string, raw, smoothed []opts.LineData) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trip Speed", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Trip Speed", Subtitle: fmt.Sprintf("%d fixes, %s to %s", len(times), times[0], times[len(times)-1])}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (UTC)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "km/h"}),
	)

	line.SetXAxis(times).
		AddSeries("raw", raw, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)})).
		AddSeries("filtered", smoothed, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return line.Render(out)
}
