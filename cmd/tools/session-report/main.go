// session-report renders a static HTML report for one recorded session:
// band-power timeline, brain-state histogram, and heart rate.
//
// Usage:
//
//	session-report -db mindstate.db -out report.html            # latest session
//	session-report -db mindstate.db -session <uuid> -out report.html
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/auraloop/mindstate/internal/sessiondb"
)

var (
	dbPath    = flag.String("db", "mindstate.db", "Tick archive path")
	sessionID = flag.String("session", "", "Session to report, empty for the most recent")
	outPath   = flag.String("out", "report.html", "Output HTML path")
)

func main() {
	flag.Parse()

	db, err := sessiondb.Open(*dbPath)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	defer db.Close()

	id := *sessionID
	if id == "" {
		sessions, err := db.ListSessions()
		if err != nil {
			log.Fatalf("list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("archive holds no sessions")
		}
		id = sessions[0].SessionID
	}

	ticks, err := db.TicksForSession(id)
	if err != nil {
		log.Fatalf("load session %s: %v", id, err)
	}
	if len(ticks) == 0 {
		log.Fatalf("session %s holds no ticks", id)
	}
	hist, err := db.StateHistogram(id)
	if err != nil {
		log.Fatalf("state histogram: %v", err)
	}

	page := components.NewPage()
	page.AddCharts(bandChart(ticks), stateChart(hist), heartChart(ticks))

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("create %s: %v", *outPath, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("render report: %v", err)
	}
	log.Printf("wrote %s (%d ticks, session %s)", *outPath, len(ticks), id)
}

// elapsed axis labels in seconds from the first tick
func timeAxis(ticks []sessiondb.Tick) []string {
	labels := make([]string, len(ticks))
	start := ticks[0].Timestamp
	for i, t := range ticks {
		labels[i] = fmt.Sprintf("%.0fs", t.Timestamp-start)
	}
	return labels
}

func bandChart(ticks []sessiondb.Tick) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Band Powers", Subtitle: "relative power, percent"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	series := []struct {
		name string
		get  func(sessiondb.Tick) float64
	}{
		{"delta", func(t sessiondb.Tick) float64 { return t.Delta }},
		{"theta", func(t sessiondb.Tick) float64 { return t.Theta }},
		{"alpha", func(t sessiondb.Tick) float64 { return t.Alpha }},
		{"beta", func(t sessiondb.Tick) float64 { return t.Beta }},
		{"gamma", func(t sessiondb.Tick) float64 { return t.Gamma }},
	}

	line.SetXAxis(timeAxis(ticks))
	for _, s := range series {
		data := make([]opts.LineData, len(ticks))
		for i, t := range ticks {
			data[i] = opts.LineData{Value: s.get(t)}
		}
		line.AddSeries(s.name, data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	}
	return line
}

func stateChart(hist map[string]int) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Brain States", Subtitle: "ticks per state"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	labels := make([]string, 0, len(hist))
	for label := range hist {
		labels = append(labels, label)
	}
	// Deterministic output keeps reports diffable between runs.
	sort.Strings(labels)
	data := make([]opts.BarData, len(labels))
	for i, label := range labels {
		data[i] = opts.BarData{Value: hist[label]}
	}
	bar.SetXAxis(labels).AddSeries("ticks", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

func heartChart(ticks []sessiondb.Tick) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Heart Rate", Subtitle: "bpm, gaps where the pulse stream was invalid"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	data := make([]opts.LineData, len(ticks))
	for i, t := range ticks {
		if t.HRVValid {
			data[i] = opts.LineData{Value: t.HeartRate}
		} else {
			data[i] = opts.LineData{Value: "-"}
		}
	}
	line.SetXAxis(timeAxis(ticks)).AddSeries("heart rate", data)
	return line
}
