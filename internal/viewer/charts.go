package viewer

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"trafficview/pkg/model"
)

// handleCharts renders the trailing metric windows as an HTML line chart.
// The engine caps each series at HistoryWindow samples, so the page stays
// bounded no matter how long the session runs.
func (s *Server) handleCharts(w http.ResponseWriter, _ *http.Request) {
	history := s.session.History()
	line := buildTrendChart(history)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(w); err != nil {
		log.Printf("viewer: chart render failed: %v", err)
	}
}

// buildTrendChart assembles the five metric series on a shared step axis.
func buildTrendChart(history model.HistoricalMetrics) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Traffic Metrics",
			Theme:     "dark",
			Width:     "1100px",
			Height:    "550px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Simulation metric trends",
			Subtitle: fmt.Sprintf("trailing window of %d recorded steps", model.HistoryWindow),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	n := longestSeries(history)
	xAxis := make([]string, n)
	for i := range xAxis {
		xAxis[i] = fmt.Sprintf("%d", i)
	}
	line.SetXAxis(xAxis)

	line.AddSeries("avg waiting time", lineData(history.WaitingTimeHistory, n))
	line.AddSeries("total delay", lineData(history.DelayHistory, n))
	line.AddSeries("throughput", lineData(history.ThroughputHistory, n))
	line.AddSeries("avg speed", lineData(history.SpeedHistory, n))
	line.AddSeries("vehicle count", lineData(history.VehicleCountHistory, n))
	return line
}

func longestSeries(h model.HistoricalMetrics) int {
	n := len(h.WaitingTimeHistory)
	for _, l := range []int{len(h.DelayHistory), len(h.ThroughputHistory), len(h.SpeedHistory), len(h.VehicleCountHistory)} {
		if l > n {
			n = l
		}
	}
	return n
}

func lineData(series []float64, n int) []opts.LineData {
	data := make([]opts.LineData, n)
	for i := range data {
		if i < len(series) {
			data[i] = opts.LineData{Value: series[i]}
		} else {
			data[i] = opts.LineData{Value: nil}
		}
	}
	return data
}
