package api

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/assembly.monitor/internal/httputil"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// showCharts renders a debug page with the status history timeline and,
// when a database is configured, the current session's pick counts.
// Query params:
//   - session_id (optional; defaults to the running session) for the pick chart
func (s *Server) showCharts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	snap := s.ctl.Snapshot()

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(historyChart(s.ctl.History(), snap))

	if s.db != nil {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			sessionID = snap.SessionID
		}
		counts, err := s.db.PickCounts(sessionID)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to load pick counts: %v", err))
			return
		}
		page.AddCharts(pickChart(sessionID, counts))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func historyChart(history []pipeline.StatusSample, snap pipeline.Snapshot) *charts.Line {
	x := make([]string, len(history))
	completed := make([]opts.LineData, len(history))
	errs := make([]opts.LineData, len(history))
	step := make([]opts.LineData, len(history))
	for i, h := range history {
		x[i] = h.At.Format("15:04:05")
		completed[i] = opts.LineData{Value: h.Completed}
		errs[i] = opts.LineData{Value: h.Errors}
		step[i] = opts.LineData{Value: h.StepIndex}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Assembly monitor", Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Status history",
			Subtitle: fmt.Sprintf("session=%s state=%s at %s", snap.SessionID, snap.Action.State, snap.At.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("completed", completed).
		AddSeries("errors", errs).
		AddSeries("step", step)
	return line
}

func pickChart(sessionID string, counts map[string]int) *charts.Bar {
	parts := make([]string, 0, len(counts))
	for p := range counts {
		parts = append(parts, p)
	}
	sort.Strings(parts)
	y := make([]opts.BarData, len(parts))
	for i, p := range parts {
		y[i] = opts.BarData{Value: counts[p]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Picks by part", Subtitle: "session=" + sessionID}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(parts).
		AddSeries("picks", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
