// Package monitor renders offline diagnostics for recorded sessions.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l3wrist"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
)

var (
	rawColor     = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	trackedColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	reinitColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// WristSample is one frame of one wrist.
type WristSample struct {
	Frame   uint64
	Visible bool
	RawX    float64
	RawY    float64
	X       float64
	Y       float64
	Tracked bool
	Reinit  bool
}

// WristPlotter collects raw and filtered wrist positions from pipeline
// snapshots and writes comparison plots, one set per hand.
type WristPlotter struct {
	mu        sync.Mutex
	outputDir string
	samples   map[string][]WristSample
}

// NewWristPlotter creates a plotter writing into outputDir.
func NewWristPlotter(outputDir string) (*WristPlotter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &WristPlotter{
		outputDir: outputDir,
		samples:   make(map[string][]WristSample),
	}, nil
}

// Sample records both wrists of snap.
func (wp *WristPlotter) Sample(snap pipeline.Snapshot) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.samples["left"] = append(wp.samples["left"], wristSample(snap.Frame, snap.Left))
	wp.samples["right"] = append(wp.samples["right"], wristSample(snap.Frame, snap.Right))
}

func wristSample(frame uint64, v pipeline.WristView) WristSample {
	s := WristSample{
		Frame:   frame,
		Visible: v.Visible,
		X:       v.Tracked.X,
		Y:       v.Tracked.Y,
		Tracked: v.Tracked.Initialized,
		Reinit:  v.Outcome == l3wrist.OutcomeReinitialized,
	}
	if v.Raw != nil {
		s.RawX, s.RawY = v.Raw.X, v.Raw.Y
	}
	return s
}

// Samples returns a copy of the samples recorded for hand ("left" or
// "right").
func (wp *WristPlotter) Samples(hand string) []WristSample {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return append([]WristSample(nil), wp.samples[hand]...)
}

// GeneratePlots writes <hand>_x.png, <hand>_y.png and <hand>_path.png for
// every hand that was ever tracked. It returns the number of files written.
func (wp *WristPlotter) GeneratePlots() (int, error) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	written := 0
	for _, hand := range []string{"left", "right"} {
		samples := wp.samples[hand]
		if !anyTracked(samples) {
			continue
		}
		n, err := wp.generateHandPlots(hand, samples)
		written += n
		if err != nil {
			return written, fmt.Errorf("%s wrist: %w", hand, err)
		}
	}
	return written, nil
}

func anyTracked(samples []WristSample) bool {
	for _, s := range samples {
		if s.Tracked {
			return true
		}
	}
	return false
}

func (wp *WristPlotter) generateHandPlots(hand string, samples []WristSample) (int, error) {
	var rawX, rawY, trkX, trkY, path, rawPath, reinits plotter.XYs
	for _, s := range samples {
		f := float64(s.Frame)
		if s.Visible {
			rawX = append(rawX, plotter.XY{X: f, Y: s.RawX})
			rawY = append(rawY, plotter.XY{X: f, Y: s.RawY})
			rawPath = append(rawPath, plotter.XY{X: s.RawX, Y: s.RawY})
		}
		if s.Tracked {
			trkX = append(trkX, plotter.XY{X: f, Y: s.X})
			trkY = append(trkY, plotter.XY{X: f, Y: s.Y})
			path = append(path, plotter.XY{X: s.X, Y: s.Y})
		}
		if s.Reinit {
			reinits = append(reinits, plotter.XY{X: s.X, Y: s.Y})
		}
	}

	written := 0
	for _, pc := range []struct {
		file, title, xLabel, yLabel string
		raw, tracked, marks          plotter.XYs
	}{
		{hand + "_x.png", hand + " wrist X", "Frame", "X (px)", rawX, trkX, nil},
		{hand + "_y.png", hand + " wrist Y", "Frame", "Y (px)", rawY, trkY, nil},
		{hand + "_path.png", hand + " wrist path", "X (px)", "Y (px)", rawPath, path, reinits},
	} {
		p := plot.New()
		p.Title.Text = pc.title
		p.X.Label.Text = pc.xLabel
		p.Y.Label.Text = pc.yLabel

		if len(pc.raw) > 0 {
			sc, err := plotter.NewScatter(pc.raw)
			if err != nil {
				return written, err
			}
			sc.GlyphStyle.Color = rawColor
			sc.GlyphStyle.Radius = vg.Points(1.5)
			p.Add(sc)
			p.Legend.Add("raw", sc)
		}
		line, err := plotter.NewLine(pc.tracked)
		if err != nil {
			return written, err
		}
		line.Color = trackedColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("filtered", line)

		if len(pc.marks) > 0 {
			sc, err := plotter.NewScatter(pc.marks)
			if err != nil {
				return written, err
			}
			sc.GlyphStyle.Color = reinitColor
			sc.GlyphStyle.Shape = draw.CrossGlyph{}
			sc.GlyphStyle.Radius = vg.Points(4)
			p.Add(sc)
			p.Legend.Add("reinit", sc)
		}

		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10

		file := filepath.Join(wp.outputDir, pc.file)
		if err := p.Save(12*vg.Inch, 6*vg.Inch, file); err != nil {
			return written, fmt.Errorf("save %s: %w", pc.file, err)
		}
		written++
	}
	return written, nil
}
