package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/recognition/monitor"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
)

var (
	screwBox   = l1detect.DetectedBox{Label: "screw", Box: l1detect.Box{X1: 100, Y1: 100, X2: 150, Y2: 150}, Confidence: 0.9}
	bracketBox = l1detect.DetectedBox{Label: "bracket", Box: l1detect.Box{X1: 400, Y1: 100, X2: 450, Y2: 150}, Confidence: 0.9}

	atScrew   = l1detect.Point{X: 125, Y: 125}
	atBracket = l1detect.Point{X: 425, Y: 125}
	away      = l1detect.Point{X: 800, Y: 600}
)

func operator(right l1detect.Point) l1detect.Person {
	kps := make([]l1detect.Point, 17)
	for i := range kps {
		kps[i] = l1detect.Point{X: 640 + float64(i), Y: 300 + float64(i)}
	}
	kps[l1detect.LeftWristIndex] = l1detect.Point{}
	kps[l1detect.RightWristIndex] = right
	return l1detect.Person{Keypoints: kps}
}

// recording scripts a session: warm up, pick a screw, then pick the
// bracket one screw too early.
func recording(t *testing.T, stamped bool) *l1detect.Recording {
	t.Helper()
	var script []l1detect.Point
	add := func(n int, p l1detect.Point) {
		for range n {
			script = append(script, p)
		}
	}
	add(6, away)
	add(4, atScrew)
	add(3, away)
	add(4, atBracket)
	add(3, away)

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, hand := range script {
		res := l1detect.DetectionResult{
			Seq:    uint64(i + 1),
			Width:  1280,
			Height: 720,
			Boxes:  []l1detect.DetectedBox{screwBox, bracketBox},
			People: []l1detect.Person{operator(hand)},
		}
		if stamped {
			res.CapturedAt = start.Add(time.Duration(i) * 40 * time.Millisecond)
		}
		require.NoError(t, enc.Encode(res))
	}
	rec, err := l1detect.ReadRecording(&buf)
	require.NoError(t, err)
	return rec
}

func testPlan(t *testing.T) *l6assembly.Plan {
	p, err := l6assembly.NewPlan([]l6assembly.Step{{Part: "screw", Quantity: 2}, {Part: "bracket", Quantity: 1}}, "bracket")
	require.NoError(t, err)
	return p
}

func TestReplay(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.InferenceEveryNFrames = 1

	plotter, err := monitor.NewWristPlotter(t.TempDir())
	require.NoError(t, err)

	res := replay(cfg, testPlan(t), recording(t, true), plotter)
	assert.Equal(t, 20, res.Frames)
	assert.Equal(t, uint64(20), res.Final.Frame)
	assert.Equal(t, 1, res.Final.Assembly.Errors)
	require.Len(t, res.Final.Errors, 1)
	assert.Equal(t, "screw", res.Final.Errors[0].Expected)
	assert.Equal(t, "bracket", res.Final.Errors[0].Actual)
	assert.Len(t, plotter.Samples("right"), 20)

	// Capture times drive the clock.
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 760_000_000, time.UTC), res.Final.At)

	summary := summarize(res.Events)
	require.Len(t, summary, 2)
	assert.Equal(t, "bracket", summary[0].Part)
	assert.Equal(t, 1, summary[0].Picks)
	assert.Equal(t, 1, summary[0].Mismatch)
	assert.Equal(t, "screw", summary[1].Part)
	assert.Equal(t, 1, summary[1].Picks)
	assert.Zero(t, summary[1].Mismatch)

	var out bytes.Buffer
	printReport(&out, res)
	assert.Contains(t, out.String(), "frames: 20")
	assert.Contains(t, out.String(), "Sequence errors")
}

func TestReplay_UnstampedUsesFrameInterval(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.InferenceEveryNFrames = 1
	res := replay(cfg, testPlan(t), recording(t, false), nil)

	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(19*cfg.FrameInterval), res.Final.At)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Empty(t, summarize(nil))
}
