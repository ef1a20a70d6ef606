package l2presence

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
)

func det(label string, conf float64, x float64) l1detect.DetectedBox {
	return l1detect.DetectedBox{
		Label:      label,
		Box:        l1detect.Box{X1: x, Y1: 0, X2: x + 50, Y2: 50},
		Confidence: conf,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.5, cfg.ConfidenceThreshold)
	assert.Equal(t, 6, cfg.StabilityThreshold)
	assert.Equal(t, 11, cfg.Cap)
}

func TestDebouncer_StableAfterThresholdFrames(t *testing.T) {
	d := NewDebouncer(DefaultConfig(), []string{"screw"})

	for i := 1; i <= 5; i++ {
		d.Update([]l1detect.DetectedBox{det("screw", 0.9, 0)})
		assert.False(t, d.Stable("screw"), "frame %d", i)
	}
	d.Update([]l1detect.DetectedBox{det("screw", 0.9, 0)})
	assert.True(t, d.Stable("screw"))
	assert.Equal(t, 6, d.Counter("screw"))
}

func TestDebouncer_SaturatedTurnsUnstableAfterThresholdAbsentFrames(t *testing.T) {
	d := NewDebouncer(DefaultConfig(), []string{"screw"})
	for range 50 {
		d.Update([]l1detect.DetectedBox{det("screw", 0.9, 0)})
	}
	require.Equal(t, 11, d.Counter("screw"), "counter is capped")

	for i := 1; i <= 5; i++ {
		d.Update(nil)
		assert.True(t, d.Stable("screw"), "absent frame %d", i)
	}
	d.Update(nil)
	assert.False(t, d.Stable("screw"))
}

func TestDebouncer_SingleFrameFlickerIgnored(t *testing.T) {
	d := NewDebouncer(DefaultConfig(), []string{"screw"})
	for i := range 20 {
		if i%2 == 0 {
			d.Update([]l1detect.DetectedBox{det("screw", 0.9, 0)})
		} else {
			d.Update(nil)
		}
		assert.False(t, d.Stable("screw"))
	}
}

func TestDebouncer_CounterNeverNegative(t *testing.T) {
	d := NewDebouncer(DefaultConfig(), []string{"screw"})
	for range 10 {
		d.Update(nil)
	}
	assert.Equal(t, 0, d.Counter("screw"))
}

func TestDebouncer_IgnoresLowConfidenceAndUntracked(t *testing.T) {
	d := NewDebouncer(DefaultConfig(), []string{"screw"})
	for range 10 {
		d.Update([]l1detect.DetectedBox{
			det("screw", 0.49, 0),
			det("pallet", 0.99, 100),
		})
	}
	assert.Equal(t, 0, d.Counter("screw"))
	assert.Equal(t, 0, d.Counter("pallet"))
	assert.Equal(t, map[string]int{"screw": 0}, d.Counters())
}

func TestDebouncer_StableBoxesUseBestAndLastSeen(t *testing.T) {
	d := NewDebouncer(DefaultConfig(), []string{"screw", "bracket"})
	for range 6 {
		d.Update([]l1detect.DetectedBox{
			det("screw", 0.6, 0),
			det("screw", 0.95, 200),
			det("bracket", 0.8, 400),
		})
	}

	want := []StableBox{
		{Label: "bracket", Box: l1detect.Box{X1: 400, X2: 450, Y2: 50}},
		{Label: "screw", Box: l1detect.Box{X1: 200, X2: 250, Y2: 50}},
	}
	if diff := cmp.Diff(want, d.StableBoxes()); diff != "" {
		t.Errorf("StableBoxes mismatch (-want +got):\n%s", diff)
	}

	// Bracket flickers out but is still stable at its last position.
	d.Update([]l1detect.DetectedBox{det("screw", 0.9, 210)})
	want = []StableBox{
		{Label: "bracket", Box: l1detect.Box{X1: 400, X2: 450, Y2: 50}, Held: true},
		{Label: "screw", Box: l1detect.Box{X1: 210, X2: 260, Y2: 50}},
	}
	if diff := cmp.Diff(want, d.StableBoxes()); diff != "" {
		t.Errorf("StableBoxes after flicker mismatch (-want +got):\n%s", diff)
	}
}

func TestDebouncer_SetLabelsKeepsSurvivors(t *testing.T) {
	d := NewDebouncer(DefaultConfig(), []string{"screw", "bracket", "screw", ""})
	assert.Equal(t, []string{"bracket", "screw"}, d.Labels())

	for range 3 {
		d.Update([]l1detect.DetectedBox{det("screw", 0.9, 0), det("bracket", 0.9, 0)})
	}
	d.SetLabels([]string{"screw", "panel"})
	assert.Equal(t, []string{"panel", "screw"}, d.Labels())
	assert.Equal(t, 3, d.Counter("screw"))
	assert.Equal(t, 0, d.Counter("bracket"))
}

func TestDebouncer_Reset(t *testing.T) {
	d := NewDebouncer(DefaultConfig(), []string{"screw"})
	for range 8 {
		d.Update([]l1detect.DetectedBox{det("screw", 0.9, 0)})
	}
	require.True(t, d.Stable("screw"))

	d.Reset()
	assert.False(t, d.Stable("screw"))
	assert.Empty(t, d.StableBoxes())
	assert.Equal(t, []string{"screw"}, d.Labels())
}

func TestNewDebouncer_CapBelowThreshold(t *testing.T) {
	d := NewDebouncer(Config{ConfidenceThreshold: 0.5, StabilityThreshold: 3, Cap: 1}, []string{"x"})
	for range 5 {
		d.Update([]l1detect.DetectedBox{det("x", 0.9, 0)})
	}
	assert.True(t, d.Stable("x"))
	assert.Equal(t, 3, d.Counter("x"))
}
