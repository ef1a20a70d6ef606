package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l3wrist"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
)

func TestWristPlotter_GeneratesRightHandOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	wp, err := NewWristPlotter(dir)
	require.NoError(t, err)

	for i := range 20 {
		x := 100 + float64(i)*5
		outcome := l3wrist.OutcomeCorrected
		if i == 10 {
			outcome = l3wrist.OutcomeReinitialized
		}
		wp.Sample(pipeline.Snapshot{
			Frame: uint64(i + 1),
			Right: pipeline.WristView{
				Visible: true,
				Raw:     &l1detect.Point{X: x, Y: 200},
				Tracked: l3wrist.TrackedPoint{X: x - 1, Y: 199, Initialized: true},
				Outcome: outcome,
			},
		})
	}

	samples := wp.Samples("right")
	require.Len(t, samples, 20)
	assert.True(t, samples[10].Reinit)
	assert.False(t, samples[9].Reinit)

	n, err := wp.GeneratePlots()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, name := range []string{"right_x.png", "right_y.png", "right_path.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size())
	}
	_, err = os.Stat(filepath.Join(dir, "left_x.png"))
	assert.True(t, os.IsNotExist(err), "untracked hand is not plotted")
}

func TestWristPlotter_NothingTracked(t *testing.T) {
	wp, err := NewWristPlotter(t.TempDir())
	require.NoError(t, err)
	wp.Sample(pipeline.Snapshot{Frame: 1})

	n, err := wp.GeneratePlots()
	require.NoError(t, err)
	assert.Zero(t, n)
}
