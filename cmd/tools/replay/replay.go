package main

import (
	"sort"
	"time"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/recognition/monitor"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
	"github.com/banshee-data/assembly.monitor/internal/timeutil"
)

// replayResult is everything a replay produced.
type replayResult struct {
	Frames int
	Final  pipeline.Snapshot
	Events []pipeline.Event
}

// replay runs rec through a fresh pipeline on a mock clock. Recorded
// capture times drive the clock when present; otherwise it advances one
// frame interval per result. Only every Nth result is treated as a fresh
// inference, as the live worker would. plotter may be nil.
func replay(cfg pipeline.Config, plan *l6assembly.Plan, rec *l1detect.Recording, plotter *monitor.WristPlotter) replayResult {
	results := rec.Results()
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	if len(results) > 0 && !results[0].CapturedAt.IsZero() {
		start = results[0].CapturedAt
	}
	clock := timeutil.NewMockClock(start)

	var out replayResult
	p := pipeline.New(cfg, plan, clock, pipeline.EventSinkFunc(func(ev pipeline.Event) {
		out.Events = append(out.Events, ev)
	}))

	every := max(cfg.InferenceEveryNFrames, 1)
	var latest *l1detect.DetectionResult
	for i := range results {
		res := &results[i]
		if !res.CapturedAt.IsZero() {
			clock.Set(res.CapturedAt)
		} else if i > 0 {
			clock.Advance(cfg.FrameInterval)
		}
		if i%every == 0 {
			latest = res
		}
		snap := p.Tick(latest)
		if plotter != nil {
			plotter.Sample(snap)
		}
		out.Frames++
	}
	out.Final = p.Last()
	return out
}

type partSummary struct {
	Part      string
	Picks     int
	Early     int
	Mismatch  int
	AvgAction time.Duration
}

// summarize groups picks and mismatches by part.
func summarize(events []pipeline.Event) []partSummary {
	byPart := make(map[string]*partSummary)
	durations := make(map[string]time.Duration)
	get := func(part string) *partSummary {
		if s, ok := byPart[part]; ok {
			return s
		}
		s := &partSummary{Part: part}
		byPart[part] = s
		return s
	}

	for _, ev := range events {
		switch {
		case ev.Kind == pipeline.EventPick && ev.Pick != nil:
			s := get(ev.Pick.Label)
			s.Picks++
			if ev.Pick.Early {
				s.Early++
			} else {
				durations[ev.Pick.Label] += ev.Pick.Duration
			}
		case ev.Kind == pipeline.EventMismatch && ev.Outcome != nil && ev.Outcome.Error != nil:
			get(ev.Outcome.Error.Actual).Mismatch++
		}
	}

	out := make([]partSummary, 0, len(byPart))
	for part, s := range byPart {
		if timed := s.Picks - s.Early; timed > 0 {
			s.AvgAction = durations[part] / time.Duration(timed)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Part < out[j].Part })
	return out
}
