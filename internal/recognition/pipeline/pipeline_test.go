package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l4region"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l5action"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/timeutil"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

var (
	screwBox   = l1detect.DetectedBox{Label: "screw", Box: l1detect.Box{X1: 100, Y1: 100, X2: 150, Y2: 150}, Confidence: 0.9}
	bracketBox = l1detect.DetectedBox{Label: "bracket", Box: l1detect.Box{X1: 400, Y1: 100, X2: 450, Y2: 150}, Confidence: 0.9}

	atScrew   = &l1detect.Point{X: 125, Y: 125}
	atBracket = &l1detect.Point{X: 425, Y: 125}
	away      = &l1detect.Point{X: 800, Y: 600}
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) HandleEvent(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) kinds(filter ...EventKind) []EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := map[EventKind]bool{}
	for _, k := range filter {
		keep[k] = true
	}
	var out []EventKind
	for _, ev := range c.events {
		if len(filter) == 0 || keep[ev.Kind] {
			out = append(out, ev.Kind)
		}
	}
	return out
}

// operator builds a 17-keypoint person with the right wrist at right;
// nil leaves the wrist invisible.
func operator(right *l1detect.Point) l1detect.Person {
	kps := make([]l1detect.Point, 17)
	for i := range kps {
		kps[i] = l1detect.Point{X: 640 + float64(i), Y: 300 + float64(i)}
	}
	kps[l1detect.LeftWristIndex] = l1detect.Point{}
	kps[l1detect.RightWristIndex] = l1detect.Point{}
	if right != nil {
		kps[l1detect.RightWristIndex] = *right
	}
	return l1detect.Person{Keypoints: kps}
}

type harness struct {
	t     *testing.T
	clock *timeutil.MockClock
	sink  *collector
	p     *Pipeline
	seq   uint64
}

func newHarness(t *testing.T, plan *l6assembly.Plan) *harness {
	clock := timeutil.NewMockClock(t0)
	sink := &collector{}
	return &harness{t: t, clock: clock, sink: sink, p: New(DefaultConfig(), plan, clock, sink)}
}

// tick runs n frames with the operator's right wrist at hand and both part
// boxes visible.
func (h *harness) tick(n int, hand *l1detect.Point) Snapshot {
	var snap Snapshot
	for range n {
		h.seq++
		h.clock.Advance(33 * time.Millisecond)
		snap = h.p.Tick(&l1detect.DetectionResult{
			Seq:    h.seq,
			Width:  1280,
			Height: 720,
			Boxes:  []l1detect.DetectedBox{screwBox, bracketBox},
			People: []l1detect.Person{operator(hand)},
		})
	}
	return snap
}

// warmUp lets the part boxes become stable.
func (h *harness) warmUp() {
	snap := h.tick(6, away)
	require.Len(h.t, snap.Stable, 2)
}

// pick performs a confirmed dwell on the box at hand, withdraws, and runs
// the dispatch tick.
func (h *harness) pick(hand *l1detect.Point) Snapshot {
	h.tick(4, hand)
	h.tick(2, away)
	return h.tick(1, away)
}

func screwBracketPlan(t *testing.T) *l6assembly.Plan {
	p, err := l6assembly.NewPlan([]l6assembly.Step{{Part: "screw", Quantity: 2}, {Part: "bracket", Quantity: 1}}, "bracket")
	require.NoError(t, err)
	return p
}

func TestPipeline_SessionStartedOnNew(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	require.Len(t, h.sink.events, 1)
	ev := h.sink.events[0]
	assert.Equal(t, EventSessionStarted, ev.Kind)
	assert.Equal(t, h.p.Session().ID, ev.SessionID)
	assert.Equal(t, "bracket", ev.Plan.FinalProduct)
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestPipeline_DwellThenRemoveCountsPick(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	h.warmUp()

	snap := h.tick(2, atScrew)
	assert.Equal(t, l5action.StateDwelling, snap.Action.State)
	assert.Equal(t, l4region.HandRight, snap.Hit.Hand)
	assert.Equal(t, "screw", snap.Hit.Label)

	snap = h.tick(2, atScrew)
	assert.Equal(t, l5action.StateHolding, snap.Action.State)

	snap = h.tick(2, away)
	assert.Equal(t, l5action.StateDispatch, snap.Action.State)

	snap = h.tick(1, away)
	assert.Equal(t, l5action.StateIdle, snap.Action.State)
	assert.Equal(t, 1, snap.Assembly.Remaining)
	assert.Equal(t, "screw", snap.Assembly.Expected)

	assert.Equal(t, []EventKind{EventPick, EventStepCounted}, h.sink.kinds(EventPick, EventStepCounted, EventMismatch))
}

func TestPipeline_FullPlanCompletesAndRestarts(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	h.warmUp()

	h.pick(atScrew)
	h.pick(atScrew)
	snap := h.pick(atBracket)
	assert.True(t, snap.Assembly.Complete)
	assert.Equal(t, 1, snap.Assembly.Completed)
	assert.Zero(t, snap.Assembly.Errors)

	snap = h.pick(atScrew)
	assert.False(t, snap.Assembly.Complete)
	assert.Zero(t, snap.Assembly.StepIndex)
	assert.Equal(t, 2, snap.Assembly.Remaining)
	assert.Equal(t, 1, snap.Assembly.Completed)

	assert.Equal(t, []EventKind{
		EventStepCounted, EventStepAdvanced, EventPlanCompleted, EventPlanRestarted,
	}, h.sink.kinds(EventStepCounted, EventStepAdvanced, EventPlanCompleted, EventPlanRestarted, EventMismatch))
}

func TestPipeline_WrongPartRecordsMismatch(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	h.warmUp()

	snap := h.pick(atBracket)
	assert.Equal(t, 1, snap.Assembly.Errors)
	assert.Equal(t, 1, snap.Assembly.PendingErrors)
	assert.Zero(t, snap.Assembly.StepIndex)
	assert.Equal(t, 2, snap.Assembly.Remaining)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "bracket", snap.Errors[0].Actual)

	require.NoError(t, h.p.ResolveError(snap.Errors[0].ID))
	assert.Zero(t, h.p.Last().Assembly.PendingErrors)
	assert.Error(t, h.p.ResolveError(99))
	assert.Contains(t, h.sink.kinds(), EventErrorResolved)
}

func TestPipeline_NoBoxesNoPick(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	// Hand over the screw before the box has stabilised.
	snap := h.tick(5, atScrew)
	assert.Equal(t, l5action.StateIdle, snap.Action.State)
	assert.Empty(t, snap.Hit.Label)
}

func TestPipeline_NilDetectionIsSafe(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	h.warmUp()
	h.tick(2, atScrew)

	for range 5 {
		snap := h.p.Tick(nil)
		assert.Equal(t, l5action.StateDwelling, snap.Action.State, "no-hand frames never move the state")
		assert.False(t, snap.Action.HandPresent)
	}
}

func TestPipeline_HandDisappearsMidDwell(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	h.warmUp()
	h.tick(3, atScrew)

	snap := h.tick(3, nil)
	assert.Equal(t, l5action.StateDwelling, snap.Action.State)
	assert.Zero(t, snap.Action.EnterCount)
	assert.False(t, snap.Right.Visible)
	assert.True(t, snap.Right.Tracked.Initialized, "tracker keeps its last estimate")
}

func TestPipeline_ResetPlan(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	h.warmUp()
	h.pick(atScrew)
	h.tick(2, atScrew)

	h.p.ResetPlan()
	snap := h.p.Last()
	assert.Equal(t, 2, snap.Assembly.Remaining)
	assert.Equal(t, l5action.StateIdle, snap.Action.State)
	assert.Len(t, snap.Stable, 2, "presence survives a plan reset")
	assert.Contains(t, h.sink.kinds(), EventPlanReset)
}

func TestPipeline_ResetSession(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	h.warmUp()
	h.pick(atBracket)
	before := h.p.Session().ID

	h.p.ResetSession()
	snap := h.p.Last()
	assert.NotEqual(t, before, snap.SessionID)
	assert.Zero(t, snap.Assembly.Errors)
	assert.Empty(t, snap.Stable)
	assert.Empty(t, snap.Errors)

	last := h.sink.events[len(h.sink.events)-1]
	assert.Equal(t, EventSessionStarted, last.Kind)
	assert.Equal(t, before, last.PreviousSessionID)
	assert.Equal(t, snap.SessionID, last.SessionID)
}

func TestPipeline_ReplacePlan(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	h.warmUp()

	plan, err := l6assembly.NewPlan([]l6assembly.Step{{Part: "bracket", Quantity: 1}}, "bracket")
	require.NoError(t, err)
	h.p.ReplacePlan(plan)

	assert.Equal(t, []string{"bracket"}, h.p.Session().Presence.Labels())
	snap := h.pick(atBracket)
	assert.Equal(t, 1, snap.Assembly.Completed)
	assert.Contains(t, h.sink.kinds(), EventPlanReplaced)
}

func TestPipeline_EventSequenceIsMonotonic(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	h.warmUp()
	h.pick(atScrew)
	h.pick(atBracket)

	var last uint64
	for _, ev := range h.sink.events {
		assert.Greater(t, ev.Seq, last)
		last = ev.Seq
	}
}

func TestDebugVars(t *testing.T) {
	h := newHarness(t, screwBracketPlan(t))
	h.warmUp()
	snap := h.tick(2, atScrew)

	vals, unknown := DebugVars(snap, "state", "box_in_b", "__import__", "state")
	assert.Equal(t, l5action.StateDwelling, vals["state"])
	assert.Equal(t, "screw", vals["box_in_b"])
	assert.Equal(t, []string{"__import__"}, unknown)

	all, unknown := DebugVars(snap)
	assert.Empty(t, unknown)
	assert.Len(t, all, len(DebugVarNames()))
	assert.ElementsMatch(t, []string{"bracket", "screw"}, all["stable_labels"])
}
