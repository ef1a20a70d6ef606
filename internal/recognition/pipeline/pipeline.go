package pipeline

import (
	"fmt"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l3wrist"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/timeutil"
)

// Pipeline runs the recognition layers once per frame tick. It is not safe
// for concurrent use: Tick and every command method must be called from
// the same goroutine. Runner provides that goroutine for live use.
type Pipeline struct {
	cfg     Config
	clock   timeutil.Clock
	sink    EventSink
	session *Session

	frame    uint64
	eventSeq uint64
	last     Snapshot
}

// New creates a pipeline for plan and emits session_started. sink may be
// nil.
func New(cfg Config, plan *l6assembly.Plan, clock timeutil.Clock, sink EventSink) *Pipeline {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	p := &Pipeline{cfg: cfg, clock: clock, sink: sink}
	p.session = NewSession(cfg, plan, clock)
	p.emit(Event{Kind: EventSessionStarted, Plan: planInfo(plan)})
	p.last = p.snapshot(nil, WristView{}, WristView{})
	return p
}

// Session returns the live session.
func (p *Pipeline) Session() *Session { return p.session }

// Tick processes one frame against the latest detection result, which may
// be nil before the first inference completes or reused across ticks
// while inference lags. It returns the snapshot for the frame.
func (p *Pipeline) Tick(det *l1detect.DetectionResult) Snapshot {
	p.frame++
	s := p.session

	var boxes []l1detect.DetectedBox
	if det != nil {
		boxes = det.Boxes
	}
	s.Presence.Update(boxes)
	stable := s.Presence.StableBoxes()

	hands := l1detect.OperatorHands(det)
	left := observeWrist(s.LeftWrist, hands.Left)
	right := observeWrist(s.RightWrist, hands.Right)

	var rightPt, leftPt *l1detect.Point
	if right.Visible {
		pt := right.Tracked.Position()
		rightPt = &pt
	}
	if left.Visible {
		pt := left.Tracked.Position()
		leftPt = &pt
	}
	hit := s.Regions.Resolve(rightPt, leftPt, stable)

	res := s.Actions.Observe(rightPt != nil || leftPt != nil, hit.Label)
	if res.Changed() {
		tracef("frame %d: %s -> %s (label %q)", p.frame, res.From, res.To, hit.Label)
		p.emit(Event{Kind: EventStateChanged, From: res.From, To: res.To})
	}
	if res.Pick != nil {
		diagf("pick %q early=%t duration=%s", res.Pick.Label, res.Pick.Early, res.Pick.Duration)
		p.emit(Event{Kind: EventPick, Pick: res.Pick})
	}
	p.drainOutcomes()

	snap := p.snapshot(det, left, right)
	snap.Hit = hit
	snap.Stable = stable
	p.last = snap
	return snap
}

func observeWrist(t *l3wrist.Tracker, m *l1detect.Point) WristView {
	tp, out := t.Observe(m)
	v := WristView{Tracked: tp, Outcome: out, Reinits: t.Reinits()}
	if m != nil && out != l3wrist.OutcomeSkipped {
		raw := *m
		v.Raw = &raw
		v.Visible = true
	}
	return v
}

func (p *Pipeline) drainOutcomes() {
	for _, o := range p.session.Validator.Drain() {
		kind, ok := outcomeEvents[o.Kind]
		if !ok {
			continue
		}
		switch o.Kind {
		case l6assembly.OutcomeMismatch:
			diagf("sequence error: %s", o.Error.Message())
		case l6assembly.OutcomePlanCompleted:
			diagf("plan completed (%d total)", o.Completed)
		case l6assembly.OutcomePlanRestarted:
			diagf("plan restarted")
		}
		p.emit(Event{Kind: kind, At: o.At, Outcome: &o})
	}
}

// Last returns the snapshot of the most recent tick or command.
func (p *Pipeline) Last() Snapshot { return p.last }

// ResetPlan rewinds the plan to its first step and returns the action
// machine to idle. Presence counters and wrist tracks are kept.
func (p *Pipeline) ResetPlan() {
	p.session.Validator.Reset()
	p.session.Actions.Reset()
	diagf("plan reset by operator")
	p.emit(Event{Kind: EventPlanReset, Plan: planInfo(p.session.Validator.Plan())})
	p.refresh()
}

// ReplacePlan switches to a new plan in the current session.
func (p *Pipeline) ReplacePlan(plan *l6assembly.Plan) {
	p.session.SetPlan(plan)
	diagf("plan replaced: %d steps, final product %q", plan.Len(), plan.FinalProduct())
	p.emit(Event{Kind: EventPlanReplaced, Plan: planInfo(plan)})
	p.refresh()
}

// ResetSession discards every tracker, counter and total and starts a new
// session with the current plan.
func (p *Pipeline) ResetSession() {
	prev := p.session.ID
	plan := p.session.Validator.Plan()
	p.session = NewSession(p.cfg, plan, p.clock)
	diagf("session %s replaced by %s", prev, p.session.ID)
	p.emit(Event{Kind: EventSessionStarted, Plan: planInfo(plan), PreviousSessionID: prev})
	p.refresh()
}

// ResolveError marks a sequence error as handled by the operator.
func (p *Pipeline) ResolveError(id int64) error {
	if _, err := p.session.Validator.ResolveError(id, p.clock.Now()); err != nil {
		return fmt.Errorf("resolve error %d: %w", id, err)
	}
	p.drainOutcomes()
	p.refresh()
	return nil
}

// refresh rebuilds the cached snapshot after a command without advancing
// the frame.
func (p *Pipeline) refresh() {
	snap := p.snapshot(nil, p.last.Left, p.last.Right)
	snap.DetectionSeq = p.last.DetectionSeq
	snap.Stable = p.session.Presence.StableBoxes()
	p.last = snap
}

func (p *Pipeline) snapshot(det *l1detect.DetectionResult, left, right WristView) Snapshot {
	s := p.session
	snap := Snapshot{
		SessionID:      s.ID,
		SessionStarted: s.StartedAt,
		Frame:          p.frame,
		At:             p.clock.Now(),
		Action:         s.Actions.Snapshot(),
		Left:           left,
		Right:          right,
		Counters:       s.Presence.Counters(),
		Assembly:       s.Validator.Status(),
		Errors:         s.Validator.ErrorRecords(),
	}
	if det != nil {
		snap.DetectionSeq = det.Seq
	}
	return snap
}

func (p *Pipeline) emit(ev Event) {
	p.eventSeq++
	ev.Seq = p.eventSeq
	ev.SessionID = p.session.ID
	ev.Frame = p.frame
	if ev.At.IsZero() {
		ev.At = p.clock.Now()
	}
	if p.sink != nil {
		p.sink.HandleEvent(ev)
	}
}
