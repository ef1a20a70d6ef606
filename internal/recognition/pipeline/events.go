package pipeline

import (
	"time"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l5action"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
)

// EventKind names a pipeline event.
type EventKind string

const (
	EventSessionStarted EventKind = "session_started"
	EventStateChanged   EventKind = "state_changed"
	EventPick           EventKind = "pick"
	EventStepCounted    EventKind = "step_counted"
	EventStepAdvanced   EventKind = "step_advanced"
	EventMismatch       EventKind = "mismatch"
	EventPlanCompleted  EventKind = "plan_completed"
	EventPlanRestarted  EventKind = "plan_restarted"
	EventPickIgnored    EventKind = "pick_ignored"
	EventPlanReset      EventKind = "plan_reset"
	EventPlanReplaced   EventKind = "plan_replaced"
	EventErrorResolved  EventKind = "error_resolved"
)

var outcomeEvents = map[l6assembly.OutcomeKind]EventKind{
	l6assembly.OutcomeStepCounted:   EventStepCounted,
	l6assembly.OutcomeStepAdvanced:  EventStepAdvanced,
	l6assembly.OutcomePlanCompleted: EventPlanCompleted,
	l6assembly.OutcomeMismatch:      EventMismatch,
	l6assembly.OutcomePlanRestarted: EventPlanRestarted,
	l6assembly.OutcomeIgnored:       EventPickIgnored,
	l6assembly.OutcomeErrorResolved: EventErrorResolved,
}

// PlanInfo describes the plan a session runs.
type PlanInfo struct {
	FinalProduct string            `json:"final_product"`
	Steps        []l6assembly.Step `json:"steps"`
}

func planInfo(p *l6assembly.Plan) *PlanInfo {
	return &PlanInfo{FinalProduct: p.FinalProduct(), Steps: p.Steps()}
}

// Event is one discrete pipeline output.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Frame     uint64    `json:"frame"`
	At        time.Time `json:"at"`

	From    l5action.State      `json:"from,omitempty"`
	To      l5action.State      `json:"to,omitempty"`
	Pick    *l5action.Pick      `json:"pick,omitempty"`
	Outcome *l6assembly.Outcome `json:"outcome,omitempty"`
	Plan    *PlanInfo           `json:"plan,omitempty"`

	// PreviousSessionID is set on the session_started event of a reset.
	PreviousSessionID string `json:"previous_session_id,omitempty"`
}

// EventSink consumes pipeline events. Implementations live outside the
// pipeline (database, stack light, live stream).
type EventSink interface {
	HandleEvent(ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ev Event)

// HandleEvent calls f(ev).
func (f EventSinkFunc) HandleEvent(ev Event) { f(ev) }
