package pipeline

import (
	"time"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l2presence"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l3wrist"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l4region"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l5action"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
)

// WristView is one wrist's state for display.
type WristView struct {
	Visible bool                 `json:"visible"`
	Raw     *l1detect.Point      `json:"raw,omitempty"`
	Tracked l3wrist.TrackedPoint `json:"tracked"`
	Outcome l3wrist.Outcome      `json:"outcome"`
	Reinits uint64               `json:"reinits"`
}

// Snapshot is the per-tick read model published for display. It is a
// value copy; nothing in it aliases live session state.
type Snapshot struct {
	SessionID      string    `json:"session_id"`
	SessionStarted time.Time `json:"session_started"`
	Frame          uint64    `json:"frame"`
	At             time.Time `json:"at"`
	DetectionSeq   uint64    `json:"detection_seq"`

	Action   l5action.Snapshot        `json:"action"`
	Hit      l4region.Hit             `json:"hit"`
	Left     WristView                `json:"left"`
	Right    WristView                `json:"right"`
	Counters map[string]int           `json:"counters"`
	Stable   []l2presence.StableBox   `json:"stable"`
	Assembly l6assembly.Status        `json:"assembly"`
	Errors   []l6assembly.ErrorRecord `json:"errors"`

	// Filled by the Runner.
	Worker        l1detect.WorkerStats `json:"worker"`
	DroppedEvents uint64               `json:"dropped_events"`
}

// StatusSample is one entry of the rolling status history.
type StatusSample struct {
	At        time.Time      `json:"at"`
	State     l5action.State `json:"state"`
	StepIndex int            `json:"step_index"`
	Completed int            `json:"completed"`
	Errors    int            `json:"errors"`
}

// Sample reduces a snapshot to a history entry.
func (s Snapshot) Sample() StatusSample {
	return StatusSample{
		At:        s.At,
		State:     s.Action.State,
		StepIndex: s.Assembly.StepIndex,
		Completed: s.Assembly.Completed,
		Errors:    s.Assembly.Errors,
	}
}
