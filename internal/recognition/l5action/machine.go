package l5action

import (
	"time"

	"github.com/banshee-data/assembly.monitor/internal/config"
	"github.com/banshee-data/assembly.monitor/internal/timeutil"
)

// State is the action machine state.
type State string

const (
	StateIdle     State = "A" // No candidate box
	StateDwelling State = "B" // Hand entered a box, not yet confirmed
	StateHolding  State = "C" // Dwell confirmed, waiting for the hand to leave
	StateDispatch State = "D" // Pick decided, dispatched on the next tick
)

// Config holds the frame-count thresholds.
type Config struct {
	HandEnterThreshold int // Consecutive frames to enter B and to confirm C
	MinOutFrames       int // Consecutive frames away from the box to dispatch
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		HandEnterThreshold: cfg.GetHandEnterThreshold(),
		MinOutFrames:       cfg.GetMinOutFrames(),
	}
}

// PickConsumer receives decided picks. The assembly plan validator is the
// production implementation.
type PickConsumer interface {
	// ConsumePick records that label was picked.
	ConsumePick(label string, at time.Time)
	// RestartIfFirst restarts a completed plan when label is its first
	// part and reports whether it did.
	RestartIfFirst(label string, at time.Time) bool
}

// Pick describes one dispatched action.
type Pick struct {
	Label string `json:"label"`
	// Early is true for a B→D dispatch, where the hand left before the
	// dwell was confirmed. Early picks carry no timing.
	Early     bool          `json:"early"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	EndedAt   time.Time     `json:"ended_at,omitzero"`
	Duration  time.Duration `json:"duration"`
	// DispatchedAt is when the pick reached the consumer.
	DispatchedAt time.Time `json:"dispatched_at"`
	// Restarted is true if the dispatch tick also auto-restarted the plan.
	Restarted bool `json:"restarted"`
}

// Result reports what one Observe call did.
type Result struct {
	From State `json:"from"`
	To   State `json:"to"`
	// Pick is set on the tick that dispatched a pick.
	Pick *Pick `json:"pick,omitempty"`
}

// Changed reports whether the state moved.
func (r Result) Changed() bool { return r.From != r.To }

// Snapshot is the machine's debug read model.
type Snapshot struct {
	State          State         `json:"state"`
	CurrentLabel   string        `json:"current_label"`
	BoxInB         string        `json:"box_in_b"`
	LastPicked     string        `json:"last_picked"`
	EnterCount     int           `json:"enter_count"`
	OutCount       int           `json:"out_count"`
	ActionStart    time.Time     `json:"action_start,omitzero"`
	ActionEnd      time.Time     `json:"action_end,omitzero"`
	ActionDuration time.Duration `json:"action_duration"`
	HandPresent    bool          `json:"hand_present"`
}

// Machine is the A/B/C/D action state machine. It is not safe for
// concurrent use; the frame tick owns it.
//
// A frame with no hand resets both counters and leaves the state alone, so
// a hand that drops out of view mid-dwell must re-earn its thresholds. A
// pending dispatch is still delivered on such a frame.
type Machine struct {
	cfg      Config
	clock    timeutil.Clock
	consumer PickConsumer

	state        State
	currentLabel string
	handPresent  bool
	boxInB       string
	lastPicked   string
	enterCount   int
	outCount     int
	early        bool

	actionStart    time.Time
	actionEnd      time.Time
	actionDuration time.Duration
}

// NewMachine creates a machine in the idle state. consumer may be nil, in
// which case picks are reported through Result only.
func NewMachine(cfg Config, clock timeutil.Clock, consumer PickConsumer) *Machine {
	if cfg.HandEnterThreshold < 1 {
		cfg.HandEnterThreshold = 1
	}
	if cfg.MinOutFrames < 1 {
		cfg.MinOutFrames = 1
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Machine{cfg: cfg, clock: clock, consumer: consumer, state: StateIdle}
}

// SetConsumer replaces the pick consumer.
func (m *Machine) SetConsumer(c PickConsumer) {
	m.consumer = c
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Observe advances the machine by one frame. label is the intersected
// label for the frame, "" when the hand touches no stable box.
func (m *Machine) Observe(handPresent bool, label string) Result {
	now := m.clock.Now()
	from := m.state
	m.handPresent = handPresent
	if handPresent {
		m.currentLabel = label
	} else {
		m.currentLabel = ""
	}

	if m.state == StateDispatch {
		pick := m.dispatch(m.currentLabel, now)
		return Result{From: from, To: m.state, Pick: &pick}
	}

	if !handPresent {
		m.enterCount = 0
		m.outCount = 0
		return Result{From: from, To: m.state}
	}

	switch m.state {
	case StateIdle:
		m.observeIdle(label)
	case StateDwelling:
		m.observeDwelling(label, now)
	case StateHolding:
		m.observeHolding(label, now)
	}
	return Result{From: from, To: m.state}
}

func (m *Machine) observeIdle(label string) {
	if label == "" {
		m.enterCount = 0
		return
	}
	m.enterCount++
	if m.enterCount >= m.cfg.HandEnterThreshold {
		m.state = StateDwelling
		m.boxInB = label
		m.enterCount = 0
		m.outCount = 0
	}
}

func (m *Machine) observeDwelling(label string, now time.Time) {
	if label == m.boxInB {
		m.outCount = 0
		m.enterCount++
		if m.enterCount >= m.cfg.HandEnterThreshold {
			m.state = StateHolding
			m.enterCount = 0
			m.actionStart = now
			m.actionEnd = time.Time{}
			m.actionDuration = 0
			m.lastPicked = m.boxInB
		}
		return
	}

	m.enterCount = 0
	m.outCount++
	if m.outCount >= m.cfg.MinOutFrames {
		m.lastPicked = m.boxInB
		m.early = true
		m.state = StateDispatch
		m.outCount = 0
		m.enterCount = 0
	}
}

func (m *Machine) observeHolding(label string, now time.Time) {
	if label == m.boxInB {
		m.outCount = 0
		return
	}

	m.outCount++
	if m.outCount >= m.cfg.MinOutFrames {
		m.state = StateDispatch
		m.actionEnd = now
		m.actionDuration = now.Sub(m.actionStart)
		m.outCount = 0
		m.enterCount = 0
	}
}

// dispatch hands the pending pick to the consumer, evaluates the
// auto-restart rule against the label under the hand right now, and
// returns to idle.
func (m *Machine) dispatch(current string, now time.Time) Pick {
	pick := Pick{
		Label:        m.lastPicked,
		Early:        m.early,
		DispatchedAt: now,
	}
	if !m.early {
		pick.StartedAt = m.actionStart
		pick.EndedAt = m.actionEnd
		pick.Duration = m.actionDuration
	}

	if m.consumer != nil {
		m.consumer.ConsumePick(pick.Label, now)
		pick.Restarted = m.consumer.RestartIfFirst(current, now)
	}

	m.state = StateIdle
	m.boxInB = ""
	m.lastPicked = ""
	m.early = false
	m.enterCount = 0
	m.outCount = 0
	return pick
}

// Snapshot returns the debug read model.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:          m.state,
		CurrentLabel:   m.currentLabel,
		BoxInB:         m.boxInB,
		LastPicked:     m.lastPicked,
		EnterCount:     m.enterCount,
		OutCount:       m.outCount,
		ActionStart:    m.actionStart,
		ActionEnd:      m.actionEnd,
		ActionDuration: m.actionDuration,
		HandPresent:    m.handPresent,
	}
}

// Reset returns the machine to idle and clears all transient fields. A
// pending dispatch is discarded.
func (m *Machine) Reset() {
	c := m.consumer
	*m = Machine{cfg: m.cfg, clock: m.clock, consumer: c, state: StateIdle}
}
