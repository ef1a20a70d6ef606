package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/assembly.monitor/internal/config"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l2presence"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l3wrist"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l4region"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l5action"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/timeutil"
)

// Config bundles the per-layer parameters.
type Config struct {
	Presence l2presence.Config
	Wrist    l3wrist.Config
	Region   l4region.Config
	Action   l5action.Config

	FrameInterval         time.Duration // Frame tick period
	InferenceEveryNFrames int           // Submit every Nth frame to the detector
	StatusInterval        time.Duration // Status history sampling period
	StatusHistorySize     int           // Status history capacity
	EventBufferSize       int           // Per-sink event buffer
}

// DefaultConfig returns the built-in pipeline parameters.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Presence:              l2presence.ConfigFromTuning(cfg),
		Wrist:                 l3wrist.ConfigFromTuning(cfg),
		Region:                l4region.ConfigFromTuning(cfg),
		Action:                l5action.ConfigFromTuning(cfg),
		FrameInterval:         cfg.GetFrameInterval(),
		InferenceEveryNFrames: cfg.GetInferenceEveryNFrames(),
		StatusInterval:        cfg.GetStatusInterval(),
		StatusHistorySize:     cfg.GetStatusHistorySize(),
		EventBufferSize:       cfg.GetEventBufferSize(),
	}
}

// Session is the tracking state of one monitoring session: both wrist
// trackers, the presence counters, the action machine and the plan
// validator. Exactly one Session is live per Pipeline and a session reset
// replaces it wholesale.
type Session struct {
	ID        string
	StartedAt time.Time

	Presence   *l2presence.Debouncer
	LeftWrist  *l3wrist.Tracker
	RightWrist *l3wrist.Tracker
	Regions    *l4region.Tester
	Actions    *l5action.Machine
	Validator  *l6assembly.Validator
}

// NewSession builds a fresh session for plan.
func NewSession(cfg Config, plan *l6assembly.Plan, clock timeutil.Clock) *Session {
	v := l6assembly.NewValidator(plan)
	return &Session{
		ID:         uuid.NewString(),
		StartedAt:  clock.Now(),
		Presence:   l2presence.NewDebouncer(cfg.Presence, plan.Labels()),
		LeftWrist:  l3wrist.NewTracker(cfg.Wrist),
		RightWrist: l3wrist.NewTracker(cfg.Wrist),
		Regions:    l4region.NewTester(cfg.Region),
		Actions:    l5action.NewMachine(cfg.Action, clock, v),
		Validator:  v,
	}
}

// SetPlan switches the session to a new plan. Tracked labels follow the
// plan; the action machine returns to idle.
func (s *Session) SetPlan(plan *l6assembly.Plan) {
	s.Validator.SetPlan(plan)
	s.Presence.SetLabels(plan.Labels())
	s.Actions.Reset()
}
