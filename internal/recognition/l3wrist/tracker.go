package l3wrist

import (
	"math"

	"github.com/banshee-data/assembly.monitor/internal/config"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
)

// Config holds wrist tracker parameters.
type Config struct {
	Dt                float64 // Frames per predict step
	ProcessNoise      float64 // Q diagonal
	MeasurementNoise  float64 // R diagonal
	InitialCovariance float64 // P diagonal after (re)initialisation
	OutlierDistance   float64 // Pixels; a larger jump re-initialises the filter
}

// DefaultConfig returns the built-in tracker parameters.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Dt:                cfg.GetKalmanDt(),
		ProcessNoise:      cfg.GetProcessNoise(),
		MeasurementNoise:  cfg.GetMeasurementNoise(),
		InitialCovariance: cfg.GetInitialCovariance(),
		OutlierDistance:   cfg.GetOutlierDistance(),
	}
}

// Outcome says what a tracker did with one observation.
type Outcome string

const (
	OutcomeSkipped       Outcome = "skipped"       // no usable measurement
	OutcomeInitialized   Outcome = "initialized"   // first measurement
	OutcomeCorrected     Outcome = "corrected"     // predict + update
	OutcomeReinitialized Outcome = "reinitialized" // outlier jump or numerical reset
)

// TrackedPoint is the filtered estimate of one wrist.
type TrackedPoint struct {
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	VX          float64     `json:"vx"`
	VY          float64     `json:"vy"`
	P           [16]float64 `json:"-"` // Covariance, row-major
	Initialized bool        `json:"initialized"`
}

// Position returns the filtered position.
func (tp TrackedPoint) Position() l1detect.Point {
	return l1detect.Point{X: tp.X, Y: tp.Y}
}

// Tracker smooths one wrist keypoint stream.
//
// Outliers are judged against the previous filtered position, before the
// prediction step: a raw measurement further than OutlierDistance away
// replaces the state outright with zero velocity and a fresh covariance,
// so a single bad detection never corrupts the velocity estimate.
type Tracker struct {
	cfg         Config
	kf          *Kalman
	initialized bool
	reinits     uint64
}

// NewTracker creates an uninitialised tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg: cfg,
		kf:  NewKalman(cfg.Dt, cfg.ProcessNoise, cfg.MeasurementNoise, cfg.InitialCovariance),
	}
}

// Observe feeds one frame's measurement. A nil or non-finite measurement
// leaves the tracker untouched.
func (t *Tracker) Observe(m *l1detect.Point) (TrackedPoint, Outcome) {
	if m == nil || !isFinite(m.X) || !isFinite(m.Y) {
		return t.State(), OutcomeSkipped
	}

	if !t.initialized {
		t.kf.SetState(m.X, m.Y, 0, 0)
		t.initialized = true
		return t.State(), OutcomeInitialized
	}

	px, py, _, _ := t.kf.State()
	if math.Hypot(m.X-px, m.Y-py) > t.cfg.OutlierDistance {
		t.reinit(*m)
		return t.State(), OutcomeReinitialized
	}

	t.kf.Predict()
	if err := t.kf.Update(m.X, m.Y); err != nil || !t.kf.finite() {
		t.reinit(*m)
		return t.State(), OutcomeReinitialized
	}
	return t.State(), OutcomeCorrected
}

func (t *Tracker) reinit(m l1detect.Point) {
	t.kf.SetState(m.X, m.Y, 0, 0)
	t.reinits++
}

// State returns the current estimate. Initialized is false until the first
// measurement arrives.
func (t *Tracker) State() TrackedPoint {
	if !t.initialized {
		return TrackedPoint{}
	}
	x, y, vx, vy := t.kf.State()
	return TrackedPoint{X: x, Y: y, VX: vx, VY: vy, P: t.kf.Covariance(), Initialized: true}
}

// Point returns the filtered position if the tracker has been initialised.
func (t *Tracker) Point() (l1detect.Point, bool) {
	if !t.initialized {
		return l1detect.Point{}, false
	}
	return t.State().Position(), true
}

// Reinits returns how many times the filter was re-initialised.
func (t *Tracker) Reinits() uint64 {
	return t.reinits
}

// Reset discards the estimate.
func (t *Tracker) Reset() {
	t.kf = NewKalman(t.cfg.Dt, t.cfg.ProcessNoise, t.cfg.MeasurementNoise, t.cfg.InitialCovariance)
	t.initialized = false
	t.reinits = 0
}
