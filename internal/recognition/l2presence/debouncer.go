package l2presence

import (
	"sort"

	"github.com/banshee-data/assembly.monitor/internal/config"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
)

// Config holds presence debouncing parameters.
type Config struct {
	ConfidenceThreshold float64 // Detections below this are ignored
	StabilityThreshold  int     // Counter value at which a label becomes stable
	Cap                 int     // Counter ceiling; 2*StabilityThreshold-1 gives symmetric lag
}

// DefaultConfig returns the built-in presence parameters.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		ConfidenceThreshold: cfg.GetConfidenceThreshold(),
		StabilityThreshold:  cfg.GetStabilityThreshold(),
		Cap:                 cfg.GetPresenceCap(),
	}
}

// StableBox is a label whose presence counter has crossed the stability
// threshold, with the box to test hands against.
type StableBox struct {
	Label string       `json:"label"`
	Box   l1detect.Box `json:"box"`
	// Held is true when the label was not detected this frame and Box is
	// the last position it was seen at.
	Held bool `json:"held"`
}

// Debouncer keeps one clamped counter per tracked label.
//
// Counters live in [0, Cap]. Each Update increments labels detected above
// the confidence threshold and decrements every other tracked label, so a
// label turns stable after StabilityThreshold consecutive present frames
// from cold, and a saturated label turns unstable after
// Cap-StabilityThreshold+1 consecutive absent frames.
type Debouncer struct {
	cfg      Config
	labels   []string
	counters map[string]int
	current  map[string]l1detect.DetectedBox
	lastSeen map[string]l1detect.Box
}

// NewDebouncer creates a debouncer tracking labels. Detections of any other
// label are ignored.
func NewDebouncer(cfg Config, labels []string) *Debouncer {
	if cfg.Cap < cfg.StabilityThreshold {
		cfg.Cap = cfg.StabilityThreshold
	}
	d := &Debouncer{
		cfg:      cfg,
		counters: make(map[string]int),
		current:  make(map[string]l1detect.DetectedBox),
		lastSeen: make(map[string]l1detect.Box),
	}
	d.SetLabels(labels)
	return d
}

// SetLabels replaces the tracked label set. Counters of labels that stay
// tracked are kept; dropped labels are forgotten.
func (d *Debouncer) SetLabels(labels []string) {
	keep := make(map[string]bool, len(labels))
	d.labels = d.labels[:0]
	for _, l := range labels {
		if l == "" || keep[l] {
			continue
		}
		keep[l] = true
		d.labels = append(d.labels, l)
	}
	sort.Strings(d.labels)

	for l := range d.counters {
		if !keep[l] {
			delete(d.counters, l)
			delete(d.current, l)
			delete(d.lastSeen, l)
		}
	}
}

// Labels returns the tracked labels in sorted order.
func (d *Debouncer) Labels() []string {
	return append([]string(nil), d.labels...)
}

// Update ingests one frame of detections.
func (d *Debouncer) Update(boxes []l1detect.DetectedBox) {
	clear(d.current)
	for _, b := range boxes {
		if b.Confidence < d.cfg.ConfidenceThreshold {
			continue
		}
		if !d.isTracked(b.Label) {
			continue
		}
		if prev, ok := d.current[b.Label]; !ok || b.Confidence > prev.Confidence {
			d.current[b.Label] = b
		}
	}

	for _, l := range d.labels {
		if det, ok := d.current[l]; ok {
			d.counters[l] = min(d.counters[l]+1, d.cfg.Cap)
			d.lastSeen[l] = det.Box
		} else {
			d.counters[l] = max(d.counters[l]-1, 0)
		}
	}
}

func (d *Debouncer) isTracked(label string) bool {
	i := sort.SearchStrings(d.labels, label)
	return i < len(d.labels) && d.labels[i] == label
}

// Stable reports whether label's counter has reached the stability threshold.
func (d *Debouncer) Stable(label string) bool {
	return d.counters[label] >= d.cfg.StabilityThreshold
}

// Counter returns label's current counter value.
func (d *Debouncer) Counter(label string) int {
	return d.counters[label]
}

// Counters returns a copy of all counters.
func (d *Debouncer) Counters() map[string]int {
	out := make(map[string]int, len(d.labels))
	for _, l := range d.labels {
		out[l] = d.counters[l]
	}
	return out
}

// StableBoxes returns every stable label with its box, ordered by label.
// A stable label missing from the current frame is reported at its last
// seen position.
func (d *Debouncer) StableBoxes() []StableBox {
	var out []StableBox
	for _, l := range d.labels {
		if !d.Stable(l) {
			continue
		}
		if det, ok := d.current[l]; ok {
			out = append(out, StableBox{Label: l, Box: det.Box})
			continue
		}
		if box, ok := d.lastSeen[l]; ok {
			out = append(out, StableBox{Label: l, Box: box, Held: true})
		}
	}
	return out
}

// Reset zeroes every counter and forgets box positions.
func (d *Debouncer) Reset() {
	clear(d.counters)
	clear(d.current)
	clear(d.lastSeen)
}
