package l4region

import (
	"math"

	"github.com/banshee-data/assembly.monitor/internal/config"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l2presence"
)

// Config sets the interaction rectangle size in pixels.
type Config struct {
	Width  float64
	Height float64
}

// DefaultConfig returns the built-in rectangle size.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Width:  float64(cfg.GetRegionWidth()),
		Height: float64(cfg.GetRegionHeight()),
	}
}

// Hand identifies which wrist produced a hit.
type Hand string

const (
	HandNone  Hand = ""
	HandLeft  Hand = "left"
	HandRight Hand = "right"
)

// Hit is the outcome of testing one frame. Label is empty when no hand
// overlaps a stable box.
type Hit struct {
	Label  string       `json:"label"`
	Hand   Hand         `json:"hand"`
	Region l1detect.Box `json:"region"`
}

// Overlaps reports whether a and b share interior area. Rectangles that
// only touch along an edge do not overlap.
func Overlaps(a, b l1detect.Box) bool {
	return a.X1 < b.X2 && b.X1 < a.X2 && a.Y1 < b.Y2 && b.Y1 < a.Y2
}

// Tester intersects hand regions with stable boxes.
type Tester struct {
	cfg Config
}

// NewTester creates a Tester.
func NewTester(cfg Config) *Tester {
	return &Tester{cfg: cfg}
}

// Region returns the interaction rectangle centred on hand.
func (t *Tester) Region(hand l1detect.Point) l1detect.Box {
	return l1detect.BoxAround(hand, t.cfg.Width, t.cfg.Height)
}

// Test returns the label of the stable box the hand region overlaps, or ""
// if none. When several boxes overlap, the one whose centre is nearest the
// hand wins; equal distances fall back to label order.
func (t *Tester) Test(hand l1detect.Point, stable []l2presence.StableBox) string {
	region := t.Region(hand)
	best := ""
	bestDist := math.Inf(1)
	for _, sb := range stable {
		if !Overlaps(region, sb.Box) {
			continue
		}
		d := hand.Distance(sb.Box.Center())
		if d < bestDist || (d == bestDist && sb.Label < best) {
			best, bestDist = sb.Label, d
		}
	}
	return best
}

// Resolve tests both hands and combines them. The right hand wins; the left
// hand is used only when the right hand is missing or touches nothing.
func (t *Tester) Resolve(right, left *l1detect.Point, stable []l2presence.StableBox) Hit {
	if right != nil {
		if label := t.Test(*right, stable); label != "" {
			return Hit{Label: label, Hand: HandRight, Region: t.Region(*right)}
		}
	}
	if left != nil {
		if label := t.Test(*left, stable); label != "" {
			return Hit{Label: label, Hand: HandLeft, Region: t.Region(*left)}
		}
	}
	return Hit{}
}
