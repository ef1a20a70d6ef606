package l1detect

import (
	"math"
	"time"
)

// Point is an image-space position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between p and b.
func (p Point) Distance(b Point) float64 {
	return math.Hypot(p.X-b.X, p.Y-b.Y)
}

// IsZero reports whether p is the origin. Pose models emit (0,0) for
// keypoints they could not place, so the origin means "not visible".
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Box is an axis-aligned bounding box given by its corners, x1<=x2, y1<=y2.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// BoxAround returns a width x height box centred on c.
func BoxAround(c Point, width, height float64) Box {
	return Box{
		X1: c.X - width/2,
		Y1: c.Y - height/2,
		X2: c.X + width/2,
		Y2: c.Y + height/2,
	}
}

func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

func (b Box) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// DetectedBox is one labelled object detection. Regenerated every frame and
// never persisted by the recognition core.
type DetectedBox struct {
	Label      string  `json:"label"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Person is one pose detection: keypoints in the detector's fixed order.
type Person struct {
	Keypoints []Point `json:"keypoints"`
}

// DetectionResult is everything the detector reports for one frame.
type DetectionResult struct {
	Seq        uint64        `json:"seq"`
	CapturedAt time.Time     `json:"captured_at"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Boxes      []DetectedBox `json:"boxes,omitempty"`
	People     []Person      `json:"people,omitempty"`
}
