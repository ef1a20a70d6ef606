package l1detect

import "math"

// COCO pose keypoint indices for the wrists.
const (
	LeftWristIndex  = 9
	RightWristIndex = 10
)

// Hands holds the raw wrist measurements of the selected operator for one
// frame. A nil hand was not visible.
type Hands struct {
	Left  *Point
	Right *Point
}

// SelectOperator returns the person whose mean visible keypoint is nearest
// the frame centre. People with no visible keypoints are skipped. The second
// return is false when nobody qualifies.
func SelectOperator(people []Person, width, height int) (Person, bool) {
	center := Point{X: float64(width) / 2, Y: float64(height) / 2}

	best := -1
	bestDist := math.Inf(1)
	for i, p := range people {
		mean, ok := meanVisible(p.Keypoints)
		if !ok {
			continue
		}
		if d := mean.Distance(center); d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return Person{}, false
	}
	return people[best], true
}

func meanVisible(kps []Point) (Point, bool) {
	var sum Point
	n := 0
	for _, kp := range kps {
		if kp.IsZero() {
			continue
		}
		sum.X += kp.X
		sum.Y += kp.Y
		n++
	}
	if n == 0 {
		return Point{}, false
	}
	return Point{X: sum.X / float64(n), Y: sum.Y / float64(n)}, true
}

// Wrists reads the two wrist keypoints of p. Skeletons too short to contain
// both indices yield no hands.
func Wrists(p Person) Hands {
	var h Hands
	if len(p.Keypoints) <= RightWristIndex {
		return h
	}
	if lw := p.Keypoints[LeftWristIndex]; !lw.IsZero() {
		h.Left = &lw
	}
	if rw := p.Keypoints[RightWristIndex]; !rw.IsZero() {
		h.Right = &rw
	}
	return h
}

// OperatorHands combines SelectOperator and Wrists for a detection result.
// A nil result yields no hands.
func OperatorHands(res *DetectionResult) Hands {
	if res == nil {
		return Hands{}
	}
	p, ok := SelectOperator(res.People, res.Width, res.Height)
	if !ok {
		return Hands{}
	}
	return Wrists(p)
}
