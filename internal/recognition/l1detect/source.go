package l1detect

import (
	"context"
	"io"
	"sync"
)

// FrameSource yields captured frames in order. NextFrame returns io.EOF
// when the source is exhausted.
type FrameSource interface {
	NextFrame(ctx context.Context) (Frame, error)
}

// SliceSource replays a fixed list of frames, optionally looping. Looped
// frames keep their original sequence numbers so recorded detections still
// line up.
type SliceSource struct {
	mu     sync.Mutex
	frames []Frame
	loop   bool
	pos    int
	lap    uint64
}

// NewSliceSource creates a source over frames.
func NewSliceSource(frames []Frame, loop bool) *SliceSource {
	return &SliceSource{frames: frames, loop: loop}
}

// NextFrame implements FrameSource.
func (s *SliceSource) NextFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return Frame{}, io.EOF
		}
		s.pos = 0
		s.lap++
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Lap returns how many times a looping source has wrapped.
func (s *SliceSource) Lap() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lap
}
