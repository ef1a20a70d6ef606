package l1detect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/assembly.monitor/internal/monitoring"
)

var logf = monitoring.Prefixed("[l1detect] ")

// Frame is one captured video frame handed to the detector. The pixel
// payload is opaque to the recognition core.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Width      int
	Height     int
	Data       []byte
}

// Detector runs object and pose inference on a frame. Implementations live
// outside the core (model runtimes, recordings).
type Detector interface {
	Detect(ctx context.Context, frame Frame) (*DetectionResult, error)
}

// WorkerStats reports inference worker counters.
type WorkerStats struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"` // overwritten before the worker picked them up
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

// Worker runs inference on a single background goroutine.
//
// Submit never blocks: the mailbox holds one frame and a newer frame
// overwrites an unconsumed one. Results are published through an atomic
// pointer with last-writer-wins semantics, so the frame tick reads Latest()
// without locking and reuses a stale result until it is superseded.
type Worker struct {
	detector Detector

	mu      sync.Mutex
	cond    *sync.Cond
	pending *Frame
	closed  bool

	latest atomic.Pointer[DetectionResult]

	submitted atomic.Uint64
	dropped   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewWorker creates a worker for detector. Call Run to start it.
func NewWorker(detector Detector) *Worker {
	w := &Worker{detector: detector}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Submit offers a frame for inference. Safe to call from the frame tick.
func (w *Worker) Submit(frame Frame) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.submitted.Add(1)
	if w.pending != nil {
		w.dropped.Add(1)
	}
	w.pending = &frame
	w.cond.Signal()
}

// Latest returns the most recently published result, or nil before the
// first inference completes.
func (w *Worker) Latest() *DetectionResult {
	return w.latest.Load()
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Submitted: w.submitted.Load(),
		Dropped:   w.dropped.Load(),
		Completed: w.completed.Load(),
		Failed:    w.failed.Load(),
	}
}

// Close stops the worker. Idempotent.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Run consumes frames until ctx is cancelled or Close is called.
// Detector failures are counted and logged; the previous result stays
// published.
func (w *Worker) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, w.Close)
	defer stop()

	for {
		frame, ok := w.next()
		if !ok {
			return
		}
		res, err := w.detector.Detect(ctx, frame)
		if err != nil {
			w.failed.Add(1)
			if ctx.Err() == nil {
				logf("inference failed for frame %d: %v", frame.Seq, err)
			}
			continue
		}
		if res == nil {
			continue
		}
		w.latest.Store(res)
		w.completed.Add(1)
	}
}

func (w *Worker) next() (Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.pending == nil && !w.closed {
		w.cond.Wait()
	}
	if w.closed {
		return Frame{}, false
	}
	frame := *w.pending
	w.pending = nil
	return frame, true
}
