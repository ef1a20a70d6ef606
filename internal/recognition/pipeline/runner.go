package pipeline

import (
	"context"
	"errors"
	"io"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/bmharper/ringbuffer"

	"github.com/banshee-data/assembly.monitor/internal/recognition/l1detect"
	"github.com/banshee-data/assembly.monitor/internal/recognition/l6assembly"
	"github.com/banshee-data/assembly.monitor/internal/timeutil"
)

// ErrRunnerStopped is returned by commands issued after Run has returned.
var ErrRunnerStopped = errors.New("pipeline runner stopped")

type command struct {
	apply func(p *Pipeline) error
	reply chan error
}

// Runner drives a Pipeline from a frame source on a fixed tick.
//
// Each tick applies queued operator commands, pulls the next frame, hands
// every Nth frame to the inference worker and runs the pipeline against
// the worker's latest published result. Readers get the newest Snapshot
// lock-free; all pipeline mutation stays on the Run goroutine.
type Runner struct {
	cfg        Config
	clock      timeutil.Clock
	pipeline   *Pipeline
	source     l1detect.FrameSource
	worker     *l1detect.Worker
	dispatcher *Dispatcher

	commands chan command
	stopped  chan struct{}
	stopOnce sync.Once

	latest atomic.Pointer[Snapshot]

	histMu     sync.Mutex
	history    ringbuffer.RingP[StatusSample]
	lastSample Snapshot
}

// NewRunner wires a pipeline for plan to source and detector. Events go to
// dispatcher, which the caller owns and closes after Run returns.
func NewRunner(cfg Config, plan *l6assembly.Plan, clock timeutil.Clock, source l1detect.FrameSource, detector l1detect.Detector, dispatcher *Dispatcher) *Runner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	var sink EventSink
	if dispatcher != nil {
		sink = dispatcher
	}
	r := &Runner{
		cfg:        cfg,
		clock:      clock,
		pipeline:   New(cfg, plan, clock, sink),
		source:     source,
		worker:     l1detect.NewWorker(detector),
		dispatcher: dispatcher,
		commands:   make(chan command, 16),
		stopped:    make(chan struct{}),
		history:    ringbuffer.NewRingP[StatusSample](historyCapacity(cfg.StatusHistorySize)),
	}
	r.publish(r.pipeline.Last())
	return r
}

// historyCapacity rounds n up to a power of two, as the ring requires.
func historyCapacity(n int) int {
	if n < 2 {
		return 2
	}
	return 1 << bits.Len(uint(n-1))
}

// Run ticks until ctx is cancelled or the frame source is exhausted. It
// returns nil in both cases and the first source error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	defer r.stopOnce.Do(func() { close(r.stopped) })

	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.worker.Run(ctx)
	}()
	// Cancel before waiting so an in-flight Detect is interrupted.
	defer func() {
		r.worker.Close()
		cancel()
		wg.Wait()
	}()

	ticker := r.clock.NewTicker(r.cfg.FrameInterval)
	defer ticker.Stop()

	every := uint64(max(r.cfg.InferenceEveryNFrames, 1))
	var n uint64
	for {
		select {
		case <-ctx.Done():
			r.drainCommands(ErrRunnerStopped)
			return nil
		case <-ticker.C():
		}

		r.applyCommands()

		frame, err := r.source.NextFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				diagf("frame source exhausted after %d frames", n)
				r.drainCommands(ErrRunnerStopped)
				return nil
			}
			if ctx.Err() != nil {
				r.drainCommands(ErrRunnerStopped)
				return nil
			}
			opsf("frame source failed: %v", err)
			r.drainCommands(ErrRunnerStopped)
			return err
		}
		if n%every == 0 {
			r.worker.Submit(frame)
		}
		n++

		r.publish(r.pipeline.Tick(r.worker.Latest()))
	}
}

func (r *Runner) applyCommands() {
	for {
		select {
		case cmd := <-r.commands:
			cmd.reply <- cmd.apply(r.pipeline)
		default:
			return
		}
	}
}

func (r *Runner) drainCommands(err error) {
	for {
		select {
		case cmd := <-r.commands:
			cmd.reply <- err
		default:
			return
		}
	}
}

func (r *Runner) publish(snap Snapshot) {
	snap.Worker = r.worker.Stats()
	if r.dispatcher != nil {
		snap.DroppedEvents = r.dispatcher.Dropped()
	}
	r.latest.Store(&snap)

	r.histMu.Lock()
	defer r.histMu.Unlock()
	if r.history.Len() == 0 || snap.At.Sub(r.lastSample.At) >= r.cfg.StatusInterval {
		r.history.Add(snap.Sample())
		r.lastSample = snap
	}
}

// Snapshot returns the newest published snapshot.
func (r *Runner) Snapshot() Snapshot {
	return *r.latest.Load()
}

// History returns the sampled status history, oldest first.
func (r *Runner) History() []StatusSample {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	out := make([]StatusSample, r.history.Len())
	for i := range out {
		out[i] = r.history.Peek(i)
	}
	return out
}

// ResetPlan queues a plan reset for the next tick and waits for it.
func (r *Runner) ResetPlan(ctx context.Context) error {
	return r.do(ctx, func(p *Pipeline) error { p.ResetPlan(); return nil })
}

// ResetSession queues a session reset for the next tick and waits for it.
func (r *Runner) ResetSession(ctx context.Context) error {
	return r.do(ctx, func(p *Pipeline) error { p.ResetSession(); return nil })
}

// ReplacePlan queues a plan switch for the next tick and waits for it.
func (r *Runner) ReplacePlan(ctx context.Context, plan *l6assembly.Plan) error {
	return r.do(ctx, func(p *Pipeline) error { p.ReplacePlan(plan); return nil })
}

// ResolveError queues an error resolution for the next tick and waits for
// it.
func (r *Runner) ResolveError(ctx context.Context, id int64) error {
	return r.do(ctx, func(p *Pipeline) error { return p.ResolveError(id) })
}

func (r *Runner) do(ctx context.Context, fn func(p *Pipeline) error) error {
	cmd := command{
		apply: func(p *Pipeline) error {
			err := fn(p)
			r.publish(p.Last())
			return err
		},
		reply: make(chan error, 1),
	}
	select {
	case r.commands <- cmd:
	case <-r.stopped:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-r.stopped:
		// Run may have answered just before stopping.
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrRunnerStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
