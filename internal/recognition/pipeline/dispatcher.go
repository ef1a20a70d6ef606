package pipeline

import (
	"sync"
	"sync/atomic"
)

type subscription struct {
	name    string
	sink    EventSink
	ch      chan Event
	dropped atomic.Uint64
	done    chan struct{}
}

// Dispatcher fans events out to sinks without blocking the frame tick.
// Each sink has its own buffered queue drained by its own goroutine; when
// a queue is full the event is dropped for that sink and counted.
type Dispatcher struct {
	bufferSize int

	mu     sync.RWMutex
	subs   []*subscription
	closed bool

	droppedTotal atomic.Uint64
}

// NewDispatcher creates a dispatcher whose sinks each buffer up to
// bufferSize events.
func NewDispatcher(bufferSize int) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Dispatcher{bufferSize: bufferSize}
}

// Subscribe registers sink under name and starts its delivery goroutine.
// The returned function unsubscribes and waits for in-flight delivery.
func (d *Dispatcher) Subscribe(name string, sink EventSink) (unsubscribe func()) {
	s := &subscription{
		name: name,
		sink: sink,
		ch:   make(chan Event, d.bufferSize),
		done: make(chan struct{}),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(s.done)
		return func() {}
	}
	d.subs = append(d.subs, s)
	d.mu.Unlock()

	go func() {
		defer close(s.done)
		for ev := range s.ch {
			s.sink.HandleEvent(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(s) })
		<-s.done
	}
}

func (d *Dispatcher) remove(s *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.subs {
		if cur == s {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// HandleEvent queues ev for every sink. It never blocks.
func (d *Dispatcher) HandleEvent(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.subs {
		select {
		case s.ch <- ev:
		default:
			n := s.dropped.Add(1)
			d.droppedTotal.Add(1)
			if n == 1 || n%100 == 0 {
				opsf("sink %s full, dropped %d events so far", s.name, n)
			}
		}
	}
}

// Dropped returns the total number of events dropped across all sinks.
func (d *Dispatcher) Dropped() uint64 {
	return d.droppedTotal.Load()
}

// Subscribers returns the number of registered sinks.
func (d *Dispatcher) Subscribers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Close stops accepting subscriptions, flushes queued events to every sink
// and waits for delivery to finish. Idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := d.subs
	d.subs = nil
	for _, s := range subs {
		close(s.ch)
	}
	d.mu.Unlock()

	for _, s := range subs {
		<-s.done
	}
}
