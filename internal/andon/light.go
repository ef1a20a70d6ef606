// Package andon drives a serial stack light from pipeline events so the
// operator sees sequence errors and completed units without watching a
// screen.
package andon

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/assembly.monitor/internal/monitoring"
	"github.com/banshee-data/assembly.monitor/internal/recognition/pipeline"
)

var logf = monitoring.Prefixed("[andon] ")

// Signal is one stack light command. The controller protocol is one ASCII
// line per command: "<COLOR> <MODE>\r\n", plus "BUZZ <ms>\r\n" for the
// buzzer.
type Signal struct {
	Color string // GREEN, AMBER, RED, OFF
	Mode  string // STEADY, BLINK
}

func (s Signal) line() string {
	if s.Color == "OFF" {
		return "OFF\r\n"
	}
	return fmt.Sprintf("%s %s\r\n", s.Color, s.Mode)
}

var (
	SignalOff      = Signal{Color: "OFF"}
	SignalRunning  = Signal{Color: "GREEN", Mode: "STEADY"}
	SignalComplete = Signal{Color: "GREEN", Mode: "BLINK"}
	SignalError    = Signal{Color: "RED", Mode: "STEADY"}
)

// Porter is the write side of a serial port.
type Porter interface {
	io.Writer
	io.Closer
}

// Light is a pipeline.EventSink that mirrors plan state on a stack light.
//
// Red holds while any sequence error of the current session is pending,
// including across plan resets, and clears when the last one is resolved or
// a new session starts. A completed plan blinks green until the next pick.
type Light struct {
	mu         sync.Mutex
	port       Porter
	buzz       time.Duration
	session    string
	pending    map[int64]bool
	current    Signal
	writeFails uint64
}

// NewLight creates a light on an already open port. buzz is the buzzer
// pulse sent with each new error; zero disables it.
func NewLight(port Porter, buzz time.Duration) *Light {
	return &Light{port: port, buzz: buzz, pending: make(map[int64]bool)}
}

// Open opens the serial device at path and returns a Light on it.
func Open(path string, opts PortOptions, buzz time.Duration) (*Light, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open stack light %s: %w", path, err)
	}
	return NewLight(port, buzz), nil
}

// HandleEvent implements pipeline.EventSink.
func (l *Light) HandleEvent(ev pipeline.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.SessionID != l.session {
		l.session = ev.SessionID
		clear(l.pending)
	}

	switch ev.Kind {
	case pipeline.EventSessionStarted:
		clear(l.pending)
		l.set(SignalRunning)
	case pipeline.EventPlanReset, pipeline.EventPlanReplaced:
		// Errors stay pending across a plan change until resolved.
		if len(l.pending) == 0 {
			l.set(SignalRunning)
		} else {
			l.set(SignalError)
		}
	case pipeline.EventMismatch:
		if ev.Outcome != nil && ev.Outcome.Error != nil {
			l.pending[ev.Outcome.Error.ID] = true
		}
		l.set(SignalError)
		if l.buzz > 0 {
			l.write(fmt.Sprintf("BUZZ %d\r\n", l.buzz.Milliseconds()))
		}
	case pipeline.EventErrorResolved:
		if ev.Outcome != nil && ev.Outcome.Error != nil {
			delete(l.pending, ev.Outcome.Error.ID)
		}
		if len(l.pending) == 0 {
			l.set(SignalRunning)
		}
	case pipeline.EventPlanCompleted:
		if len(l.pending) == 0 {
			l.set(SignalComplete)
		}
	case pipeline.EventPick, pipeline.EventPlanRestarted:
		if l.current == SignalComplete {
			l.set(SignalRunning)
		}
	}
}

// Current returns the last signal sent.
func (l *Light) Current() Signal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// WriteFailures returns how many commands failed to reach the port.
func (l *Light) WriteFailures() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeFails
}

func (l *Light) set(s Signal) {
	if s == l.current {
		return
	}
	if l.write(s.line()) {
		l.current = s
	}
}

func (l *Light) write(line string) bool {
	if _, err := io.WriteString(l.port, line); err != nil {
		l.writeFails++
		logf("write %q failed: %v", line, err)
		return false
	}
	return true
}

// Close turns the light off and closes the port.
func (l *Light) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.write(SignalOff.line())
	return l.port.Close()
}
