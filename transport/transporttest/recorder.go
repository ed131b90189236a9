// Package transporttest provides a recording transport for tests.
package transporttest

import (
	"sync"

	"github.com/coreman2200/funtimes-blinkt/transport"
	"github.com/pkg/errors"
)

// Recorder implements transport.Transport and transport.Flusher. It keeps
// every committed bit and a log of lifecycle events.
type Recorder struct {
	// Errors returned by the matching call, when set.
	SetupErr    error
	TeardownErr error
	LineErr     error

	mu      sync.Mutex
	active  bool
	pending bool
	bits    []bool
	calls   int
	flushes int
	events  []string
}

func (r *Recorder) String() string { return "recorder" }

func (r *Recorder) Setup() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "setup")
	if r.SetupErr != nil {
		return r.SetupErr
	}
	r.active = true
	return nil
}

func (r *Recorder) Teardown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "teardown")
	r.active = false
	return r.TeardownErr
}

func (r *Recorder) SetLine(v bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.LineErr != nil {
		return r.LineErr
	}
	if !r.active {
		return errors.Wrap(transport.ErrClosed, "recorder set line")
	}
	r.pending = v
	return nil
}

func (r *Recorder) ClockPulse() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if !r.active {
		return errors.Wrap(transport.ErrClosed, "recorder clock")
	}
	r.bits = append(r.bits, r.pending)
	return nil
}

func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	r.events = append(r.events, "flush")
	return nil
}

// Bits returns a copy of every clocked bit so far.
func (r *Recorder) Bits() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.bits...)
}

// Calls counts SetLine and ClockPulse invocations.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *Recorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

// Events lists "setup", "teardown" and "flush" in call order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Reset forgets recorded bits and events but keeps the lifecycle state.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bits, r.events = nil, nil
	r.calls, r.flushes = 0, 0
}

var (
	_ transport.Transport = (*Recorder)(nil)
	_ transport.Flusher   = (*Recorder)(nil)
)
