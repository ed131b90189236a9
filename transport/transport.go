// Package transport holds the two-wire sinks a board pushes its bitstream to.
package transport

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/host/v3"
)

// Errors
var (
	ErrClosed      = errors.New("transport not set up")
	ErrNoPin       = errors.New("pin not found")
	ErrNoChip      = errors.New("no gpio chip named")
	ErrUnsupported = errors.New("transport not supported on this platform")
)

// Line is the data+clock pair. SetLine puts a bit on the data line and
// ClockPulse clocks it into the device.
type Line interface {
	SetLine(v bool) error
	ClockPulse() error
}

// Transport is a Line with a lifecycle. Setup and Teardown are idempotent.
type Transport interface {
	Line
	Setup() error
	Teardown() error
}

// Flusher is implemented by transports that buffer bits and need to know
// where a frame ends.
type Flusher interface {
	Flush() error
}

// DefaultHalfPeriod is half of the default 1µs software clock period.
const DefaultHalfPeriod = 500 * time.Nanosecond

var hostInit = func() error {
	_, err := host.Init()
	return err
}

func wait(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

func level(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Pack turns a bitstream into bytes, most significant bit first. A partial
// last byte is padded with ones, which the device reads as extra end-frame
// clocks.
func Pack(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i := range out {
		out[i] = 0xFF
	}
	for i, b := range bits {
		if !b {
			out[i/8] &^= 0x80 >> (i % 8)
		}
	}
	return out
}
