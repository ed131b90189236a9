package transport

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Console is a simulated board. It prints every frame it receives, one
// group per line: start frame, one line per led split into
// brightness/blue/green/red, end frame.
type Console struct {
	W io.Writer

	mu      sync.Mutex
	active  bool
	pending bool
	bits    []bool
}

// NewConsole writes to w, or stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{W: w}
}

func (c *Console) String() string { return "console" }

func (c *Console) Setup() error {
	c.mu.Lock()
	c.active = true
	c.bits = c.bits[:0]
	c.mu.Unlock()
	return nil
}

func (c *Console) Teardown() error {
	c.mu.Lock()
	c.active = false
	c.bits = nil
	c.mu.Unlock()
	return nil
}

func (c *Console) SetLine(v bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return errors.Wrap(ErrClosed, "console set line")
	}
	c.pending = v
	return nil
}

func (c *Console) ClockPulse() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return errors.Wrap(ErrClosed, "console clock")
	}
	c.bits = append(c.bits, c.pending)
	return nil
}

func (c *Console) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return errors.Wrap(ErrClosed, "console flush")
	}
	out := formatFrame(c.bits)
	c.bits = c.bits[:0]
	_, err := c.W.Write(out)
	return errors.Wrap(err, "console flush")
}

func formatFrame(bits []bool) []byte {
	var buf bytes.Buffer
	buf.WriteString("Sending: ")
	i := 0
	take := func(n int) {
		for ; n > 0 && i < len(bits); n-- {
			if bits[i] {
				buf.WriteByte('1')
			} else {
				buf.WriteByte('0')
			}
			i++
		}
	}
	take(32)
	buf.WriteByte('\n')
	// Everything after the start frame that fills a whole 32 bit group is
	// a led frame; the remainder is the end frame.
	for len(bits)-i >= 32 {
		take(8)
		for g := 0; g < 3; g++ {
			buf.WriteByte(' ')
			take(8)
		}
		buf.WriteByte('\n')
	}
	take(len(bits) - i)
	buf.WriteByte('\n')
	return buf.Bytes()
}

var (
	_ Transport = (*Console)(nil)
	_ Flusher   = (*Console)(nil)
)
