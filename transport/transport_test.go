package transport

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi/spitest"
)

func bitsOf(s string) []bool {
	out := make([]bool, 0, len(s))
	for _, c := range s {
		switch c {
		case '0':
			out = append(out, false)
		case '1':
			out = append(out, true)
		}
	}
	return out
}

func push(t *testing.T, l Line, bits []bool) {
	t.Helper()
	for _, b := range bits {
		require.NoError(t, l.SetLine(b))
		require.NoError(t, l.ClockPulse())
	}
}

func TestPack(t *testing.T) {
	tests := []struct {
		name   string
		bits   string
		expect []byte
	}{
		{"empty", "", []byte{}},
		{"one byte", "10100101", []byte{0xA5}},
		{"padded with ones", "0000", []byte{0x0F}},
		{"two bytes", "00000000 111", []byte{0x00, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Pack(bitsOf(tt.bits)))
		})
	}
}

func TestSPIWritesPackedFrame(t *testing.T) {
	buf := bytes.Buffer{}
	s := NewSPIPort(spitest.NewRecordRaw(&buf), 0)
	assert.Equal(t, DefaultSPISpeed, s.Speed)

	assert.ErrorIs(t, s.SetLine(true), ErrClosed)

	require.NoError(t, s.Setup())
	require.NoError(t, s.Setup())
	push(t, s, bitsOf("10101010 1111"))
	assert.Equal(t, 0, buf.Len(), "nothing goes out before Flush")

	require.NoError(t, s.Flush())
	assert.Equal(t, []byte{0xAA, 0xFF}, buf.Bytes())

	require.NoError(t, s.Flush())
	assert.Equal(t, 2, buf.Len(), "empty flush writes nothing")
	require.NoError(t, s.Teardown())
	require.NoError(t, s.Teardown())
}

func TestConsoleFormatsFrames(t *testing.T) {
	buf := bytes.Buffer{}
	c := NewConsole(&buf)
	require.NoError(t, c.Setup())

	frame := strings.Repeat("0", 32) + "11100000" + "11111111" + "00000000" + "00000000" + "1"
	push(t, c, bitsOf(frame))
	require.NoError(t, c.Flush())

	expect := "Sending: " + strings.Repeat("0", 32) + "\n" +
		"11100000 11111111 00000000 00000000\n" +
		"1\n"
	assert.Equal(t, expect, buf.String())

	require.NoError(t, c.Teardown())
	assert.True(t, errors.Is(c.ClockPulse(), ErrClosed))
}

type recPin struct {
	gpiotest.Pin
	levels  []gpio.Level
	halts   int
	haltErr error
}

// Halt fails once with haltErr when it is set.
func (r *recPin) Halt() error {
	r.halts++
	err := r.haltErr
	r.haltErr = nil
	return err
}

func (r *recPin) Out(l gpio.Level) error {
	r.levels = append(r.levels, l)
	return r.Pin.Out(l)
}

func TestPeriphGPIOClocksOnRisingEdge(t *testing.T) {
	data := &recPin{Pin: gpiotest.Pin{N: "DATA", Num: 23}}
	clock := &recPin{Pin: gpiotest.Pin{N: "CLOCK", Num: 24}}
	p := NewPeriphGPIOPins(data, clock, 0)
	assert.Equal(t, "gpio{data=DATA clock=CLOCK}", p.String())

	assert.ErrorIs(t, p.ClockPulse(), ErrClosed)
	require.NoError(t, p.Setup())
	push(t, p, bitsOf("101"))
	require.NoError(t, p.Teardown())

	// Setup drives both low, teardown drives both low again.
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High, gpio.Low}, data.levels)
	assert.Equal(t, []gpio.Level{
		gpio.Low,
		gpio.Low, gpio.High,
		gpio.Low, gpio.High,
		gpio.Low, gpio.High,
		gpio.Low,
	}, clock.levels)
}

func TestPeriphGPIOTeardownCanBeRetried(t *testing.T) {
	data := &recPin{Pin: gpiotest.Pin{N: "DATA", Num: 23}}
	clock := &recPin{Pin: gpiotest.Pin{N: "CLOCK", Num: 24}}
	p := NewPeriphGPIOPins(data, clock, 0)
	require.NoError(t, p.Setup())

	boom := errors.New("pin busy")
	data.haltErr = boom
	assert.ErrorIs(t, p.Teardown(), boom)
	assert.Equal(t, 1, clock.halts, "later steps still run")
	require.NoError(t, p.SetLine(true), "still active after a failed teardown")

	require.NoError(t, p.Teardown())
	assert.Equal(t, 2, data.halts)
	assert.ErrorIs(t, p.SetLine(true), ErrClosed)
	require.NoError(t, p.Teardown())
	assert.Equal(t, 2, data.halts)
}
