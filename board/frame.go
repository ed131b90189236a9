package board

import (
	"math"

	"github.com/coreman2200/funtimes-blinkt/model"
)

const (
	START_FRAME_BITS = 32
	LED_FRAME_BITS   = 32
	MARKER_BITS      = 3
	MAX_INTENSITY    = 31
)

// Intensity maps a 0..1 brightness onto the 5 bit global intensity field.
func Intensity(brightness float64) uint8 {
	if math.IsNaN(brightness) || brightness <= 0 {
		return 0
	}
	if brightness >= 1 {
		return MAX_INTENSITY
	}
	return uint8(brightness * MAX_INTENSITY)
}

// EndFrameBits is the number of trailing ones needed to push the last led
// frame through a chain of n leds.
func EndFrameBits(n int) int {
	return (n + 1) / 2
}

// FrameBits is the total length of the bitstream for n leds.
func FrameBits(n int) int {
	return START_FRAME_BITS + n*LED_FRAME_BITS + EndFrameBits(n)
}

// Encode serializes led states, in order, into the wire bitstream:
//
//	start  32 x 0
//	led    111 iiiii bbbbbbbb gggggggg rrrrrrrr   (per led, msb first)
//	end    (n+1)/2 x 1
func Encode(states []model.LedState) []bool {
	bits := make([]bool, 0, FrameBits(len(states)))
	for i := 0; i < START_FRAME_BITS; i++ {
		bits = append(bits, false)
	}
	for _, s := range states {
		for i := 0; i < MARKER_BITS; i++ {
			bits = append(bits, true)
		}
		bits = appendBits(bits, Intensity(s.Brightness), 5)
		bits = appendBits(bits, s.Color.B(), 8)
		bits = appendBits(bits, s.Color.G(), 8)
		bits = appendBits(bits, s.Color.R(), 8)
	}
	for i := 0; i < EndFrameBits(len(states)); i++ {
		bits = append(bits, true)
	}
	return bits
}

func appendBits(bits []bool, v uint8, width int) []bool {
	for i := width - 1; i >= 0; i-- {
		bits = append(bits, (v>>i)&1 == 1)
	}
	return bits
}
