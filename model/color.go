package model

import (
	"fmt"
	"image/color"
	"math"
)

const MAX_CHANNEL = 255

// Color is an immutable 8 bit per channel RGB value. The zero value is off.
type Color struct {
	r, g, b uint8
}

// Off is the all-zero color written by Clear.
var Off = Color{}

// RGB builds a Color from 0..255 channel values. Values outside the range
// are clamped to the nearest bound.
func RGB(r, g, b int) Color {
	return Color{r: clampByte(r), g: clampByte(g), b: clampByte(b)}
}

// Ratios builds a Color from normalized 0..1 channel values, clamping
// anything outside the unit range.
func Ratios(r, g, b float64) Color {
	return Color{r: ratioByte(r), g: ratioByte(g), b: ratioByte(b)}
}

func clampByte(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > MAX_CHANNEL:
		return MAX_CHANNEL
	}
	return uint8(v)
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func ratioByte(v float64) uint8 {
	return uint8(math.Round(clampUnit(v) * MAX_CHANNEL))
}

func (c Color) R() uint8 { return c.r }
func (c Color) G() uint8 { return c.g }
func (c Color) B() uint8 { return c.b }

// IsOff reports whether every channel is zero.
func (c Color) IsOff() bool {
	return c == Off
}

// Scale multiplies every channel by s (clamped to 0..1).
func (c Color) Scale(s float64) Color {
	s = clampUnit(s)
	return Color{
		r: uint8(math.Round(float64(c.r) * s)),
		g: uint8(math.Round(float64(c.g) * s)),
		b: uint8(math.Round(float64(c.b) * s)),
	}
}

// RGBA implements color.Color. Colors are always opaque.
func (c Color) RGBA() (r, g, b, a uint32) {
	return c.NRGBA().RGBA()
}

func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.r, G: c.g, B: c.b, A: 0xFF}
}

func (c Color) String() string {
	return fmt.Sprintf("Color(%d, %d, %d)", c.r, c.g, c.b)
}

var _ color.Color = Color{}
