package model

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// HLS builds a Color from hue, lightness and saturation, all in 0..1.
// Hue wraps around; lightness and saturation are clamped.
func HLS(h, l, s float64) Color {
	c := colorful.Hsl(hueDegrees(h), clampUnit(s), clampUnit(l))
	return Ratios(c.R, c.G, c.B)
}

// HSV builds a Color from hue, saturation and value, all in 0..1.
func HSV(h, s, v float64) Color {
	c := colorful.Hsv(hueDegrees(h), clampUnit(s), clampUnit(v))
	return Ratios(c.R, c.G, c.B)
}

// YIQ builds a Color from NTSC luma and chroma components. Results outside
// the RGB gamut are clamped per channel.
func YIQ(y, i, q float64) Color {
	r := y + 0.9468822170900693*i + 0.6235565819861433*q
	g := y - 0.27478764629897834*i - 0.6356910791873801*q
	b := y - 1.1085450346420322*i + 1.7090069284064666*q
	return Ratios(r, g, b)
}

func hueDegrees(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	h = math.Mod(h, 1)
	if h < 0 {
		h++
	}
	return h * 360
}
