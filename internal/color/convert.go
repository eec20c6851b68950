// Package color adapts the sRGB and CIE L*a*b* (D65) conversions of
// go-colorful to the float32 texels of the abstraction kernels, and maps Lab
// to the [0, 1] layout stored in textures.
package color

import "github.com/lucasb-eyer/go-colorful"

// RGB is an sRGB colour with components in [0, 1].
type RGB struct {
	R, G, B float32
}

func (c RGB) colorful() colorful.Color {
	return colorful.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B)}
}

// ToLab converts c to L*a*b* relative to D65.
func (c RGB) ToLab() Lab {
	l, a, b := c.colorful().Lab()
	return Lab{L: float32(l * 100), A: float32(a * 100), B: float32(b * 100)}
}
