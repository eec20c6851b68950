package color

import "github.com/lucasb-eyer/go-colorful"

// Lab is a CIE L*a*b* colour on the usual scale: L in [0, 100], a and b
// roughly within [-127, 127]. go-colorful works in hundredths.
type Lab struct {
	L, A, B float32
}

// ToRGB converts c to sRGB. Out-of-gamut components are not clamped; the
// texture write clamps them.
func (c Lab) ToRGB() RGB {
	col := colorful.Lab(float64(c.L)/100, float64(c.A)/100, float64(c.B)/100)
	return RGB{R: float32(col.R), G: float32(col.G), B: float32(col.B)}
}

// Normalized maps L to [0, 1] and a, b from [-127, 127] to [0, 1], the
// layout stored in textures.
func (c Lab) Normalized() (l, a, b float32) {
	return c.L / 100, 0.5 + 0.5*(c.A/127), 0.5 + 0.5*(c.B/127)
}

// LabFromNormalized inverts Lab.Normalized.
func LabFromNormalized(l, a, b float32) Lab {
	return Lab{L: 100 * l, A: 2 * (a - 0.5) * 127, B: 2 * (b - 0.5) * 127}
}
