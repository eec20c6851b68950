package stage

import (
	"math"

	"github.com/gogpu/lessdetail/internal/gpu"
)

// float32 counterparts of the WGSL built-ins the kernels use.

func exp32(x float32) float32 { return float32(math.Exp(float64(x))) }

func sqrt32(x float32) float32 { return float32(math.Sqrt(float64(x))) }

func tanh32(x float32) float32 { return float32(math.Tanh(float64(x))) }

func floor32(x float32) float32 { return float32(math.Floor(float64(x))) }

func abs32(x float32) float32 { return float32(math.Abs(float64(x))) }

func sign32(x float32) float32 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func smoothstep(e0, e1, x float32) float32 {
	t := min(max((x-e0)/(e1-e0), 0), 1)
	return t * t * (3 - 2*t)
}

// length3 is the Euclidean length of the colour part of v.
func length3(v gpu.Vec4) float32 { return sqrt32(v.Dot3(v)) }

// mix3 interpolates the colour part of a and b, with alpha 1.
func mix3(a, b gpu.Vec4, t float32) gpu.Vec4 {
	return gpu.Vec4{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
		1,
	}
}

// decodeFlow maps a stored flow texel to a direction in [-1, 1]^2.
func decodeFlow(t gpu.Vec4) gpu.Vec2 {
	return gpu.Vec2{X: (t[0] - 0.5) * 2, Y: (t[1] - 0.5) * 2}
}

// stepLength is the sample spacing that moves one texel along the longer
// axis of dir.
func stepLength(dir gpu.Vec2) float32 {
	return 1 / max(abs32(dir.X), abs32(dir.Y), 1e-4)
}
