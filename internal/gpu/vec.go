package gpu

import "math"

// Vec2 is a two-component float vector (texture coordinates, directions).
type Vec2 struct {
	X, Y float32
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Scale returns v * s.
func (v Vec2) Scale(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Div returns the component-wise quotient v / o.
func (v Vec2) Div(o Vec2) Vec2 { return Vec2{v.X / o.X, v.Y / o.Y} }

// Dot returns the dot product of v and o.
func (v Vec2) Dot(o Vec2) float32 { return v.X*o.X + v.Y*o.Y }

// Len returns the Euclidean length of v.
func (v Vec2) Len() float32 { return float32(math.Sqrt(float64(v.Dot(v)))) }

// Vec4 is an RGBA texel or a general four-component vector.
type Vec4 [4]float32

// Add returns v + o.
func (v Vec4) Add(o Vec4) Vec4 {
	return Vec4{v[0] + o[0], v[1] + o[1], v[2] + o[2], v[3] + o[3]}
}

// Sub returns v - o.
func (v Vec4) Sub(o Vec4) Vec4 {
	return Vec4{v[0] - o[0], v[1] - o[1], v[2] - o[2], v[3] - o[3]}
}

// Scale returns v * s.
func (v Vec4) Scale(s float32) Vec4 {
	return Vec4{v[0] * s, v[1] * s, v[2] * s, v[3] * s}
}

// Dot3 returns the dot product of the first three components.
func (v Vec4) Dot3(o Vec4) float32 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// RGB returns v with alpha forced to 1.
func (v Vec4) RGB() Vec4 { return Vec4{v[0], v[1], v[2], 1} }
