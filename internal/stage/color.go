package stage

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/lessdetail/internal/color"
	"github.com/gogpu/lessdetail/internal/gpu"
	"github.com/gogpu/lessdetail/internal/texture"
)

// RGBToLab converts an sRGB colour to L*a*b* normalized to [0, 1]:
// L/100, then a and b mapped from [-127, 127].
func RGBToLab(c gpu.Vec4) gpu.Vec4 {
	l, a, b := color.RGB{R: c[0], G: c[1], B: c[2]}.ToLab().Normalized()
	return gpu.Vec4{l, a, b, 1}
}

// LabToRGB inverts RGBToLab.
func LabToRGB(c gpu.Vec4) gpu.Vec4 {
	rgb := color.LabFromNormalized(c[0], c[1], c[2]).ToRGB()
	return gpu.Vec4{rgb.R, rgb.G, rgb.B, 1}
}

// RGBToLabKind converts the input to normalized L*a*b*.
type RGBToLabKind struct{ base }

// NewRGBToLab returns the sRGB to L*a*b* kind.
func NewRGBToLab() *RGBToLabKind {
	return &RGBToLabKind{base{name: "rgb2lab", shader: "rgb2lab"}}
}

func (*RGBToLabKind) Shader(Macros) gpu.Shader {
	return func(*gpu.Uniforms) gpu.Kernel {
		return func(f *gpu.Fragment) gpu.Vec4 {
			return RGBToLab(f.Sample(0, f.UV))
		}
	}
}

func (*RGBToLabKind) BindUniforms(*gpu.Program, *Call) {}

// LabToRGBKind converts normalized L*a*b* back to sRGB.
type LabToRGBKind struct{ base }

// NewLabToRGB returns the L*a*b* to sRGB kind.
func NewLabToRGB() *LabToRGBKind {
	return &LabToRGBKind{base{name: "lab2rgb", shader: "lab2rgb"}}
}

func (*LabToRGBKind) Shader(Macros) gpu.Shader {
	return func(*gpu.Uniforms) gpu.Kernel {
		return func(f *gpu.Fragment) gpu.Vec4 {
			return LabToRGB(f.Sample(0, f.UV))
		}
	}
}

func (*LabToRGBKind) BindUniforms(*gpu.Program, *Call) {}

// QuantizeKind softly quantizes luminance into Constants.CQNBins levels.
type QuantizeKind struct{ base }

// NewQuantize returns the colour quantization kind.
func NewQuantize() *QuantizeKind {
	return &QuantizeKind{base{
		name:     "color_quantization",
		shader:   "color_quantization",
		uniforms: []string{"nbins", "phiQ"},
	}}
}

// Quantize applies soft luminance quantization to a normalized Lab colour.
func Quantize(c gpu.Vec4, nbins int, phiQ float32) gpu.Vec4 {
	bins := float32(nbins)
	qn := floor32(c[0]*bins+0.5) / bins
	qs := smoothstep(-2, 2, phiQ*(c[0]-qn)*100) - 0.5
	return gpu.Vec4{qn + qs/bins, c[1], c[2], 1}
}

func (*QuantizeKind) Shader(Macros) gpu.Shader {
	return func(u *gpu.Uniforms) gpu.Kernel {
		nbins, phiQ := u.Int("nbins"), u.Float("phiQ")
		if nbins <= 0 {
			nbins = 1
		}
		return func(f *gpu.Fragment) gpu.Vec4 {
			return Quantize(f.Sample(0, f.UV), nbins, phiQ)
		}
	}
}

func (*QuantizeKind) BindUniforms(p *gpu.Program, c *Call) {
	p.SetInt("nbins", c.Constants.CQNBins)
	p.SetFloat("phiQ", float32(c.Constants.CQPhiQ))
}

// MixKind blends Constants.EdgeColor into the input where the edge map,
// bound as the first auxiliary texture, is dark.
type MixKind struct{ base }

// NewMix returns the edge compositing kind.
func NewMix() *MixKind {
	return &MixKind{base{name: "mix", shader: "mix", uniforms: []string{"edgeColor"}}}
}

func (*MixKind) AuxInputs() int { return 1 }

func (*MixKind) Shader(Macros) gpu.Shader {
	return func(u *gpu.Uniforms) gpu.Kernel {
		edge := u.Vec3("edgeColor")
		return func(f *gpu.Fragment) gpu.Vec4 {
			c := f.Sample(0, f.UV)
			e := f.Sample(1, f.UV)[0]
			return mix3(edge, c, e)
		}
	}
}

func (*MixKind) BindUniforms(p *gpu.Program, c *Call) {
	ec := c.Constants.EdgeColor
	p.SetVec3("edgeColor", float32(ec.R)/255, float32(ec.G)/255, float32(ec.B)/255)
}

// DisplayKind copies its input to a top-left origin target with alpha 1.
type DisplayKind struct{ base }

// NewDisplay returns the display kind.
func NewDisplay() *DisplayKind {
	return &DisplayKind{base{name: "display", shader: "display"}}
}

func (*DisplayKind) Prepare(res *texture.Manager, in *gpu.Texture, _ *Call) {
	res.SetFilterMode(in, gputypes.FilterModeLinear)
}

func (*DisplayKind) Shader(Macros) gpu.Shader {
	return func(*gpu.Uniforms) gpu.Kernel {
		return func(f *gpu.Fragment) gpu.Vec4 {
			return f.Sample(0, gpu.Vec2{X: f.UV.X, Y: 1 - f.UV.Y}).RGB()
		}
	}
}

func (*DisplayKind) BindUniforms(*gpu.Program, *Call) {}
