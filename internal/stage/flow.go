package stage

import (
	"math"

	"github.com/gogpu/lessdetail/internal/gpu"
)

func imgSize(c *Call) (float32, float32) {
	return float32(c.Size.X), float32(c.Size.Y)
}

func bindImgSize(p *gpu.Program, c *Call) {
	w, h := imgSize(c)
	p.SetVec2("imgSize", w, h)
}

// texelStep returns the size of one texel in texture coordinates.
func texelStep(u *gpu.Uniforms) gpu.Vec2 {
	size := u.Vec2("imgSize")
	if size.X <= 0 || size.Y <= 0 {
		return gpu.Vec2{}
	}
	return gpu.Vec2{X: 1 / size.X, Y: 1 / size.Y}
}

// SSTKind computes the structure tensor of the input from Sobel
// derivatives and stores it encoded to [0, 1].
type SSTKind struct{ base }

// NewSST returns the structure tensor kind.
func NewSST() *SSTKind {
	return &SSTKind{base{name: "sst", shader: "sst", uniforms: []string{"imgSize"}}}
}

func (*SSTKind) Shader(Macros) gpu.Shader {
	return func(u *gpu.Uniforms) gpu.Kernel {
		d := texelStep(u)
		return func(f *gpu.Fragment) gpu.Vec4 {
			tap := func(dx, dy float32) gpu.Vec4 {
				return f.Sample(0, gpu.Vec2{X: f.UV.X + dx*d.X, Y: f.UV.Y + dy*d.Y})
			}
			gx := tap(1, -1).Add(tap(1, 0).Scale(2)).Add(tap(1, 1)).
				Sub(tap(-1, -1)).Sub(tap(-1, 0).Scale(2)).Sub(tap(-1, 1)).Scale(0.25)
			gy := tap(-1, 1).Add(tap(0, 1).Scale(2)).Add(tap(1, 1)).
				Sub(tap(-1, -1)).Sub(tap(0, -1).Scale(2)).Sub(tap(1, -1)).Scale(0.25)
			return EncodeTensor(gx.Dot3(gx)/3, gy.Dot3(gy)/3, gx.Dot3(gy)/3)
		}
	}
}

func (*SSTKind) BindUniforms(p *gpu.Program, c *Call) { bindImgSize(p, c) }

// EncodeTensor stores the tensor components (E, G, F) as 0.5+0.5*sign*sqrt.
func EncodeTensor(e, g, f float32) gpu.Vec4 {
	enc := func(v float32) float32 { return 0.5 + 0.5*sign32(v)*sqrt32(abs32(v)) }
	return gpu.Vec4{enc(e), enc(g), enc(f), 1}
}

// DecodeTensor inverts EncodeTensor.
func DecodeTensor(t gpu.Vec4) (e, g, f float32) {
	dec := func(v float32) float32 {
		v = (v - 0.5) * 2
		return sign32(v) * v * v
	}
	return dec(t[0]), dec(t[1]), dec(t[2])
}

// GaussKind is a separable Gaussian blur of the structure tensor: one draw
// along x into a scratch texture, one along y into the output.
type GaussKind struct{ base }

// NewGauss returns the separable Gaussian kind.
func NewGauss() *GaussKind {
	return &GaussKind{base{name: "gauss", shader: "gauss1d", uniforms: []string{"imgSize", "dir", "sigma"}}}
}

func (*GaussKind) DeriveMacros(c *Call) Macros {
	return Macros{HalfWidth: int(math.Ceil(2 * c.scale(c.Constants.SSTSigma)))}
}

func (*GaussKind) Bypass(c *Call, m Macros) bool {
	return math.Ceil(2*c.Constants.SSTSigma) <= 0 || m.HalfWidth <= 0
}

func (*GaussKind) Shader(m Macros) gpu.Shader {
	halfWidth := m.HalfWidth
	return func(u *gpu.Uniforms) gpu.Kernel {
		sigma := u.Float("sigma")
		twoSigma2 := 2 * sigma * sigma
		d := texelStep(u)
		dir := u.Vec2("dir")
		stepUV := gpu.Vec2{X: dir.X * d.X, Y: dir.Y * d.Y}

		weights := make([]float32, halfWidth+1)
		for i := 1; i <= halfWidth; i++ {
			fi := float32(i)
			weights[i] = exp32(-fi * fi / twoSigma2)
		}
		return func(f *gpu.Fragment) gpu.Vec4 {
			sum := f.Sample(0, f.UV)
			norm := float32(1)
			for i := 1; i <= halfWidth; i++ {
				k := weights[i]
				off := stepUV.Scale(float32(i))
				norm += 2 * k
				sum = sum.Add(f.Sample(0, f.UV.Sub(off)).Add(f.Sample(0, f.UV.Add(off))).Scale(k))
			}
			return sum.Scale(1 / norm).RGB()
		}
	}
}

func (*GaussKind) BindUniforms(p *gpu.Program, c *Call) {
	bindImgSize(p, c)
	p.SetVec2("dir", c.Dir.X, c.Dir.Y)
	p.SetFloat("sigma", float32(c.scale(c.Constants.SSTSigma)))
}

func (*GaussKind) Execute(r *Runner, in, out *gpu.Texture, c *Call) error {
	tmp, err := r.Scratch("tmp")
	if err != nil {
		return err
	}
	c.Dir = gpu.Vec2{X: 1}
	if err := r.Draw(in, tmp); err != nil {
		return err
	}
	c.Dir = gpu.Vec2{Y: 1}
	return r.Draw(tmp, out)
}

// Gauss3x3Kind is a fixed 3x3 binomial blur.
type Gauss3x3Kind struct{ base }

// NewGauss3x3 returns the 3x3 blur kind.
func NewGauss3x3() *Gauss3x3Kind {
	return &Gauss3x3Kind{base{name: "gauss3x3", shader: "gauss3x3", uniforms: []string{"imgSize"}}}
}

var gauss3x3Weights = [3][3]float32{
	{1, 4, 1},
	{4, 16, 4},
	{1, 4, 1},
}

func (*Gauss3x3Kind) Shader(Macros) gpu.Shader {
	return func(u *gpu.Uniforms) gpu.Kernel {
		d := texelStep(u)
		return func(f *gpu.Fragment) gpu.Vec4 {
			var sum gpu.Vec4
			for j := -1; j <= 1; j++ {
				for i := -1; i <= 1; i++ {
					uv := gpu.Vec2{X: f.UV.X + float32(i)*d.X, Y: f.UV.Y + float32(j)*d.Y}
					sum = sum.Add(f.Sample(0, uv).Scale(gauss3x3Weights[j+1][i+1]))
				}
			}
			return sum.Scale(1.0 / 36).RGB()
		}
	}
}

func (*Gauss3x3Kind) BindUniforms(p *gpu.Program, c *Call) { bindImgSize(p, c) }

// TFMKind derives the tangent flow map from the smoothed structure tensor.
type TFMKind struct{ base }

// NewTFM returns the tangent flow map kind.
func NewTFM() *TFMKind {
	return &TFMKind{base{name: "tfm", shader: "tfm"}}
}

// Tangent returns the encoded minor eigenvector of an encoded tensor texel.
// Isotropic texels map to (0, 1).
func Tangent(st gpu.Vec4) gpu.Vec4 {
	e, g, f := DecodeTensor(st)
	lambda1 := 0.5 * (g + e + sqrt32(max(g*g-2*e*g+e*e+4*f*f, 0)))
	v := gpu.Vec2{X: e - lambda1, Y: f}
	if l := v.Len(); l > 0 {
		return gpu.Vec4{v.X/l*0.5 + 0.5, v.Y/l*0.5 + 0.5, 0, 1}
	}
	return gpu.Vec4{0, 1, 0, 1}
}

func (*TFMKind) Shader(Macros) gpu.Shader {
	return func(*gpu.Uniforms) gpu.Kernel {
		return func(f *gpu.Fragment) gpu.Vec4 {
			return Tangent(f.Sample(0, f.UV))
		}
	}
}

func (*TFMKind) BindUniforms(*gpu.Program, *Call) {}
