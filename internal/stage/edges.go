package stage

import (
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/lessdetail/internal/gpu"
	"github.com/gogpu/lessdetail/internal/texture"
)

// BilateralKind is the orientation-aligned bilateral filter. Each of
// Call.Iterations iterations smooths across the flow (step 0) and then
// along it (step 1). The flow map is the first auxiliary texture.
type BilateralKind struct{ base }

// NewBilateral returns the bilateral kind. The pipeline keeps one pass per
// consumer so their outputs do not share a target.
func NewBilateral() *BilateralKind {
	return &BilateralKind{base{
		name:     "bilateral",
		shader:   "bf",
		uniforms: []string{"imgSize", "sigmaD", "sigmaR", "passIndex"},
	}}
}

func (*BilateralKind) AuxInputs() int { return 1 }

func (*BilateralKind) DeriveMacros(c *Call) Macros {
	return Macros{HalfWidth: int(math.Ceil(2 * c.Constants.BFSigmaD))}
}

func (*BilateralKind) Bypass(c *Call, m Macros) bool {
	return c.Iterations <= 0 || m.HalfWidth <= 0
}

func (*BilateralKind) Prepare(res *texture.Manager, in *gpu.Texture, _ *Call) {
	res.SetFilterMode(in, gputypes.FilterModeLinear)
}

func (*BilateralKind) Shader(m Macros) gpu.Shader {
	halfWidth := float32(m.HalfWidth)
	return func(u *gpu.Uniforms) gpu.Kernel {
		sigmaD, sigmaR := u.Float("sigmaD"), u.Float("sigmaR")
		twoSigmaD2 := 2 * sigmaD * sigmaD
		twoSigmaR2 := 2 * sigmaR * sigmaR
		across := u.Int("passIndex") == 0
		px := texelStep(u)

		return func(f *gpu.Fragment) gpu.Vec4 {
			t := decodeFlow(f.Sample(1, f.UV))
			dir := t
			if across {
				dir = gpu.Vec2{X: t.Y, Y: -t.X}
			}
			ds := stepLength(dir)
			dir = gpu.Vec2{X: dir.X * px.X, Y: dir.Y * px.Y}

			center := f.Sample(0, f.UV)
			sum := center
			norm := float32(1)
			for d := ds; d <= halfWidth; d += ds {
				off := dir.Scale(d)
				c0 := f.Sample(0, f.UV.Add(off))
				c1 := f.Sample(0, f.UV.Sub(off))
				e0 := length3(c0.Sub(center))
				e1 := length3(c1.Sub(center))

				kd := exp32(-d * d / twoSigmaD2)
				k0 := kd * exp32(-e0*e0/twoSigmaR2)
				k1 := kd * exp32(-e1*e1/twoSigmaR2)

				norm += k0 + k1
				sum = sum.Add(c0.Scale(k0)).Add(c1.Scale(k1))
			}
			return sum.Scale(1 / norm).RGB()
		}
	}
}

func (*BilateralKind) BindUniforms(p *gpu.Program, c *Call) {
	bindImgSize(p, c)
	p.SetFloat("sigmaD", float32(c.scale(c.Constants.BFSigmaD)))
	p.SetFloat("sigmaR", float32(c.Constants.BFSigmaR/100))
	p.SetInt("passIndex", c.Step)
}

// Execute ping-pongs between two scratch textures. The last iteration
// writes out.
func (*BilateralKind) Execute(r *Runner, in, out *gpu.Texture, c *Call) error {
	tmp, err := r.Scratch("tmp")
	if err != nil {
		return err
	}
	dst, err := r.Scratch("dst")
	if err != nil {
		return err
	}
	r.SetFilter(tmp, gputypes.FilterModeLinear)
	r.SetFilter(dst, gputypes.FilterModeLinear)

	for i := range c.Iterations {
		src := dst
		if i == 0 {
			src = in
		}
		c.Step = 0
		if err := r.Draw(src, tmp); err != nil {
			return err
		}

		target := dst
		if i == c.Iterations-1 {
			target = out
		}
		c.Step = 1
		if err := r.Draw(tmp, target); err != nil {
			return err
		}
	}
	return nil
}

// DoGKind is the flow-guided difference of Gaussians across the flow
// (fdog0). The flow map is the first auxiliary texture.
type DoGKind struct{ base }

// NewDoG returns the first FDoG kind.
func NewDoG() *DoGKind {
	return &DoGKind{base{
		name:     "fdog0",
		shader:   "fdog0",
		uniforms: []string{"imgSize", "sigmaE", "sigmaR", "tau"},
	}}
}

func (*DoGKind) AuxInputs() int { return 1 }

func (*DoGKind) DeriveMacros(c *Call) Macros {
	return Macros{HalfWidth: int(math.Ceil(2 * c.Constants.DoGSigmaR))}
}

func (*DoGKind) Bypass(_ *Call, m Macros) bool { return m.HalfWidth <= 0 }

func (*DoGKind) Prepare(res *texture.Manager, in *gpu.Texture, c *Call) {
	res.SetFilterMode(in, gputypes.FilterModeLinear)
	res.SetFilterMode(c.Aux[0], gputypes.FilterModeNearest)
}

func (*DoGKind) Shader(m Macros) gpu.Shader {
	halfWidth := m.HalfWidth
	return func(u *gpu.Uniforms) gpu.Kernel {
		sigmaE, sigmaR, tau := u.Float("sigmaE"), u.Float("sigmaR"), u.Float("tau")
		twoSigmaE2 := 2 * sigmaE * sigmaE
		twoSigmaR2 := 2 * sigmaR * sigmaR
		px := texelStep(u)

		return func(f *gpu.Fragment) gpu.Vec4 {
			t := decodeFlow(f.Sample(1, f.UV))
			n := gpu.Vec2{X: t.Y, Y: -t.X}
			ds := stepLength(n)
			n = gpu.Vec2{X: n.X * px.X, Y: n.Y * px.Y}

			l := f.Sample(0, f.UV)[0]
			sumE, sumR := l, l
			normE, normR := float32(1), float32(1)
			for i := range halfWidth {
				d := float32(i) * ds
				ke := exp32(-d * d / twoSigmaE2)
				kr := exp32(-d * d / twoSigmaR2)
				normE += 2 * ke
				normR += 2 * kr

				off := n.Scale(d)
				l0 := f.Sample(0, f.UV.Sub(off))[0]
				l1 := f.Sample(0, f.UV.Add(off))[0]
				sumE += ke * (l0 + l1)
				sumR += kr * (l0 + l1)
			}
			diff := 0.5 + 100*(sumE/normE-tau*sumR/normR)
			return gpu.Vec4{diff, diff, diff, 1}
		}
	}
}

func (*DoGKind) BindUniforms(p *gpu.Program, c *Call) {
	bindImgSize(p, c)
	p.SetFloat("sigmaE", float32(c.Constants.DoGSigmaE))
	p.SetFloat("sigmaR", float32(c.Constants.DoGSigmaR))
	p.SetFloat("tau", float32(c.Constants.DoGTau))
}

// FlowDoGKind smooths the DoG response along the flow and applies the soft
// threshold (fdog1). The flow map is the first auxiliary texture.
type FlowDoGKind struct{ base }

// NewFlowDoG returns the second FDoG kind.
func NewFlowDoG() *FlowDoGKind {
	return &FlowDoGKind{base{
		name:     "fdog1",
		shader:   "fdog1",
		uniforms: []string{"imgSize", "sigmaM", "phi", "epsilon"},
	}}
}

func (*FlowDoGKind) AuxInputs() int { return 1 }

func (*FlowDoGKind) DeriveMacros(c *Call) Macros {
	return Macros{HalfWidth: int(math.Ceil(2 * c.Constants.DoGSigmaM))}
}

func (*FlowDoGKind) Bypass(_ *Call, m Macros) bool { return m.HalfWidth <= 0 }

// Threshold maps a DoG response centred on zero to an edge value in
// [0, 1], where 0 is a strong edge.
func Threshold(h, phi, epsilon float32) float32 {
	if h > epsilon {
		return 1
	}
	return 1 + tanh32(phi*(h-epsilon))
}

func (*FlowDoGKind) Shader(m Macros) gpu.Shader {
	halfWidth := m.HalfWidth
	return func(u *gpu.Uniforms) gpu.Kernel {
		sigmaM, phi, epsilon := u.Float("sigmaM"), u.Float("phi"), u.Float("epsilon")
		twoSigmaM2 := 2 * sigmaM * sigmaM
		px := texelStep(u)

		return func(f *gpu.Fragment) gpu.Vec4 {
			tangent := func(uv gpu.Vec2) gpu.Vec2 { return decodeFlow(f.Sample(1, uv)) }

			h := f.Sample(0, f.UV)[0]
			w := float32(1)
			v0 := tangent(f.UV)
			v1 := v0.Scale(-1)
			p0, p1 := f.UV, f.UV

			for i := 1; i < halfWidth; i++ {
				r := float32(i)
				k := exp32(-r * r / twoSigmaM2)

				p0 = p0.Add(gpu.Vec2{X: v0.X * px.X, Y: v0.Y * px.Y})
				p1 = p1.Add(gpu.Vec2{X: v1.X * px.X, Y: v1.Y * px.Y})
				h += k * (f.Sample(0, p0)[0] + f.Sample(0, p1)[0])
				w += 2 * k

				if n0 := tangent(p0); n0.Dot(v0) < 0 {
					v0 = n0.Scale(-1)
				} else {
					v0 = n0
				}
				if n1 := tangent(p1); n1.Dot(v1) < 0 {
					v1 = n1.Scale(-1)
				} else {
					v1 = n1
				}
			}

			e := Threshold(h/w-0.5, phi, epsilon)
			return gpu.Vec4{e, e, e, 1}
		}
	}
}

func (*FlowDoGKind) BindUniforms(p *gpu.Program, c *Call) {
	bindImgSize(p, c)
	p.SetFloat("sigmaM", float32(c.Constants.DoGSigmaM))
	p.SetFloat("phi", float32(c.Constants.DoGPhi))
	p.SetFloat("epsilon", float32(c.Constants.DoGEpsilon))
}
