package stage

import (
	"image"
	"log/slog"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/lessdetail/internal/gpu"
	"github.com/gogpu/lessdetail/internal/texture"
)

// Pass runs a Kind on a device. It owns the program, a framebuffer and the
// render targets of the kind; input textures are borrowed.
//
// A Pass is not safe for concurrent use.
type Pass struct {
	kind Kind
	dev  *gpu.Device
	res  *texture.Manager
	fb   *gpu.Framebuffer

	program *gpu.Program
	macros  Macros
	state   State

	target     *gpu.Texture
	scratch    map[string]*gpu.Texture
	generation uint64 // resource generation the textures belong to
}

// NewPass returns an uninitialized pass for kind. The program is built on
// first render.
func NewPass(kind Kind, dev *gpu.Device, res *texture.Manager) *Pass {
	return &Pass{
		kind:    kind,
		dev:     dev,
		res:     res,
		fb:      dev.CreateFramebuffer(kind.Name()),
		scratch: make(map[string]*gpu.Texture),
	}
}

// Kind returns the pass kind.
func (p *Pass) Kind() Kind { return p.kind }

// State returns the lifecycle state.
func (p *Pass) State() State { return p.state }

// Macros returns the macros of the last program build attempt.
func (p *Pass) Macros() Macros { return p.macros }

// Target returns the render target of the last render, if any.
func (p *Pass) Target() *gpu.Texture { return p.target }

// Render draws in into the pass's own target and returns it. The input is
// returned unchanged when the pass is bypassed or cannot run.
func (p *Pass) Render(in *gpu.Texture, c *Call) *gpu.Texture {
	return p.run(in, c, nil, false)
}

// RenderInto draws in into dst and returns it. A nil dst selects the device
// canvas.
func (p *Pass) RenderInto(in *gpu.Texture, c *Call, dst *gpu.Texture) *gpu.Texture {
	return p.run(in, c, dst, dst == nil)
}

func (p *Pass) run(in *gpu.Texture, c *Call, dst *gpu.Texture, toCanvas bool) *gpu.Texture {
	log := gpu.Logger()
	if in == nil || in.IsReleased() {
		return in
	}
	if c == nil {
		c = &Call{}
	}
	c.Size = image.Pt(in.Width(), in.Height())

	if a, ok := p.kind.(Auxiliary); ok {
		n := a.AuxInputs()
		if len(c.Aux) < n || slices.Contains(c.Aux[:n], nil) {
			log.Debug("stage: missing auxiliary input", slog.String("stage", p.kind.Name()))
			return in
		}
	}

	m := p.kind.DeriveMacros(c)
	if p.kind.Bypass(c, m) {
		log.Debug("stage: bypassed", slog.String("stage", p.kind.Name()), slog.Int("half_width", m.HalfWidth))
		return in
	}
	if !p.ensureProgram(m) {
		return in
	}
	p.syncGeneration()

	out := dst
	if out == nil && !toCanvas {
		var err error
		if out, err = p.ensureTarget(c.Size); err != nil {
			log.Warn("stage: target allocation failed", slog.String("stage", p.kind.Name()), slog.Any("err", err))
			return in
		}
	}

	if pr, ok := p.kind.(Preparer); ok {
		pr.Prepare(p.res, in, c)
	}

	r := &Runner{pass: p, call: c}
	var err error
	if mp, ok := p.kind.(Multipass); ok {
		err = mp.Execute(r, in, out, c)
	} else {
		err = r.Draw(in, out)
	}
	if err != nil {
		log.Warn("stage: draw failed", slog.String("stage", p.kind.Name()), slog.Any("err", err))
		return in
	}

	p.state = StateReady
	if out == nil {
		return p.dev.Canvas()
	}
	return out
}

// ensureProgram builds the program for m unless it already exists. A failed
// build is not retried until the macros change.
func (p *Pass) ensureProgram(m Macros) bool {
	if m == p.macros {
		switch p.state {
		case StateCompiled, StateReady:
			return true
		case StateDegraded:
			return false
		}
	}

	log := gpu.Logger()
	prev := p.macros
	p.macros = m

	src, err := p.kind.Source(m)
	var prog *gpu.Program
	if err == nil {
		prog, err = p.dev.CompileProgram(gpu.ProgramDesc{
			Name:     p.kind.Name(),
			Source:   src,
			Shader:   p.kind.Shader(m),
			Uniforms: p.kind.Uniforms(),
		})
	}
	if err != nil {
		p.program = nil
		p.state = StateDegraded
		log.Warn("stage: shader compile failed, stage disabled",
			slog.String("stage", p.kind.Name()),
			slog.Int("half_width", m.HalfWidth),
			slog.Any("err", err))
		return false
	}

	if p.state != StateUninitialized {
		log.Debug("stage: program rebuilt",
			slog.String("stage", p.kind.Name()),
			slog.Int("from", prev.HalfWidth),
			slog.Int("to", m.HalfWidth))
	}
	p.program = prog
	p.state = StateCompiled
	return true
}

// syncGeneration drops the pass textures once the working resolution they
// were sized for has been invalidated.
func (p *Pass) syncGeneration() {
	g := p.res.Generation()
	if g == p.generation {
		return
	}
	if p.target != nil {
		gpu.Logger().Debug("stage: targets invalidated",
			slog.String("stage", p.kind.Name()), slog.Uint64("generation", g))
	}
	p.Release()
	p.generation = g
}

// ensureTarget returns the pass target, reallocating it when size changed.
func (p *Pass) ensureTarget(size image.Point) (*gpu.Texture, error) {
	t, err := p.allocate(p.target, size, p.kind.Name())
	if err != nil {
		return nil, err
	}
	p.target = t
	return t, nil
}

func (p *Pass) allocate(cur *gpu.Texture, size image.Point, label string) (*gpu.Texture, error) {
	if cur != nil && !cur.IsReleased() && cur.Width() == size.X && cur.Height() == size.Y {
		return cur, nil
	}
	if cur != nil {
		cur.Release()
	}
	return p.res.AllocateScratch(size.X, size.Y, label)
}

// Release frees the textures the pass owns. The program is kept.
func (p *Pass) Release() {
	if p.target != nil {
		p.target.Release()
		p.target = nil
	}
	for k, t := range p.scratch {
		t.Release()
		delete(p.scratch, k)
	}
}

// Runner issues draws on behalf of a Multipass kind.
type Runner struct {
	pass *Pass
	call *Call
}

// Draw renders src into dst with the pass program. A nil dst selects the
// device canvas. Bindings are reset before Draw returns.
func (r *Runner) Draw(src, dst *gpu.Texture) error {
	p := r.pass
	defer p.dev.Unbind()

	if dst != nil {
		p.fb.Attach(dst)
		p.dev.BindFramebuffer(p.fb)
	} else {
		p.dev.BindFramebuffer(nil)
	}
	p.dev.UseProgram(p.program)

	if err := p.dev.BindTexture(0, src); err != nil {
		return err
	}
	for i, t := range r.call.Aux {
		if i+1 >= gpu.MaxTextureUnits {
			break
		}
		if err := p.dev.BindTexture(i+1, t); err != nil {
			return err
		}
	}

	p.kind.BindUniforms(p.program, r.call)
	return p.dev.Draw()
}

// Scratch returns a pass-owned intermediate texture at the input size.
func (r *Runner) Scratch(label string) (*gpu.Texture, error) {
	p := r.pass
	t, err := p.allocate(p.scratch[label], r.call.Size, p.kind.Name()+"-"+label)
	if err != nil {
		return nil, err
	}
	p.scratch[label] = t
	return t, nil
}

// SetFilter switches the sampling mode of t.
func (r *Runner) SetFilter(t *gpu.Texture, mode gputypes.FilterMode) {
	r.pass.res.SetFilterMode(t, mode)
}
