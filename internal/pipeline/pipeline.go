// Package pipeline chains the render passes into the stylized and
// passthrough graphs.
package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gogpu/lessdetail/internal/gpu"
	"github.com/gogpu/lessdetail/internal/params"
	"github.com/gogpu/lessdetail/internal/stage"
	"github.com/gogpu/lessdetail/internal/texture"
)

// ErrNoInput is returned when a run is started without a source texture.
var ErrNoInput = errors.New("pipeline: no input texture")

// Pipeline owns one pass per node of the render graph. The 3x3 blur is
// shared because its two uses never overlap; the bilateral filter is not,
// since both of its outputs are live at the same time.
//
// A Pipeline is not safe for concurrent use.
type Pipeline struct {
	dev *gpu.Device

	rgb2lab    *stage.Pass
	lab2rgb    *stage.Pass
	sst        *stage.Pass
	gauss      *stage.Pass
	tfm        *stage.Pass
	bilateralE *stage.Pass
	bilateralA *stage.Pass
	fdog0      *stage.Pass
	fdog1      *stage.Pass
	quantize   *stage.Pass
	gauss3x3   *stage.Pass
	mix        *stage.Pass
	display    *stage.Pass
}

// New creates the passes. Programs are built lazily on first use.
func New(dev *gpu.Device, res *texture.Manager) *Pipeline {
	pass := func(k stage.Kind) *stage.Pass { return stage.NewPass(k, dev, res) }
	return &Pipeline{
		dev:        dev,
		rgb2lab:    pass(stage.NewRGBToLab()),
		lab2rgb:    pass(stage.NewLabToRGB()),
		sst:        pass(stage.NewSST()),
		gauss:      pass(stage.NewGauss()),
		tfm:        pass(stage.NewTFM()),
		bilateralE: pass(stage.NewBilateral()),
		bilateralA: pass(stage.NewBilateral()),
		fdog0:      pass(stage.NewDoG()),
		fdog1:      pass(stage.NewFlowDoG()),
		quantize:   pass(stage.NewQuantize()),
		gauss3x3:   pass(stage.NewGauss3x3()),
		mix:        pass(stage.NewMix()),
		display:    pass(stage.NewDisplay()),
	}
}

// Passes returns every pass in graph order.
func (p *Pipeline) Passes() []*stage.Pass {
	return []*stage.Pass{
		p.rgb2lab, p.sst, p.gauss, p.tfm, p.bilateralE, p.bilateralA,
		p.fdog0, p.fdog1, p.quantize, p.gauss3x3, p.lab2rgb, p.mix, p.display,
	}
}

// RunStylized runs the full abstraction graph on src and draws the result
// to the device canvas, which it returns.
func (p *Pipeline) RunStylized(src *gpu.Texture, c params.Constants) (*gpu.Texture, error) {
	if src == nil {
		return nil, ErrNoInput
	}
	start := time.Now()
	call := func(aux ...*gpu.Texture) *stage.Call {
		return &stage.Call{Constants: c, Aux: aux}
	}

	lab := p.rgb2lab.Render(src, call())
	st := p.sst.Render(src, call())
	st = p.gauss.Render(st, call())
	flow := p.tfm.Render(st, call())

	ce := call(flow)
	ce.Iterations = c.BFNE
	bfe := p.bilateralE.Render(lab, ce)

	ca := call(flow)
	ca.Iterations = c.BFNA
	bfa := p.bilateralA.Render(lab, ca)

	edges := p.fdog0.Render(bfe, call(flow))
	edges = p.fdog1.Render(edges, call(flow))

	cq := p.quantize.Render(bfa, call())
	cq = p.gauss3x3.Render(cq, call())
	cq = p.lab2rgb.Render(cq, call())

	out := p.mix.Render(cq, call(edges))
	out = p.gauss3x3.Render(out, call())

	canvas := p.display.RenderInto(out, call(), nil)

	gpu.Logger().Debug("pipeline: stylized run",
		slog.Int("size", src.Width()),
		slog.Int("bf_n_e", c.BFNE),
		slog.Int("bf_n_a", c.BFNA),
		slog.Float64("tau", c.DoGTau),
		slog.Duration("elapsed", time.Since(start)))
	return canvas, nil
}

// RunPassthrough draws src to the device canvas unchanged.
func (p *Pipeline) RunPassthrough(src *gpu.Texture) (*gpu.Texture, error) {
	if src == nil {
		return nil, ErrNoInput
	}
	return p.display.RenderInto(src, &stage.Call{}, nil), nil
}

// Release frees every pass target.
func (p *Pipeline) Release() {
	for _, s := range p.Passes() {
		s.Release()
	}
}
