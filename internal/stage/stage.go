// Package stage implements the render passes of the stylization pipeline.
//
// Every pass is a [Kind] (what to draw: shader text, kernel, uniforms,
// bypass rule) run by the generic [Pass] (how to draw: program lifecycle,
// target allocation, binding and unbinding). Kinds that need more than one
// draw per render implement [Multipass].
//
// A pass never fails its caller. A nil input, a missing auxiliary texture,
// a bypass condition or a shader that does not compile all return the input
// texture unchanged, so the pipeline degrades to fewer effects instead of a
// blank surface.
package stage

import (
	"image"

	"github.com/gogpu/lessdetail/internal/gpu"
	"github.com/gogpu/lessdetail/internal/params"
	"github.com/gogpu/lessdetail/internal/texture"
)

// Macros are the compile-time values substituted into shader text.
// A program is rebuilt only when the value differs from the last one.
type Macros struct {
	HalfWidth int
}

// Call carries the per-render arguments of a pass.
type Call struct {
	// Constants is the constant group for this render.
	Constants params.Constants

	// Aux are the textures bound at units 1 and up.
	Aux []*gpu.Texture

	// Iterations is the repeat count of iterative kinds.
	Iterations int

	// Size is the input texture size. It is set by the pass.
	Size image.Point

	// Dir is the sample axis of separable kinds. It is set per draw.
	Dir gpu.Vec2

	// Step selects the sub-pass of multi-draw kinds. It is set per draw.
	Step int
}

// scale adapts a sigma tuned for the default resolution to the input size.
func (c *Call) scale(v float64) float64 {
	return c.Constants.ResolutionScale(v, max(c.Size.X, c.Size.Y))
}

// Kind describes one shader program.
type Kind interface {
	// Name identifies the program in logs.
	Name() string

	// DeriveMacros returns the macro values for c.
	DeriveMacros(c *Call) Macros

	// Bypass reports whether the pass should return its input untouched.
	Bypass(c *Call, m Macros) bool

	// Source returns the WGSL module text for m.
	Source(m Macros) (string, error)

	// Shader returns the fragment kernel for m.
	Shader(m Macros) gpu.Shader

	// Uniforms lists the uniform names the program declares.
	Uniforms() []string

	// BindUniforms sets the program uniforms for c.
	BindUniforms(p *gpu.Program, c *Call)
}

// Auxiliary is implemented by kinds that sample textures besides their input.
// A render with fewer than AuxInputs non-nil Call.Aux entries is bypassed.
type Auxiliary interface {
	AuxInputs() int
}

// Preparer is implemented by kinds that change sampler state before drawing.
type Preparer interface {
	Prepare(res *texture.Manager, in *gpu.Texture, c *Call)
}

// Multipass is implemented by kinds that issue several draws per render.
// Execute must leave its result in out.
type Multipass interface {
	Execute(r *Runner, in, out *gpu.Texture, c *Call) error
}

// State is the lifecycle state of a Pass.
type State int

const (
	// StateUninitialized means no program has been built yet.
	StateUninitialized State = iota
	// StateCompiled means a program exists for the current macros but has
	// not drawn yet.
	StateCompiled
	// StateReady means the program has drawn at least once.
	StateReady
	// StateDegraded means the program for the current macros failed to
	// compile. Renders return their input until the macros change.
	StateDegraded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCompiled:
		return "compiled"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
