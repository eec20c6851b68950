package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/naga"
)

// ErrShaderCompile is returned when a program's WGSL source fails validation.
var ErrShaderCompile = errors.New("gpu: shader compilation failed")

// MaxTextureUnits is the number of texture units a program can sample.
const MaxTextureUnits = 4

// Fragment is the per-texel input to a [Kernel].
type Fragment struct {
	// X, Y are the target texel indices.
	X, Y int

	// UV is the normalized coordinate of the texel centre.
	UV Vec2

	units [MaxTextureUnits]*Texture
}

// Sample reads the texture bound to unit at uv. Unbound units read as
// opaque black, like an incomplete GL texture.
func (f *Fragment) Sample(unit int, uv Vec2) Vec4 {
	if unit < 0 || unit >= MaxTextureUnits || f.units[unit] == nil {
		return Vec4{0, 0, 0, 1}
	}
	return f.units[unit].Sample(uv)
}

// Kernel computes the colour of one fragment.
type Kernel func(f *Fragment) Vec4

// Shader builds a Kernel from the program's current uniform values. It runs
// once per draw, so kernels can capture uniforms in locals.
type Shader func(u *Uniforms) Kernel

// Uniforms holds the uniform values set on a program.
type Uniforms struct {
	values map[string][4]float32
}

// Float returns a scalar uniform.
func (u *Uniforms) Float(name string) float32 { return u.values[name][0] }

// Int returns an integer uniform.
func (u *Uniforms) Int(name string) int { return int(u.values[name][0]) }

// Vec2 returns a two-component uniform.
func (u *Uniforms) Vec2(name string) Vec2 {
	v := u.values[name]
	return Vec2{v[0], v[1]}
}

// Vec3 returns a three-component uniform with alpha set to 1.
func (u *Uniforms) Vec3(name string) Vec4 {
	v := u.values[name]
	return Vec4{v[0], v[1], v[2], 1}
}

// ProgramDesc describes a program to compile.
type ProgramDesc struct {
	// Name identifies the program in logs and errors.
	Name string

	// Source is the complete WGSL module.
	Source string

	// Shader evaluates the fragment stage.
	Shader Shader

	// Uniforms lists the uniform names the module declares.
	Uniforms []string
}

// Module is a validated shader module.
type Module struct {
	Name   string
	Source string
	SPIRV  []uint32
}

// Compiler validates WGSL source and returns its SPIR-V encoding.
type Compiler func(source string) ([]byte, error)

// NagaCompiler compiles WGSL to SPIR-V with naga.
func NagaCompiler(source string) ([]byte, error) {
	return naga.Compile(source)
}

// spirvWords converts little-endian SPIR-V bytes to 32-bit words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}

// Program is a linked shader program with its uniform state.
type Program struct {
	name     string
	module   *Module
	shader   Shader
	declared []string
	uniforms Uniforms
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// Module returns the validated module the program was built from.
func (p *Program) Module() *Module { return p.module }

// SetFloat sets a scalar uniform.
func (p *Program) SetFloat(name string, v float32) {
	p.set(name, [4]float32{v})
}

// SetInt sets an integer uniform.
func (p *Program) SetInt(name string, v int) {
	p.set(name, [4]float32{float32(v)})
}

// SetVec2 sets a two-component uniform.
func (p *Program) SetVec2(name string, x, y float32) {
	p.set(name, [4]float32{x, y})
}

// SetVec3 sets a three-component uniform.
func (p *Program) SetVec3(name string, x, y, z float32) {
	p.set(name, [4]float32{x, y, z})
}

// set stores a uniform. Names the module does not declare are ignored with a
// warning, matching a missing uniform location.
func (p *Program) set(name string, v [4]float32) {
	if !slices.Contains(p.declared, name) {
		slogger().Warn("gpu: uniform location not found",
			slog.String("program", p.name), slog.String("uniform", name))
		return
	}
	p.uniforms.values[name] = v
}

func newProgram(desc ProgramDesc, m *Module) (*Program, error) {
	if desc.Shader == nil {
		return nil, fmt.Errorf("%w: %s: no fragment shader", ErrShaderCompile, desc.Name)
	}
	return &Program{
		name:     desc.Name,
		module:   m,
		shader:   desc.Shader,
		declared: slices.Clone(desc.Uniforms),
		uniforms: Uniforms{values: make(map[string][4]float32, len(desc.Uniforms))},
	}, nil
}
