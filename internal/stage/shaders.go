package stage

import (
	"embed"
	"fmt"
	"strconv"
	"strings"
)

// Embedded WGSL shader sources. Each fragment module is appended to the
// shared full-screen vertex stage before validation.
//
//go:embed shaders/*.wgsl
var shaderFS embed.FS

const vertexShaderName = "fullscreen"

// halfWidthMacro is the placeholder replaced by Macros.HalfWidth.
const halfWidthMacro = "$halfWidth$"

// loadShader returns the complete module for the named fragment shader with
// macros substituted.
func loadShader(name string, m Macros) (string, error) {
	vs, err := shaderFS.ReadFile("shaders/" + vertexShaderName + ".wgsl")
	if err != nil {
		return "", fmt.Errorf("stage: vertex shader: %w", err)
	}
	fs, err := shaderFS.ReadFile("shaders/" + name + ".wgsl")
	if err != nil {
		return "", fmt.Errorf("stage: fragment shader %q: %w", name, err)
	}

	src := string(fs)
	if strings.Contains(src, halfWidthMacro) {
		if m.HalfWidth <= 0 {
			return "", fmt.Errorf("stage: %s: halfWidth must be positive, got %d", name, m.HalfWidth)
		}
		src = strings.ReplaceAll(src, halfWidthMacro, strconv.Itoa(m.HalfWidth))
	}
	return string(vs) + "\n" + src, nil
}

// base supplies the defaults shared by every kind.
type base struct {
	name     string
	shader   string
	uniforms []string
}

func (b base) Name() string { return b.name }

func (b base) DeriveMacros(*Call) Macros { return Macros{} }

func (b base) Bypass(*Call, Macros) bool { return false }

func (b base) Source(m Macros) (string, error) { return loadShader(b.shader, m) }

func (b base) Uniforms() []string { return b.uniforms }
