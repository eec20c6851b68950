package gpu

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/lessdetail/internal/cache"
	"github.com/gogpu/lessdetail/internal/parallel"
)

// Device errors.
var (
	// ErrDeviceLost is returned by every operation on a closed device.
	ErrDeviceLost = errors.New("gpu: device lost")

	// ErrNoProgram is returned when drawing without a bound program.
	ErrNoProgram = errors.New("gpu: no program bound")

	// ErrIncompleteFramebuffer is returned when the bound framebuffer has no attachment.
	ErrIncompleteFramebuffer = errors.New("gpu: framebuffer has no colour attachment")

	// ErrFeedbackLoop is returned when the render target is also bound for sampling.
	ErrFeedbackLoop = errors.New("gpu: render target is bound as a texture")

	// ErrInvalidUnit is returned for texture units outside [0, MaxTextureUnits).
	ErrInvalidUnit = errors.New("gpu: texture unit out of range")
)

// DefaultMaxTextureSize is the largest texture edge a device accepts by default.
const DefaultMaxTextureSize = 8192

// DeviceConfig configures a Device.
type DeviceConfig struct {
	// MaxTextureSize bounds both texture edges. 0 selects DefaultMaxTextureSize.
	MaxTextureSize int

	// Workers is the number of draw goroutines. 0 selects GOMAXPROCS.
	Workers int

	// Compiler validates shader source. Nil selects NagaCompiler.
	Compiler Compiler

	// ModuleCacheSize bounds the validated module cache. 0 selects 64.
	ModuleCacheSize int
}

// Framebuffer binds a texture as the colour target of draws.
type Framebuffer struct {
	label      string
	attachment *Texture
}

// Attach sets the colour attachment. Nil detaches.
func (fb *Framebuffer) Attach(t *Texture) { fb.attachment = t }

// Attachment returns the current colour attachment.
func (fb *Framebuffer) Attachment() *Texture { return fb.attachment }

// Label returns the debug label.
func (fb *Framebuffer) Label() string { return fb.label }

// BoundState is a snapshot of the device binding points.
type BoundState struct {
	Program     *Program
	Framebuffer *Framebuffer
	Textures    [MaxTextureUnits]*Texture
}

// IsClear reports whether nothing is bound.
func (s BoundState) IsClear() bool {
	return s == BoundState{}
}

// Stats reports device resource counters.
type Stats struct {
	LiveTextures int
	Allocations  uint64
	Releases     uint64
	Uploads      uint64
	Draws        uint64
	Compiles     uint64
	BytesInUse   uint64
	Modules      cache.Stats
}

// Device is a headless render device. Binding calls and draws are meant to
// be issued from one goroutine at a time; the device serialises them
// internally so misuse cannot corrupt its tables.
type Device struct {
	mu       sync.Mutex
	maxSize  int
	compiler Compiler
	modules  *cache.Cache[string, *Module]
	pool     *parallel.WorkerPool

	textures map[uint64]*Texture
	nextID   uint64
	canvas   *Texture
	state    BoundState
	stats    Stats
	lost     bool
}

// NewDevice creates a device. It fails when the configuration cannot describe
// a usable context.
func NewDevice(cfg DeviceConfig) (*Device, error) {
	if cfg.MaxTextureSize < 0 || cfg.Workers < 0 || cfg.ModuleCacheSize < 0 {
		return nil, fmt.Errorf("gpu: invalid device config: %+v", cfg)
	}
	if cfg.MaxTextureSize == 0 {
		cfg.MaxTextureSize = DefaultMaxTextureSize
	}
	if cfg.Compiler == nil {
		cfg.Compiler = NagaCompiler
	}
	if cfg.ModuleCacheSize == 0 {
		cfg.ModuleCacheSize = 64
	}

	d := &Device{
		maxSize:  cfg.MaxTextureSize,
		compiler: cfg.Compiler,
		modules:  cache.New[string, *Module](cfg.ModuleCacheSize),
		pool:     parallel.NewWorkerPool(cfg.Workers),
		textures: make(map[uint64]*Texture),
	}

	canvas, err := d.CreateTexture(TextureConfig{Width: 1, Height: 1, Label: "canvas"})
	if err != nil {
		d.pool.Close()
		return nil, err
	}
	d.canvas = canvas

	slogger().Info("gpu: device created",
		slog.Int("max_texture_size", d.maxSize),
		slog.Int("workers", d.pool.Workers()))
	return d, nil
}

// MaxTextureSize returns the largest texture edge the device accepts.
func (d *Device) MaxTextureSize() int { return d.maxSize }

// CreateTexture allocates a texture. Texels start as transparent black.
func (d *Device) CreateTexture(cfg TextureConfig) (*Texture, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > d.maxSize || cfg.Height > d.maxSize {
		return nil, fmt.Errorf("%w: %dx%d (max %d)", ErrInvalidDimensions, cfg.Width, cfg.Height, d.maxSize)
	}
	if cfg.Usage == 0 {
		cfg.Usage = DefaultTextureUsage
	}
	if cfg.Filter != gputypes.FilterModeLinear {
		cfg.Filter = gputypes.FilterModeNearest
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, ErrDeviceLost
	}

	d.nextID++
	t := &Texture{
		id:     d.nextID,
		label:  cfg.Label,
		width:  cfg.Width,
		height: cfg.Height,
		format: cfg.Format,
		usage:  cfg.Usage,
		filter: cfg.Filter,
		pix:    make([]float32, cfg.Width*cfg.Height*4),
		device: d,
	}
	d.textures[t.id] = t
	d.stats.Allocations++
	d.stats.BytesInUse += t.SizeBytes()
	return t, nil
}

// forget drops a released texture from the device tables.
func (d *Device) forget(t *Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.textures[t.id]; !ok {
		return
	}
	delete(d.textures, t.id)
	d.stats.Releases++
	d.stats.BytesInUse -= t.SizeBytes()
	for i, bound := range d.state.Textures {
		if bound == t {
			d.state.Textures[i] = nil
		}
	}
}

func (d *Device) countUpload() {
	d.mu.Lock()
	d.stats.Uploads++
	d.mu.Unlock()
}

// CreateFramebuffer creates an empty framebuffer.
func (d *Device) CreateFramebuffer(label string) *Framebuffer {
	return &Framebuffer{label: label}
}

// Canvas returns the default framebuffer's colour texture.
func (d *Device) Canvas() *Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.canvas
}

// ResizeCanvas resizes the default framebuffer. It reports whether a resize
// happened; equal dimensions are a no-op because reallocation is costly.
func (d *Device) ResizeCanvas(width, height int) (bool, error) {
	current := d.Canvas()
	if current != nil && current.width == width && current.height == height {
		return false, nil
	}

	next, err := d.CreateTexture(TextureConfig{Width: width, Height: height, Label: "canvas"})
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	d.canvas = next
	d.mu.Unlock()
	if current != nil {
		current.Release()
	}

	slogger().Debug("gpu: canvas resized", slog.Int("width", width), slog.Int("height", height))
	return true, nil
}

// CompileProgram validates desc.Source and links a program. Validated
// modules are cached by source text, so switching back to an earlier macro
// set does not recompile.
func (d *Device) CompileProgram(desc ProgramDesc) (*Program, error) {
	d.mu.Lock()
	lost := d.lost
	d.mu.Unlock()
	if lost {
		return nil, ErrDeviceLost
	}

	m, ok := d.modules.Get(desc.Source)
	if !ok {
		spirv, err := d.compiler(desc.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrShaderCompile, desc.Name, err)
		}
		m = &Module{Name: desc.Name, Source: desc.Source, SPIRV: spirvWords(spirv)}
		d.modules.Set(desc.Source, m)

		d.mu.Lock()
		d.stats.Compiles++
		d.mu.Unlock()
		slogger().Debug("gpu: shader compiled", slog.String("program", desc.Name), slog.Int("spirv_words", len(m.SPIRV)))
	}
	return newProgram(desc, m)
}

// UseProgram binds p. Nil unbinds.
func (d *Device) UseProgram(p *Program) {
	d.mu.Lock()
	d.state.Program = p
	d.mu.Unlock()
}

// BindFramebuffer binds fb as the draw target. Nil selects the canvas.
func (d *Device) BindFramebuffer(fb *Framebuffer) {
	d.mu.Lock()
	d.state.Framebuffer = fb
	d.mu.Unlock()
}

// BindTexture binds t to a texture unit. Nil unbinds the unit.
func (d *Device) BindTexture(unit int, t *Texture) error {
	if unit < 0 || unit >= MaxTextureUnits {
		return fmt.Errorf("%w: %d", ErrInvalidUnit, unit)
	}
	if t != nil && t.IsReleased() {
		return ErrTextureReleased
	}
	d.mu.Lock()
	d.state.Textures[unit] = t
	d.mu.Unlock()
	return nil
}

// Unbind resets every binding point.
func (d *Device) Unbind() {
	d.mu.Lock()
	d.state = BoundState{}
	d.mu.Unlock()
}

// State returns a snapshot of the current bindings.
func (d *Device) State() BoundState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Clear fills the current draw target with c.
func (d *Device) Clear(c Vec4) error {
	target, _, err := d.drawTarget()
	if err != nil {
		return err
	}
	target.Fill(c)
	return nil
}

// drawTarget resolves the colour target of the bound framebuffer.
func (d *Device) drawTarget() (*Texture, BoundState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return nil, BoundState{}, ErrDeviceLost
	}
	target := d.canvas
	if d.state.Framebuffer != nil {
		target = d.state.Framebuffer.attachment
	}
	if target == nil {
		return nil, BoundState{}, ErrIncompleteFramebuffer
	}
	if target.IsReleased() {
		return nil, BoundState{}, ErrTextureReleased
	}
	return target, d.state, nil
}

// Draw runs the bound program over every texel of the bound target.
func (d *Device) Draw() error {
	target, state, err := d.drawTarget()
	if err != nil {
		return err
	}
	if state.Program == nil {
		return ErrNoProgram
	}
	for _, t := range state.Textures {
		if t == nil {
			continue
		}
		if t == target {
			return fmt.Errorf("%w: %s", ErrFeedbackLoop, target.label)
		}
		if t.IsReleased() {
			return ErrTextureReleased
		}
	}

	kernel := state.Program.shader(&state.Program.uniforms)
	w, h := target.width, target.height
	invW, invH := 1/float32(w), 1/float32(h)

	d.pool.ForRows(h, func(y0, y1 int) {
		f := Fragment{units: state.Textures}
		for y := y0; y < y1; y++ {
			f.Y = y
			f.UV.Y = (float32(y) + 0.5) * invH
			for x := range w {
				f.X = x
				f.UV.X = (float32(x) + 0.5) * invW
				target.store(x, y, kernel(&f))
			}
		}
	})

	d.mu.Lock()
	d.stats.Draws++
	d.mu.Unlock()

	slogger().Debug("gpu: draw",
		slog.String("program", state.Program.name),
		slog.String("target", target.label))
	return nil
}

// ReadPixels copies t into an image. Texel row 0 becomes the last image row.
func (d *Device) ReadPixels(t *Texture) (*image.NRGBA, error) {
	if t == nil || t.IsReleased() {
		return nil, ErrTextureReleased
	}
	img := image.NewNRGBA(image.Rect(0, 0, t.width, t.height))
	for y := range t.height {
		src := t.pix[(t.height-1-y)*t.width*4 : (t.height-y)*t.width*4]
		dst := img.Pix[y*img.Stride : y*img.Stride+t.width*4]
		for i, c := range src {
			dst[i] = uint8(math.Round(float64(min(max(c, 0), 1)) * 255))
		}
	}
	return img, nil
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	s.LiveTextures = len(d.textures)
	s.Modules = d.modules.Stats()
	return s
}

// Close releases every texture and stops the draw workers. Operations on a
// closed device return ErrDeviceLost. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.lost {
		d.mu.Unlock()
		return nil
	}
	d.lost = true
	d.state = BoundState{}
	live := make([]*Texture, 0, len(d.textures))
	for _, t := range d.textures {
		live = append(live, t)
	}
	d.mu.Unlock()

	for _, t := range live {
		t.Release()
	}
	d.modules.Clear()
	d.pool.Close()
	slogger().Info("gpu: device closed")
	return nil
}
