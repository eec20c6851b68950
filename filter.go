package lessdetail

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"

	"github.com/gogpu/lessdetail/internal/gpu"
	"github.com/gogpu/lessdetail/internal/params"
	"github.com/gogpu/lessdetail/internal/pipeline"
	"github.com/gogpu/lessdetail/internal/texture"
	"github.com/gogpu/lessdetail/surface"
)

var (
	// ErrClosed is returned by every operation on a closed Filter.
	ErrClosed = errors.New("lessdetail: filter closed")

	// ErrNoSurface is returned when a render has no destination.
	ErrNoSurface = errors.New("lessdetail: nil destination surface")
)

// Context selects which parameter set an intensity applies to. Images and
// videos are tuned independently.
type Context int

const (
	// ContextImage is the still image context.
	ContextImage Context = iota
	// ContextVideo is the video context.
	ContextVideo
)

// String returns the context name.
func (c Context) String() string {
	switch c {
	case ContextImage:
		return "image"
	case ContextVideo:
		return "video"
	default:
		return fmt.Sprintf("Context(%d)", int(c))
	}
}

// Source yields pixel data for upload.
type Source = texture.Source

// ImageSource adapts an image.Image to a Source.
func ImageSource(img image.Image) Source { return texture.ImageSource(img) }

// Filter renders the reduced-detail stylization of images and video frames
// into a destination surface.
//
// All render work is serialized: a Filter owns one device and one set of
// passes, so concurrent calls wait for each other.
type Filter struct {
	mu     sync.Mutex
	dev    *gpu.Device
	res    *texture.Manager
	pipe   *pipeline.Pipeline
	stores [2]*params.Store
	loaded LoadedHook
	closed bool
}

// New creates a Filter. It fails when the constant group is invalid or the
// device cannot be created.
func New(opts ...Option) (*Filter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := o.constants
	if o.maxSize != nil {
		c.MaxSize = *o.maxSize
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	dev, err := o.deviceFactory(gpu.DeviceConfig{Workers: o.workers, Compiler: o.compiler})
	if err != nil {
		return nil, fmt.Errorf("lessdetail: create device: %w", err)
	}

	res := texture.NewManager(dev, c.MaxSize)
	f := &Filter{
		dev:    dev,
		res:    res,
		pipe:   pipeline.New(dev, res),
		stores: [2]*params.Store{params.NewStore(c), params.NewStore(c)},
		loaded: o.loaded,
	}

	Logger().Info("lessdetail: filter created", slog.Int("max_size", c.MaxSize), slog.Int("workers", o.workers))
	return f, nil
}

func (f *Filter) store(ctx Context) (*params.Store, error) {
	if ctx != ContextImage && ctx != ContextVideo {
		return nil, fmt.Errorf("lessdetail: unknown context %v", ctx)
	}
	return f.stores[ctx], nil
}

// SetIntensity sets the intensity of ctx. Zero disables the effect.
// Values outside [0, 1] are rejected with an error wrapping
// params.ErrIntensityRange.
func (f *Filter) SetIntensity(ctx Context, v float64) error {
	s, err := f.store(ctx)
	if err != nil {
		return err
	}
	p, err := s.SetIntensity(v)
	if err != nil {
		return err
	}
	c := s.Constants()
	Logger().Debug("lessdetail: intensity set",
		slog.String("context", ctx.String()),
		slog.Float64("intensity", v),
		slog.Int("level", p.LevelOfAbstraction),
		slog.Int("edge_enhancement", p.EdgeEnhancement),
		slog.Int("bf_n_a", c.BFNA),
		slog.Int("bf_n_e", c.BFNE))
	return nil
}

// Intensity returns the last accepted intensity of ctx.
func (f *Filter) Intensity(ctx Context) float64 {
	s, err := f.store(ctx)
	if err != nil {
		return 0
	}
	return s.Intensity()
}

// Constants returns the constant group currently applied to ctx.
func (f *Filter) Constants(ctx Context) params.Constants {
	s, err := f.store(ctx)
	if err != nil {
		return params.Constants{}
	}
	return s.Constants()
}

// SetConstants replaces the constant group of both contexts and re-applies
// their intensities.
func (f *Filter) SetConstants(c params.Constants) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.stores {
		v := s.Intensity()
		s.Reset(c)
		if _, err := s.SetIntensity(v); err != nil {
			return err
		}
	}
	f.res.SetMaxSize(c.MaxSize)
	return nil
}

// SetMaxSize changes the working resolution cap. Cached textures are
// rebuilt on the next render.
func (f *Filter) SetMaxSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.stores {
		s.SetMaxSize(n)
	}
	f.res.SetMaxSize(n)
}

// UploadImage replaces the image source. A source with a zero dimension is
// refused; the previous surface content is left untouched.
func (f *Filter) UploadImage(src Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return f.res.UploadImage(src)
}

// RenderOnce draws the uploaded image into dst and runs the loaded hook.
func (f *Filter) RenderOnce(dst surface.Surface) error {
	f.mu.Lock()
	err := f.renderLocked(texture.SlotImage, dst, false)
	w, h := f.res.NaturalSize(texture.SlotImage)
	f.mu.Unlock()
	if err != nil {
		return err
	}

	if f.loaded != nil {
		f.loaded(w, h)
	}
	return nil
}

// Filter uploads src and draws it into dst once.
func (f *Filter) Filter(src Source, dst surface.Surface) error {
	if err := f.UploadImage(src); err != nil {
		return err
	}
	return f.RenderOnce(dst)
}

// DrawFrame uploads the current frame of video and draws it into dst using
// the video intensity.
func (f *Filter) DrawFrame(video Source, dst surface.Surface) error {
	return f.drawFrame(video, dst, false)
}

// DrawFrameNoOp uploads the current frame of video and draws it into dst
// unchanged.
func (f *Filter) DrawFrameNoOp(video Source, dst surface.Surface) error {
	return f.drawFrame(video, dst, true)
}

func (f *Filter) drawFrame(video Source, dst surface.Surface, noop bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if err := f.res.UploadVideoFrame(video); err != nil {
		return err
	}
	return f.renderLocked(texture.SlotVideo, dst, noop)
}

// renderLocked runs the pipeline on the working texture of slot and copies
// the canvas into dst, scaled to the surface size.
func (f *Filter) renderLocked(slot texture.Slot, dst surface.Surface, noop bool) error {
	if f.closed {
		return ErrClosed
	}
	if dst == nil {
		return ErrNoSurface
	}

	src, err := f.res.WorkingTexture(slot)
	if err != nil {
		return err
	}

	// The canvas keeps the natural aspect so the display pass undoes the
	// square working resolution.
	w, h := f.res.NaturalSize(slot)
	w, h = canvasSize(w, h, f.dev.MaxTextureSize())
	if _, err := f.dev.ResizeCanvas(w, h); err != nil {
		return fmt.Errorf("lessdetail: resize canvas: %w", err)
	}

	s := f.stores[ContextImage]
	if slot == texture.SlotVideo {
		s = f.stores[ContextVideo]
	}

	var canvas *gpu.Texture
	if noop || s.Intensity() <= 0 {
		canvas, err = f.pipe.RunPassthrough(src)
	} else {
		canvas, err = f.pipe.RunStylized(src, s.Constants())
	}
	if err != nil {
		return err
	}

	img, err := f.dev.ReadPixels(canvas)
	if err != nil {
		return fmt.Errorf("lessdetail: read canvas: %w", err)
	}
	dst.DrawImage(img, dst.Bounds())
	return dst.Flush()
}

// canvasSize scales w×h down, aspect kept, until neither edge exceeds
// limit.
func canvasSize(w, h, limit int) (int, int) {
	edge := max(w, h)
	if edge <= limit {
		return w, h
	}
	scale := float64(limit) / float64(edge)
	return max(1, int(math.Round(float64(w)*scale))), max(1, int(math.Round(float64(h)*scale)))
}

// Clear erases dst to transparent. It waits for an in-flight render.
func (f *Filter) Clear(dst surface.Surface) {
	if dst == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dst.Clear(color.Transparent)
}

// Stats returns the device resource counters.
func (f *Filter) Stats() gpu.Stats {
	return f.dev.Stats()
}

// Close releases every texture and the device. Close is idempotent.
func (f *Filter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.pipe.Release()
	f.res.Release()
	return f.dev.Close()
}
