// Package texture manages source uploads and the working resolution of the
// stylization pipeline.
//
// The [Manager] is the sole owner of source textures. It records the natural
// size of the latest image and video sources, derives the square working
// resolution from the larger edge and the size cap, and uploads pixel data
// at most once per source change. Stages borrow the textures it returns and
// allocate their render targets through it.
package texture

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/lessdetail/internal/gpu"
)

var (
	// ErrInvalidSource is returned for sources with a zero or negative dimension.
	ErrInvalidSource = errors.New("texture: invalid source dimensions")

	// ErrUploadFailed is returned when a source cannot produce pixel data.
	ErrUploadFailed = errors.New("texture: upload failed")

	// ErrNoSource is returned when no source has been loaded into a slot.
	ErrNoSource = errors.New("texture: no source loaded")
)

// Source yields pixel data for upload. Size must be cheap; Pixels may fail,
// for example when a decoder lost its stream or the frame is not readable.
type Source interface {
	Size() (width, height int)
	Pixels() (image.Image, error)
}

type imageSource struct {
	img image.Image
}

// ImageSource adapts an image.Image to a Source.
func ImageSource(img image.Image) Source { return imageSource{img: img} }

func (s imageSource) Size() (int, int) {
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s imageSource) Pixels() (image.Image, error) {
	if s.img == nil {
		return nil, errors.New("nil image")
	}
	return s.img, nil
}

// Slot selects the image or the video source of a Manager.
type Slot int

const (
	// SlotImage holds a still image. Its working texture is cached.
	SlotImage Slot = iota
	// SlotVideo holds the current video frame. Its texture lives for one frame.
	SlotVideo
)

// String returns the slot name.
func (s Slot) String() string {
	if s == SlotVideo {
		return "video"
	}
	return "image"
}

type slot struct {
	source  Source
	natural image.Point
	texture *gpu.Texture
}

// Stats reports upload activity.
type Stats struct {
	Uploads uint64
	Refused uint64
	Failed  uint64
}

// Manager owns source textures and the working resolution.
//
// Manager is safe for concurrent use.
type Manager struct {
	dev *gpu.Device

	mu          sync.Mutex
	slots       [2]slot
	maxSize     int
	lastMaxSize int
	width       int
	height      int
	generation  uint64
	stats       Stats
}

// NewManager returns a manager allocating from dev with the given size cap.
func NewManager(dev *gpu.Device, maxSize int) *Manager {
	return &Manager{dev: dev, maxSize: maxSize, lastMaxSize: -1}
}

// UploadImage replaces the image source.
func (m *Manager) UploadImage(src Source) error { return m.Upload(SlotImage, src) }

// UploadVideoFrame replaces the video source with the current frame.
func (m *Manager) UploadVideoFrame(src Source) error { return m.Upload(SlotVideo, src) }

// Upload replaces the source of s, records its natural size and invalidates
// the slot's working texture. Sources with a zero dimension are refused and
// leave the slot empty.
func (m *Manager) Upload(s Slot, src Source) error {
	w, h := 0, 0
	if src != nil {
		w, h = src.Size()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sl := &m.slots[s]
	m.releaseLocked(sl)
	sl.source = nil
	sl.natural = image.Point{}

	if w <= 0 || h <= 0 {
		m.stats.Refused++
		gpu.Logger().Error("texture: invalid source",
			slog.String("slot", s.String()), slog.Int("width", w), slog.Int("height", h))
		return fmt.Errorf("%w: %s %dx%d", ErrInvalidSource, s, w, h)
	}

	sl.source = src
	sl.natural = image.Pt(w, h)
	return nil
}

// NaturalSize returns the recorded size of the slot's source.
func (m *Manager) NaturalSize(s Slot) (width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.slots[s].natural
	return p.X, p.Y
}

// WorkingTexture returns the slot's source scaled into a square texture at
// the working resolution. Pixel data is uploaded once per source; later
// calls return the same texture until the source or the size cap changes.
//
// On failure the error is logged and no texture is kept.
func (m *Manager) WorkingTexture(s Slot) (*gpu.Texture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl := &m.slots[s]
	if sl.source == nil {
		return nil, ErrNoSource
	}
	if sl.texture != nil && m.lastMaxSize == m.maxSize {
		// The other slot may have moved the shared resolution.
		m.setSizeLocked(sl.texture.Width())
		return sl.texture, nil
	}
	m.releaseLocked(sl)

	m.updateSizeLocked(sl.natural)

	pixels, err := sl.source.Pixels()
	if err != nil {
		m.stats.Failed++
		gpu.Logger().Error("texture: unable to process source",
			slog.String("slot", s.String()), slog.Any("err", err))
		return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, s, err)
	}

	tex, err := m.dev.CreateTexture(gpu.TextureConfig{
		Width:  m.width,
		Height: m.height,
		Filter: gputypes.FilterModeNearest,
		Label:  s.String() + "-source",
	})
	if err != nil {
		m.stats.Failed++
		gpu.Logger().Error("texture: allocation failed", slog.String("slot", s.String()), slog.Any("err", err))
		return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, s, err)
	}

	if err := tex.Upload(scaleNRGBA(pixels, m.width, m.height)); err != nil {
		tex.Release()
		m.stats.Failed++
		gpu.Logger().Error("texture: upload failed", slog.String("slot", s.String()), slog.Any("err", err))
		return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, s, err)
	}

	m.stats.Uploads++
	sl.texture = tex
	return tex, nil
}

// updateSizeLocked recomputes the square working resolution. A cap of zero
// or less keeps the previous resolution.
func (m *Manager) updateSizeLocked(natural image.Point) {
	edge := max(natural.X, natural.Y)
	switch {
	case m.maxSize > 0:
		edge = min(edge, m.maxSize)
	case m.width > 0:
		edge = m.width
	}
	edge = min(edge, m.dev.MaxTextureSize())

	m.setSizeLocked(edge)
	m.lastMaxSize = m.maxSize
}

// setSizeLocked moves the working resolution to edge×edge. A change
// advances the generation.
func (m *Manager) setSizeLocked(edge int) {
	if edge == m.width && edge == m.height {
		return
	}
	gpu.Logger().Debug("texture: working resolution changed",
		slog.Int("from", m.width), slog.Int("to", edge))
	m.width, m.height = edge, edge
	m.generation++
}

func (m *Manager) releaseLocked(sl *slot) {
	if sl.texture == nil {
		return
	}
	sl.texture.Release()
	sl.texture = nil
}

// scaleNRGBA resamples src to a w x h non-premultiplied image.
func scaleNRGBA(src image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// WorkingSize returns the current working resolution.
func (m *Manager) WorkingSize() (width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, m.height
}

// AllocateScratch allocates an intermediate render target.
func (m *Manager) AllocateScratch(width, height int, label string) (*gpu.Texture, error) {
	return m.dev.CreateTexture(gpu.TextureConfig{
		Width:  width,
		Height: height,
		Filter: gputypes.FilterModeNearest,
		Label:  label,
	})
}

// Scratch allocates a render target at the working resolution.
func (m *Manager) Scratch(label string) (*gpu.Texture, error) {
	w, h := m.WorkingSize()
	return m.AllocateScratch(w, h, label)
}

// SetFilterMode switches t between nearest and linear sampling.
// A nil texture is ignored.
func (m *Manager) SetFilterMode(t *gpu.Texture, mode gputypes.FilterMode) {
	if t == nil {
		return
	}
	t.SetFilter(mode)
}

// SetMaxSize changes the working resolution cap. Cached working textures are
// invalidated and rebuilt on next use.
func (m *Manager) SetMaxSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n == m.maxSize {
		return
	}
	m.maxSize = n
	m.generation++
	for i := range m.slots {
		m.releaseLocked(&m.slots[i])
	}
}

// MaxSize returns the working resolution cap.
func (m *Manager) MaxSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSize
}

// Generation advances whenever the working resolution is invalidated: a
// source that moves it, or a new size cap. Render targets allocated at an
// earlier generation must be reallocated. A same-size video frame does not
// advance it.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Stats returns a snapshot of the upload counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Release drops every source and texture.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		m.releaseLocked(&m.slots[i])
		m.slots[i] = slot{}
	}
}
