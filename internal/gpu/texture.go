package gpu

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// Texture-related errors.
var (
	// ErrTextureReleased is returned when operating on a released texture.
	ErrTextureReleased = errors.New("gpu: texture has been released")

	// ErrTextureSizeMismatch is returned when upload data does not match the texture.
	ErrTextureSizeMismatch = errors.New("gpu: image size does not match texture")

	// ErrInvalidDimensions is returned for zero, negative or oversized textures.
	ErrInvalidDimensions = errors.New("gpu: invalid texture dimensions")

	// ErrNilImage is returned when uploading a nil image.
	ErrNilImage = errors.New("gpu: image is nil")
)

// TextureFormat represents the storage format of a texture.
type TextureFormat uint8

const (
	// TextureFormatRGBA8 stores 8 bits per channel. Writes are quantized.
	TextureFormatRGBA8 TextureFormat = iota

	// TextureFormatRGBA32F stores full float channels.
	TextureFormatRGBA32F
)

// String returns a human-readable name for the format.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8:
		return "RGBA8"
	case TextureFormatRGBA32F:
		return "RGBA32F"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// BytesPerPixel returns the number of bytes per texel for the format.
func (f TextureFormat) BytesPerPixel() int {
	if f == TextureFormatRGBA32F {
		return 16
	}
	return 4
}

// ToWGPUFormat converts to the WebGPU texture format.
func (f TextureFormat) ToWGPUFormat() gputypes.TextureFormat {
	if f == TextureFormatRGBA32F {
		return gputypes.TextureFormatRGBA32Float
	}
	return gputypes.TextureFormatRGBA8Unorm
}

// DefaultTextureUsage lets a texture be uploaded, sampled and rendered to.
const DefaultTextureUsage = gputypes.TextureUsageCopySrc |
	gputypes.TextureUsageCopyDst |
	gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageRenderAttachment

// TextureConfig holds configuration for creating a texture.
type TextureConfig struct {
	Width  int
	Height int
	Format TextureFormat

	// Filter is the sampling filter. Zero value selects nearest.
	Filter gputypes.FilterMode

	// Label is an optional debug label.
	Label string

	// Usage flags (default: DefaultTextureUsage)
	Usage gputypes.TextureUsage
}

// Texture is a device-owned 2D image. Texels are stored as float32 RGBA.
//
// Sampling clamps to the edge. The filter mode can be switched between
// nearest and linear at any time between draws.
type Texture struct {
	id     uint64
	label  string
	width  int
	height int
	format TextureFormat
	usage  gputypes.TextureUsage
	filter gputypes.FilterMode
	pix    []float32

	released atomic.Bool
	device   *Device
}

// ID returns the device-unique texture id.
func (t *Texture) ID() uint64 { return t.id }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// Width returns the texture width in texels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in texels.
func (t *Texture) Height() int { return t.height }

// Format returns the texture format.
func (t *Texture) Format() TextureFormat { return t.format }

// Usage returns the usage flags the texture was created with.
func (t *Texture) Usage() gputypes.TextureUsage { return t.usage }

// Size returns the texture extent.
func (t *Texture) Size() gputypes.Extent3D {
	//nolint:gosec // G115: dimensions are validated positive at creation
	return gputypes.Extent3D{Width: uint32(t.width), Height: uint32(t.height), DepthOrArrayLayers: 1}
}

// SizeBytes returns the storage size the format implies.
func (t *Texture) SizeBytes() uint64 {
	//nolint:gosec // G115: dimensions are validated positive at creation
	return uint64(t.width * t.height * t.format.BytesPerPixel())
}

// Filter returns the current sampling filter.
func (t *Texture) Filter() gputypes.FilterMode { return t.filter }

// SetFilter switches the sampling filter (both min and mag).
func (t *Texture) SetFilter(mode gputypes.FilterMode) { t.filter = mode }

// IsReleased reports whether the texture has been released.
func (t *Texture) IsReleased() bool { return t.released.Load() }

// Release returns the texture to its device. Release is idempotent.
func (t *Texture) Release() {
	if !t.released.CompareAndSwap(false, true) {
		return
	}
	if t.device != nil {
		t.device.forget(t)
	}
	t.pix = nil
}

// Upload copies img into the texture. The image must match the texture size.
// Image row 0 lands in texel row 0.
func (t *Texture) Upload(img *image.NRGBA) error {
	if t.IsReleased() {
		return ErrTextureReleased
	}
	if img == nil {
		return ErrNilImage
	}
	b := img.Bounds()
	if b.Dx() != t.width || b.Dy() != t.height {
		return fmt.Errorf("%w: image %dx%d, texture %dx%d",
			ErrTextureSizeMismatch, b.Dx(), b.Dy(), t.width, t.height)
	}

	for y := range t.height {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+t.width*4]
		dst := t.pix[y*t.width*4 : (y+1)*t.width*4]
		for i, c := range row {
			dst[i] = float32(c) / 255
		}
	}
	if t.device != nil {
		t.device.countUpload()
	}
	return nil
}

// Fill sets every texel to v, applying the format's precision.
func (t *Texture) Fill(v Vec4) {
	v = t.quantize(v)
	for i := 0; i < len(t.pix); i += 4 {
		copy(t.pix[i:i+4], v[:])
	}
}

// Texel returns the stored value at (x, y), clamped to the edge.
func (t *Texture) Texel(x, y int) Vec4 {
	x = min(max(x, 0), t.width-1)
	y = min(max(y, 0), t.height-1)
	i := (y*t.width + x) * 4
	return Vec4{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
}

// Sample reads the texture at normalized coordinates using its filter mode.
func (t *Texture) Sample(uv Vec2) Vec4 {
	if t.filter == gputypes.FilterModeLinear {
		return t.sampleLinear(uv)
	}
	x := int(math.Floor(float64(uv.X * float32(t.width))))
	y := int(math.Floor(float64(uv.Y * float32(t.height))))
	return t.Texel(x, y)
}

func (t *Texture) sampleLinear(uv Vec2) Vec4 {
	fx := float64(uv.X*float32(t.width)) - 0.5
	fy := float64(uv.Y*float32(t.height)) - 0.5
	x0, y0 := math.Floor(fx), math.Floor(fy)
	ax, ay := float32(fx-x0), float32(fy-y0)
	ix, iy := int(x0), int(y0)

	c00 := t.Texel(ix, iy)
	c10 := t.Texel(ix+1, iy)
	c01 := t.Texel(ix, iy+1)
	c11 := t.Texel(ix+1, iy+1)

	var out Vec4
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*ax
		bottom := c01[i] + (c11[i]-c01[i])*ax
		out[i] = top + (bottom-top)*ay
	}
	return out
}

func (t *Texture) store(x, y int, v Vec4) {
	v = t.quantize(v)
	i := (y*t.width + x) * 4
	copy(t.pix[i:i+4], v[:])
}

// quantize clamps to [0, 1] and rounds to 8 bits for RGBA8 targets.
// Float targets keep values as written.
func (t *Texture) quantize(v Vec4) Vec4 {
	if t.format != TextureFormatRGBA8 {
		return v
	}
	for i, c := range v {
		if math.IsNaN(float64(c)) {
			c = 0
		}
		c = min(max(c, 0), 1)
		v[i] = float32(math.Round(float64(c)*255)) / 255
	}
	return v
}
