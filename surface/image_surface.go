// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// ErrSurfaceClosed is returned by operations on a closed surface.
var ErrSurfaceClosed = errors.New("surface: closed")

// ImageSurface is a CPU-based surface backed by an *image.RGBA.
//
// DrawImage resamples with bilinear filtering by default, matching how a
// canvas scales a drawn image.
//
// Example:
//
//	s := surface.NewImageSurface(800, 600)
//	defer s.Close()
//
//	s.DrawImage(frame, s.Bounds())
//	img := s.Snapshot()
type ImageSurface struct {
	img    *image.RGBA
	scaler xdraw.Scaler
	closed bool
}

// NewImageSurface creates a new surface with the given dimensions.
// Non-positive dimensions are clamped to 1.
func NewImageSurface(width, height int) *ImageSurface {
	return &ImageSurface{
		img:    image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1))),
		scaler: xdraw.ApproxBiLinear,
	}
}

// NewImageSurfaceFromImage creates a surface that draws into img directly.
func NewImageSurfaceFromImage(img *image.RGBA) *ImageSurface {
	if img.Bounds().Min != (image.Point{}) {
		// Keep Bounds anchored at the origin.
		img = img.SubImage(img.Bounds()).(*image.RGBA)
		img.Rect = img.Rect.Sub(img.Rect.Min)
	}
	return &ImageSurface{img: img, scaler: xdraw.ApproxBiLinear}
}

// SetScaler replaces the resampler used by DrawImage. Nil restores the
// bilinear default.
func (s *ImageSurface) SetScaler(sc xdraw.Scaler) {
	if sc == nil {
		sc = xdraw.ApproxBiLinear
	}
	s.scaler = sc
}

// Width returns the surface width.
func (s *ImageSurface) Width() int {
	if s.img == nil {
		return 0
	}
	return s.img.Rect.Dx()
}

// Height returns the surface height.
func (s *ImageSurface) Height() int {
	if s.img == nil {
		return 0
	}
	return s.img.Rect.Dy()
}

// Bounds returns the surface rectangle.
func (s *ImageSurface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.Width(), s.Height())
}

// Clear fills the entire surface with the given color.
func (s *ImageSurface) Clear(c color.Color) {
	if s.closed {
		return
	}
	draw.Draw(s.img, s.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// DrawImage draws img scaled into dst. Pixels outside the surface are
// clipped.
func (s *ImageSurface) DrawImage(img image.Image, dst image.Rectangle) {
	if s.closed || img == nil || dst.Empty() {
		return
	}
	src := img.Bounds()
	if src.Dx() == dst.Dx() && src.Dy() == dst.Dy() {
		draw.Draw(s.img, dst, img, src.Min, draw.Src)
		return
	}
	s.scaler.Scale(s.img, dst, img, src, xdraw.Src, nil)
}

// Flush is a no-op for ImageSurface.
func (s *ImageSurface) Flush() error {
	if s.closed {
		return ErrSurfaceClosed
	}
	return nil
}

// Snapshot returns a copy of the current surface contents.
func (s *ImageSurface) Snapshot() *image.RGBA {
	if s.closed {
		return nil
	}
	result := image.NewRGBA(s.img.Rect)
	draw.Draw(result, result.Rect, s.img, s.img.Rect.Min, draw.Src)
	return result
}

// Resize reallocates the backing image. Content is discarded.
func (s *ImageSurface) Resize(width, height int) error {
	if s.closed {
		return ErrSurfaceClosed
	}
	if width <= 0 || height <= 0 {
		return errors.New("surface: dimensions must be positive")
	}
	if width == s.Width() && height == s.Height() {
		return nil
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	return nil
}

// Close releases resources associated with the surface.
func (s *ImageSurface) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.img = nil
	return nil
}

// Image returns the underlying image.RGBA.
// This is a direct reference, not a copy.
func (s *ImageSurface) Image() *image.RGBA {
	return s.img
}
