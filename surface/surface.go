// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"image"
	"image/color"
)

// Surface is the 2D destination a filter draws its result into. The filter
// only ever replaces the whole surface, so implementations need no
// compositing.
//
// A Surface is used by one goroutine at a time.
type Surface interface {
	Width() int
	Height() int

	// Bounds is the rectangle (0, 0)-(Width, Height).
	Bounds() image.Rectangle

	// Clear sets every pixel to c.
	Clear(c color.Color)

	// DrawImage scales img into r. Pixels inside r are overwritten, alpha
	// included.
	DrawImage(img image.Image, r image.Rectangle)

	// Flush publishes the pixels drawn since the previous Flush. Frame
	// consumers such as recorders hook in here.
	Flush() error

	// Snapshot copies the current pixels. It returns nil after Close.
	Snapshot() *image.RGBA

	// Close frees the pixels. Calling it twice is harmless.
	Close() error
}

// ResizableSurface is a Surface whose size can change after creation.
type ResizableSurface interface {
	Surface

	// Resize reallocates the pixels when the size differs. The previous
	// content is lost.
	Resize(width, height int) error
}

// Options is passed to a backend factory.
type Options struct {
	Width  int
	Height int

	// Background fills the new surface. Nil leaves it transparent.
	Background color.Color
}
