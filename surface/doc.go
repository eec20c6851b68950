// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface provides the destination abstraction the filter draws
// into.
//
// A Surface is the equivalent of a 2D canvas context: it has a fixed pixel
// size, can be cleared, and accepts images drawn scaled into a rectangle.
// The filter never reads a surface back; Snapshot exists for callers that
// encode the result.
//
// # Surface Types
//
//   - ImageSurface: CPU surface backed by *image.RGBA
//
// # Registry
//
// Backends register a factory under a name and priority:
//
//	surface.Register("image", 10, func(opts surface.Options) (surface.Surface, error) {
//	    return surface.NewImageSurface(opts.Width, opts.Height), nil
//	}, nil)
//
//	s, err := surface.NewSurface(800, 600) // best available backend
//
// # Usage
//
//	s := surface.NewImageSurface(800, 600)
//	defer s.Close()
//
//	s.Clear(color.Black)
//	s.DrawImage(frame, s.Bounds())
//	img := s.Snapshot()
package surface
