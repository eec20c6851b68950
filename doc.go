// Package lessdetail renders a "reduced detail" stylization of images and
// video frames.
//
// # Overview
//
// The effect is a flow-based abstraction: a smoothed structure tensor gives
// a flow field, an orientation-aligned bilateral filter flattens regions
// along it, a flow-guided difference of Gaussians draws the edges, and the
// smoothed colours are quantized in luminance and composited under the edge
// map. Every stage is a WGSL fragment shader, validated by naga and executed
// on a deterministic software device.
//
// # Quick Start
//
//	import "github.com/gogpu/lessdetail"
//
//	f, err := lessdetail.New()
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//
//	_ = f.SetIntensity(lessdetail.ContextImage, 0.5)
//
//	dst := surface.NewImageSurface(800, 600)
//	err = f.Filter(lessdetail.ImageSource(img), dst)
//
// # Intensity
//
// An intensity in [0, 1] selects a level of abstraction and an edge
// enhancement bucket. Zero disables the effect: the source is drawn
// unchanged. Images and videos keep separate intensities, see [Context].
//
// # Video
//
// A [VideoLoop] draws every new frame of a [VideoSource] until the video
// pauses or ends. The loop holds at most one frame registration, so frames
// are drawn strictly in order.
//
// # Architecture
//
// The module is organized into:
//   - Public API: Filter, VideoLoop, options, logging
//   - surface: drawing destinations
//   - internal/params: intensity to constant mapping
//   - internal/texture: source upload and working resolution
//   - internal/stage, internal/pipeline: render passes and the render graph
//   - internal/gpu: the software device
package lessdetail

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
