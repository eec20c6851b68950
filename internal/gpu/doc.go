// Package gpu implements the headless render device used by the stylization
// pipeline.
//
// The device follows the resource model of a WebGPU device: textures
// are allocated by the device and addressed with normalized coordinates,
// framebuffers attach a texture as the colour target, and programs are built
// from WGSL source. Shader source is validated with naga; the fragment math
// itself runs as a Go [Kernel] over every texel of the bound target, split
// into row bands on a worker pool.
//
// # Bound state
//
// Like a GL context, the device holds one bound program, one bound
// framebuffer and a small set of texture units. Callers bind, draw, and then
// call [Device.Unbind] so the next pass starts from a clean state.
//
// # Coordinates
//
// Texel row 0 is the bottom of a texture, as in GL. [Texture.Upload] writes
// the first image row into texel row 0, and [Device.ReadPixels] returns the
// bottom texel row last. A pass that samples at (u, 1-v) therefore produces
// an upright image on readback.
package gpu
