package lessdetail

import (
	"github.com/gogpu/lessdetail/internal/gpu"
	"github.com/gogpu/lessdetail/internal/params"
)

// Compiler validates a WGSL module and returns its compiled form.
// The default compiles with naga.
type Compiler = gpu.Compiler

// DeviceFactory creates the render device a Filter draws with.
type DeviceFactory func(cfg gpu.DeviceConfig) (*gpu.Device, error)

// LoadedHook is called after each completed image render.
type LoadedHook func(width, height int)

// Option configures a Filter during creation.
//
// Example:
//
//	// Default constants, 1024px working size
//	f, err := lessdetail.New()
//
//	// Smaller working size for previews
//	f, err := lessdetail.New(lessdetail.WithMaxSize(512))
type Option func(*options)

// options holds optional configuration for Filter creation.
type options struct {
	constants     params.Constants
	maxSize       *int
	workers       int
	compiler      Compiler
	deviceFactory DeviceFactory
	loaded        LoadedHook
}

// defaultOptions returns the default filter options.
func defaultOptions() options {
	return options{
		constants:     params.DefaultConstants(),
		deviceFactory: gpu.NewDevice,
	}
}

// WithConstants replaces the constant group both the image and the video
// parameter stores start from. Its MaxSize is used unless WithMaxSize is
// also given.
func WithConstants(c params.Constants) Option {
	return func(o *options) {
		o.constants = c
	}
}

// WithMaxSize caps the working resolution. A value of zero or less keeps
// the last working resolution.
func WithMaxSize(n int) Option {
	return func(o *options) {
		o.maxSize = &n
	}
}

// WithWorkers sets the number of goroutines a draw is split across.
// Zero selects GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithCompiler replaces the shader compiler. Tests use it to run the
// pipeline without naga.
func WithCompiler(c Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithDeviceFactory replaces the device constructor.
func WithDeviceFactory(fn DeviceFactory) Option {
	return func(o *options) {
		if fn != nil {
			o.deviceFactory = fn
		}
	}
}

// WithLoadedHook registers a callback run after every image render with
// the natural size of the source, so a caller can reveal the surface once
// the image is drawn.
func WithLoadedHook(fn LoadedHook) Option {
	return func(o *options) {
		o.loaded = fn
	}
}
