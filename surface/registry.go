// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import (
	"cmp"
	"errors"
	"slices"
	"sync"
)

// Factory builds a surface for a backend.
type Factory func(opts Options) (Surface, error)

var (
	ErrNoBackendAvailable = errors.New("surface: no backend available")
	ErrInvalidOptions     = errors.New("surface: width and height must be positive")
)

// BackendNotFoundError is returned when a named backend is missing or
// reports itself unavailable.
type BackendNotFoundError struct {
	Name string
}

func (e *BackendNotFoundError) Error() string {
	return "surface: backend not found: " + e.Name
}

type backend struct {
	name      string
	priority  int
	factory   Factory
	available func() bool
}

// Registry maps backend names to factories. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]backend
}

// defaultRegistry holds the built-in "image" backend.
var defaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]backend)}
}

// Register adds a backend to the default registry. See Registry.Register.
func Register(name string, priority int, factory Factory, available func() bool) {
	defaultRegistry.Register(name, priority, factory, available)
}

func Unregister(name string) { defaultRegistry.Unregister(name) }

// Available lists the usable backends of the default registry, preferred
// first.
func Available() []string { return defaultRegistry.Available() }

// NewSurface creates a width×height surface on the preferred backend of the
// default registry.
func NewSurface(width, height int) (Surface, error) {
	return defaultRegistry.NewSurface(Options{Width: width, Height: height})
}

// NewSurfaceByName creates a surface on the named backend of the default
// registry.
func NewSurfaceByName(name string, opts Options) (Surface, error) {
	return defaultRegistry.NewSurfaceByName(name, opts)
}

// Register adds or replaces the backend called name. Higher priorities are
// tried first. A nil available reports the backend as always usable.
func (r *Registry) Register(name string, priority int, factory Factory, available func() bool) {
	if available == nil {
		available = func() bool { return true }
	}
	r.mu.Lock()
	r.backends[name] = backend{name: name, priority: priority, factory: factory, available: available}
	r.mu.Unlock()
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.backends, name)
	r.mu.Unlock()
}

// Available lists usable backends by descending priority, ties by name.
func (r *Registry) Available() []string {
	r.mu.RLock()
	usable := make([]backend, 0, len(r.backends))
	for _, b := range r.backends {
		if b.available() {
			usable = append(usable, b)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(usable, func(a, b backend) int {
		return cmp.Or(cmp.Compare(b.priority, a.priority), cmp.Compare(a.name, b.name))
	})
	names := make([]string, len(usable))
	for i, b := range usable {
		names[i] = b.name
	}
	return names
}

// NewSurface walks the usable backends in priority order and returns the
// first surface created. When all fail the errors are joined.
func (r *Registry) NewSurface(opts Options) (Surface, error) {
	names := r.Available()
	if len(names) == 0 {
		return nil, ErrNoBackendAvailable
	}
	var errs []error
	for _, name := range names {
		s, err := r.NewSurfaceByName(name, opts)
		if err == nil {
			return s, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// NewSurfaceByName creates a surface on one backend and fills it with
// opts.Background when set.
func (r *Registry) NewSurfaceByName(name string, opts Options) (Surface, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, ErrInvalidOptions
	}
	r.mu.RLock()
	b, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok || !b.available() {
		return nil, &BackendNotFoundError{Name: name}
	}

	s, err := b.factory(opts)
	if err != nil {
		return nil, err
	}
	if opts.Background != nil {
		s.Clear(opts.Background)
	}
	return s, nil
}

func init() {
	Register("image", 10, func(opts Options) (Surface, error) {
		return NewImageSurface(opts.Width, opts.Height), nil
	}, nil)
}
