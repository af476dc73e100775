package engine

import "fmt"

// Options configures backend model loading.
type Options struct {
	// ModelPath locates the weights file (GGUF for llama.cpp backends).
	ModelPath string

	// GPULayers is the number of transformer layers offloaded to the GPU.
	// Negative means offload everything.
	GPULayers int

	// Threads caps CPU threads used for decoding. Zero lets the backend
	// pick.
	Threads int

	// UseMmap memory-maps the weights instead of reading them eagerly.
	UseMmap bool
}

// Factory builds a Model from load options.
type Factory func(opts Options) (Model, error)

// Registry maps backend names to factories.
type Registry map[string]Factory

// DefaultRegistry holds the backends registered by imported implementations.
var DefaultRegistry = Registry{}

// Register adds a backend factory to the default registry.
func Register(name string, factory Factory) {
	DefaultRegistry[name] = factory
}

// Load builds a model using the named backend.
func (r Registry) Load(name string, opts Options) (Model, error) {
	factory, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("engine: unknown backend %q", name)
	}
	model, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("engine: backend %q: %w", name, err)
	}
	return model, nil
}
