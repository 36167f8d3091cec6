package engine

import (
	"sync"
)

// Registry maps location -> Engine, enforcing at-most-one engine per
// location. Its mutex is a point of contention only around create/remove;
// engines run their own ingestion loops independently. Grounded on this
// codebase's detector registry (internal/pipeline/detectors/registry.go)
// map+RWMutex shape, generalized from detector instances to engines.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

// Ensure returns the existing engine for location, or builds one with
// factory, registers it, and starts its worker. factory is invoked at most
// once per location, under the registry lock.
func (r *Registry) Ensure(location string, factory func() *Engine) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if eng, ok := r.engines[location]; ok {
		return eng, nil
	}

	eng := factory()
	if err := eng.StartWorker(); err != nil {
		return nil, err
	}
	r.engines[location] = eng
	return eng, nil
}

// Get returns the engine for location, or nil if none is registered.
func (r *Registry) Get(location string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engines[location]
}

// Has reports whether an engine is registered for location.
func (r *Registry) Has(location string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.engines[location]
	return ok
}

// Remove atomically removes location from the map and stops its engine, if
// present.
func (r *Registry) Remove(location string) error {
	r.mu.Lock()
	eng, ok := r.engines[location]
	if ok {
		delete(r.engines, location)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return eng.Stop()
}

// Locations returns every location with a registered engine.
func (r *Registry) Locations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	locations := make([]string, 0, len(r.engines))
	for loc := range r.engines {
		locations = append(locations, loc)
	}
	return locations
}

// Close stops every registered engine.
func (r *Registry) Close() error {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for loc, eng := range r.engines {
		engines = append(engines, eng)
		delete(r.engines, loc)
	}
	r.mu.Unlock()

	for _, eng := range engines {
		eng.Stop()
	}
	return nil
}
