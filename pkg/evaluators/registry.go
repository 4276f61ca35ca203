package evaluators

import (
	"fmt"
	"sync"
)

// Registry holds evaluators by name and preserves registration order.
type Registry struct {
	mu         sync.RWMutex
	order      []string
	evaluators map[string]Evaluator
}

// NewRegistry creates an empty evaluator registry.
func NewRegistry() *Registry {
	return &Registry{
		evaluators: make(map[string]Evaluator),
	}
}

// Register adds an evaluator to the registry.
func (r *Registry) Register(e Evaluator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Name()
	if _, exists := r.evaluators[name]; exists {
		return fmt.Errorf("evaluator %q already registered", name)
	}
	r.evaluators[name] = e
	r.order = append(r.order, name)
	return nil
}

// Get returns an evaluator by name.
func (r *Registry) Get(name string) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.evaluators[name]
	if !ok {
		return nil, fmt.Errorf("evaluator %q not found", name)
	}
	return e, nil
}

// Names returns evaluator names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns evaluators in registration order.
func (r *Registry) All() []Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Evaluator, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, r.evaluators[name])
	}
	return all
}
