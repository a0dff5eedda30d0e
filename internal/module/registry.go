package module

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nao1215/osintnexus/internal/model"
)

var (
	// ErrDuplicateModule is returned when a module name is registered twice.
	ErrDuplicateModule = errors.New("module already registered")

	// ErrUnknownModule is returned when a module name is not registered.
	ErrUnknownModule = errors.New("unknown module")
)

// Registry maps module names to modules, preserving registration order.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	order   []string
}

// NewRegistry creates a registry holding modules.
// It returns ErrDuplicateModule if two modules share a name.
func NewRegistry(modules ...Module) (*Registry, error) {
	r := &Registry{modules: make(map[string]Module, len(modules))}
	for _, m := range modules {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds m to the registry.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if _, ok := r.modules[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	r.modules[name] = m
	r.order = append(r.order, name)
	return nil
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return m, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[name]
	return ok
}

// All returns every module in registration order.
func (r *Registry) All() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Module, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}

// Names returns the registered names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Applicable returns, in registration order, every module whose
// CanProcess(target) is true.
func (r *Registry) Applicable(target model.Target) []Module {
	all := r.All()
	out := make([]Module, 0, len(all))
	for _, m := range all {
		if CanProcess(m, target) {
			out = append(out, m)
		}
	}
	return out
}

// Select returns the modules named in names, in the given order.
// Unknown names are skipped and repeated names are returned once.
// CanProcess is not consulted: an explicit selection always runs.
func (r *Registry) Select(names []string) []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(names))
	out := make([]Module, 0, len(names))
	for _, name := range names {
		m, ok := r.modules[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, m)
	}
	return out
}

// ForInputType returns the modules that declare inputType.
func (r *Registry) ForInputType(inputType string) []Module {
	all := r.All()
	out := make([]Module, 0, len(all))
	for _, m := range all {
		if Accepts(m, inputType) {
			out = append(out, m)
		}
	}
	return out
}
