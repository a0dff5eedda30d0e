package machine

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/nao1215/osintnexus/internal/model"
)

var (
	// ErrInvalidMachine is returned for a machine without a name or steps.
	ErrInvalidMachine = errors.New("invalid machine")

	// ErrDuplicateMachine is returned when a machine name is registered twice.
	ErrDuplicateMachine = errors.New("machine already registered")

	// ErrUnknownMachine is returned when a machine name is not registered.
	ErrUnknownMachine = errors.New("unknown machine")
)

// Step is one stage of a machine.
type Step struct {
	// Description is a human-readable label shown while the step runs.
	Description string
	// Modules are the names of the modules to invoke for each entity.
	Modules []string
	// EntityTypes restricts the entities the step accepts; empty accepts all.
	EntityTypes []string
}

// Accepts reports whether entities of entityType pass the step's filter.
func (s Step) Accepts(entityType string) bool {
	return len(s.EntityTypes) == 0 || slices.Contains(s.EntityTypes, entityType)
}

// Filter returns the entities that pass the step's filter, in order.
func (s Step) Filter(entities []model.Entity) []model.Entity {
	out := make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		if s.Accepts(e.Type) {
			out = append(out, e)
		}
	}
	return out
}

func (s Step) clone() Step {
	return Step{
		Description: s.Description,
		Modules:     slices.Clone(s.Modules),
		EntityTypes: slices.Clone(s.EntityTypes),
	}
}

// Machine is a named, ordered list of steps. It is immutable once created.
type Machine struct {
	name        string
	description string
	steps       []Step
}

// New creates a machine. It returns ErrInvalidMachine when name is blank or
// steps is empty.
func New(name, description string, steps ...Step) (*Machine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidMachine)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %s has no steps", ErrInvalidMachine, name)
	}

	m := &Machine{
		name:        name,
		description: description,
		steps:       make([]Step, len(steps)),
	}
	for i, s := range steps {
		m.steps[i] = s.clone()
	}
	return m, nil
}

// Name returns the machine name.
func (m *Machine) Name() string { return m.name }

// Description returns the machine description.
func (m *Machine) Description() string { return m.description }

// Len returns the number of steps.
func (m *Machine) Len() int { return len(m.steps) }

// Steps returns a copy of the steps.
func (m *Machine) Steps() []Step {
	out := make([]Step, len(m.steps))
	for i, s := range m.steps {
		out[i] = s.clone()
	}
	return out
}

// Accepts reports whether the first step accepts entityType.
func (m *Machine) Accepts(entityType string) bool {
	return m.steps[0].Accepts(entityType)
}

// UnknownModules returns the module names referenced by the machine for
// which known returns false, without duplicates.
func (m *Machine) UnknownModules(known func(name string) bool) []string {
	var missing []string
	for _, s := range m.steps {
		for _, name := range s.Modules {
			if !known(name) && !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
		}
	}
	return missing
}

// Registry holds machines by name.
type Registry struct {
	mu       sync.RWMutex
	machines map[string]*Machine
}

// NewRegistry creates a registry holding machines.
func NewRegistry(machines ...*Machine) (*Registry, error) {
	r := &Registry{machines: make(map[string]*Machine, len(machines))}
	for _, m := range machines {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds m. It returns ErrDuplicateMachine if the name is taken.
func (r *Registry) Register(m *Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.machines[m.name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMachine, m.name)
	}
	r.machines[m.name] = m
	return nil
}

// Put adds m, replacing any machine with the same name.
func (r *Registry) Put(m *Machine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machines[m.name] = m
}

// Get returns the machine registered under name.
func (r *Registry) Get(name string) (*Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.machines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMachine, name)
	}
	return m, nil
}

// All returns every machine sorted by name.
func (r *Registry) All() []*Machine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Machine, 0, len(r.machines))
	for _, m := range r.machines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// ForEntityType returns, sorted by name, the machines whose first step
// accepts entityType.
func (r *Registry) ForEntityType(entityType string) []*Machine {
	var out []*Machine
	for _, m := range r.All() {
		if m.Accepts(entityType) {
			out = append(out, m)
		}
	}
	return out
}
