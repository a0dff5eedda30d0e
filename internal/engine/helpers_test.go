package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

// discardLogger keeps test output quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store with upsert semantics.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	entities    map[model.Identity]*model.Entity
	connections []model.Connection
	failValues  map[string]bool
}

func newMemStore(failValues ...string) *memStore {
	s := &memStore{
		entities:   make(map[model.Identity]*model.Entity),
		failValues: make(map[string]bool),
	}
	for _, v := range failValues {
		s.failValues[v] = true
	}
	return s
}

func (s *memStore) AddEntity(_ context.Context, e *model.Entity) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failValues[e.Value] {
		return 0, false, errors.New("insert failed")
	}
	if existing, ok := s.entities[e.Identity()]; ok {
		existing.Attributes = model.MergeAttributes(existing.Attributes, e.Attributes)
		return existing.ID, false, nil
	}
	s.nextID++
	stored := *e
	stored.ID = s.nextID
	s.entities[e.Identity()] = &stored
	return stored.ID, true, nil
}

func (s *memStore) AddConnection(_ context.Context, c *model.Connection) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stored := *c
	stored.ID = s.nextID
	s.connections = append(s.connections, stored)
	return stored.ID, nil
}

func (s *memStore) entityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

func (s *memStore) connectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// racyStore performs an unsynchronized check-then-insert and appends a row
// per insert, so concurrent callers without outside locking create
// duplicates.
type racyStore struct {
	mu   sync.Mutex
	rows []model.Entity
}

func (s *racyStore) find(id model.Identity) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.Identity() == id {
			return r.ID, true
		}
	}
	return 0, false
}

func (s *racyStore) AddEntity(_ context.Context, e *model.Entity) (int64, bool, error) {
	if id, ok := s.find(e.Identity()); ok {
		return id, false, nil
	}
	runtime.Gosched()

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *e
	stored.ID = int64(len(s.rows) + 1)
	s.rows = append(s.rows, stored)
	return stored.ID, true, nil
}

func (s *racyStore) AddConnection(context.Context, *model.Connection) (int64, error) {
	return 1, nil
}

func (s *racyStore) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// fakeModule builds a module from a run function.
func fakeModule(name string, inputs []string, run func(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error)) *module.Func {
	return &module.Func{
		ModuleName:        name,
		ModuleDescription: name,
		Inputs:            inputs,
		RunFunc:           run,
	}
}

func mustRegistry(modules ...module.Module) *module.Registry {
	r, err := module.NewRegistry(modules...)
	if err != nil {
		panic(err)
	}
	return r
}
