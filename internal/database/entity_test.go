package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nao1215/osintnexus/internal/model"
)

func TestAddEntityIdempotentIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, p := setupTestProject(t)

	first := model.NewEntity(model.EntityEmail, "a@example.com").
		WithLabel("Alice").
		WithAttribute("source", "whois")
	first.ProjectID = p.ID
	id1, created, err := s.AddEntity(ctx, &first)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first insert should create")
	}

	second := model.NewEntity(model.EntityEmail, "a@example.com").
		WithAttribute("source", "breach").
		WithAttribute("breached", true)
	second.ProjectID = p.ID
	id2, created, err := s.AddEntity(ctx, &second)
	if err != nil {
		t.Fatal(err)
	}
	if created || id1 != id2 {
		t.Errorf("duplicate identity created a row: created=%v id1=%d id2=%d", created, id1, id2)
	}

	entities, err := s.GetProjectEntities(ctx, p.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected one entity, got %d", len(entities))
	}
	got := entities[0]
	if got.Label != "Alice" {
		t.Errorf("label = %q, want stored label kept", got.Label)
	}
	if got.Attributes["source"] != "breach" || got.Attributes["breached"] != true {
		t.Errorf("attributes not merged: %v", got.Attributes)
	}
}

func TestAddEntityDefaultsLabelToValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, p := setupTestProject(t)

	e := model.Entity{ProjectID: p.ID, Type: model.EntityDomain, Value: "example.com"}
	id, _, err := s.AddEntity(ctx, &e)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetEntity(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("GetEntity = %v, %v", got, err)
	}
	if got.Label != "example.com" {
		t.Errorf("label = %q", got.Label)
	}
}

func TestAddEntityRejectsIncompleteEntity(t *testing.T) {
	t.Parallel()

	s, p := setupTestProject(t)

	tests := []model.Entity{
		{ProjectID: p.ID, Value: "x"},
		{ProjectID: p.ID, Type: model.EntityDomain},
		{Type: model.EntityDomain, Value: "example.com"},
	}
	for _, e := range tests {
		if _, _, err := s.AddEntity(context.Background(), &e); !errors.Is(err, ErrInvalidEntity) {
			t.Errorf("AddEntity(%+v) = %v, want ErrInvalidEntity", e, err)
		}
	}
}

func TestAddEntityScopedByProject(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, p := setupTestProject(t)
	other, err := s.CreateProject(ctx, "other", "")
	if err != nil {
		t.Fatal(err)
	}

	a := model.NewEntity(model.EntityDomain, "example.com")
	a.ProjectID = p.ID
	b := model.NewEntity(model.EntityDomain, "example.com")
	b.ProjectID = other.ID

	idA, createdA, err := s.AddEntity(ctx, &a)
	if err != nil {
		t.Fatal(err)
	}
	idB, createdB, err := s.AddEntity(ctx, &b)
	if err != nil {
		t.Fatal(err)
	}
	if !createdA || !createdB || idA == idB {
		t.Errorf("same value in two projects must be two entities: %d %d", idA, idB)
	}
}

func TestAddEntityConcurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, p := setupTestProject(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := model.NewEntity(model.EntityIP, "192.0.2.1")
			e.ProjectID = p.ID
			_, ok, err := s.AddEntity(ctx, &e)
			if err != nil {
				t.Errorf("AddEntity: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("expected exactly one create, got %d", created)
	}
	entities, _ := s.GetProjectEntities(ctx, p.ID, "")
	if len(entities) != 1 {
		t.Errorf("expected one row, got %d", len(entities))
	}
}

func TestFindEntityAndFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, p := setupTestProject(t)

	for _, e := range []model.Entity{
		model.NewEntity(model.EntityDomain, "example.com"),
		model.NewEntity(model.EntityIP, "192.0.2.1"),
		model.NewEntity(model.EntityDomain, "example.org"),
	} {
		e.ProjectID = p.ID
		if _, _, err := s.AddEntity(ctx, &e); err != nil {
			t.Fatal(err)
		}
	}

	found, err := s.FindEntity(ctx, model.Identity{Type: model.EntityIP, Value: "192.0.2.1", ProjectID: p.ID})
	if err != nil || found == nil {
		t.Fatalf("FindEntity = %v, %v", found, err)
	}
	missing, err := s.FindEntity(ctx, model.Identity{Type: model.EntityIP, Value: "198.51.100.1", ProjectID: p.ID})
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing entity, got %v, %v", missing, err)
	}
	if none, err := s.GetEntity(ctx, 12345); none != nil || err != nil {
		t.Errorf("expected nil, nil for missing id, got %v, %v", none, err)
	}

	domains, err := s.GetProjectEntities(ctx, p.ID, model.EntityDomain)
	if err != nil {
		t.Fatal(err)
	}
	if len(domains) != 2 || domains[0].Value != "example.com" || domains[1].Value != "example.org" {
		t.Errorf("unexpected domains: %+v", domains)
	}
}

func TestUpdateEntityAttributes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, p := setupTestProject(t)

	e := model.NewEntity(model.EntityDomain, "example.com").WithAttribute("registrar", "old")
	e.ProjectID = p.ID
	id, _, err := s.AddEntity(ctx, &e)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateEntityAttributes(ctx, id, map[string]any{"registrar": "new", "ttl": 300}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetEntity(ctx, id)
	if got.Attributes["registrar"] != "new" || got.Attributes["ttl"] != float64(300) {
		t.Errorf("unexpected attributes: %v", got.Attributes)
	}

	if err := s.UpdateEntityAttributes(ctx, 999, map[string]any{"x": 1}); err == nil {
		t.Error("expected error for missing entity")
	}
}
