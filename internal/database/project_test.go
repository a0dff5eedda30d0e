package database

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/osintnexus/internal/model"
)

func TestProjects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupTestStore(t)

	p, err := s.CreateProject(ctx, "alpha", "first")
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	if p.ID == 0 || p.Name != "alpha" || p.Description != "first" {
		t.Errorf("unexpected project: %+v", p)
	}
	if p.CreatedAt.IsZero() {
		t.Error("expected created_at")
	}

	if _, err := s.CreateProject(ctx, "alpha", ""); !errors.Is(err, ErrDuplicateProject) {
		t.Errorf("expected ErrDuplicateProject, got %v", err)
	}
	if _, err := s.CreateProject(ctx, "  ", ""); err == nil {
		t.Error("expected error for blank name")
	}

	if _, err := s.CreateProject(ctx, "beta", ""); err != nil {
		t.Fatal(err)
	}
	projects, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 || projects[0].Name != "alpha" || projects[1].Name != "beta" {
		t.Errorf("unexpected projects: %+v", projects)
	}

	byName, err := s.GetProjectByName(ctx, "alpha")
	if err != nil || byName.ID != p.ID {
		t.Errorf("GetProjectByName = %+v, %v", byName, err)
	}
	if _, err := s.GetProject(ctx, 999); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestEnsureProject(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := setupTestStore(t)

	first, err := s.EnsureProject(ctx, "default")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.EnsureProject(ctx, "default")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("EnsureProject created twice: %d != %d", first.ID, second.ID)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, p := setupTestProject(t)
	other, err := s.CreateProject(ctx, "other", "")
	if err != nil {
		t.Fatal(err)
	}

	a := model.NewEntity(model.EntityDomain, "example.com")
	a.ProjectID = p.ID
	b := model.NewEntity(model.EntityIP, "192.0.2.1")
	b.ProjectID = p.ID
	aID, _, err := s.AddEntity(ctx, &a)
	if err != nil {
		t.Fatal(err)
	}
	bID, _, err := s.AddEntity(ctx, &b)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddConnection(ctx, &model.Connection{ProjectID: p.ID, SourceID: aID, TargetID: bID, Relationship: "resolves_to"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveScanResult(ctx, p.ID, "scan-1", model.Target{Domain: "example.com"}, model.ScanResult{Module: "dns", Status: model.StatusCompleted}); err != nil {
		t.Fatal(err)
	}

	kept := model.NewEntity(model.EntityDomain, "example.com")
	kept.ProjectID = other.ID
	if _, _, err := s.AddEntity(ctx, &kept); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("failed to delete project: %v", err)
	}

	if entities, _ := s.GetProjectEntities(ctx, p.ID, ""); len(entities) != 0 {
		t.Errorf("entities survived delete: %d", len(entities))
	}
	if conns, _ := s.GetProjectConnections(ctx, p.ID); len(conns) != 0 {
		t.Errorf("connections survived delete: %d", len(conns))
	}
	if records, _ := s.ListScanResults(ctx, p.ID, 0); len(records) != 0 {
		t.Errorf("scan results survived delete: %d", len(records))
	}
	if entities, _ := s.GetProjectEntities(ctx, other.ID, ""); len(entities) != 1 {
		t.Errorf("other project lost entities: %d", len(entities))
	}

	if err := s.DeleteProject(ctx, p.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}
