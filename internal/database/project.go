package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/osintnexus/internal/model"
)

const projectColumns = `id, name, description, created_at, updated_at`

// CreateProject creates a project. It returns ErrDuplicateProject when the
// name is taken.
func (s *Store) CreateProject(ctx context.Context, name, description string) (*model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("project name is required")
	}

	existing, err := s.findProject(ctx, "name = ?", name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateProject, name)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, description) VALUES (?, ?)`,
		name, description,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get project id: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject returns the project with id or ErrProjectNotFound.
func (s *Store) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	p, err := s.findProject(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: id %d", ErrProjectNotFound, id)
	}
	return p, nil
}

// GetProjectByName returns the project called name or ErrProjectNotFound.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*model.Project, error) {
	p, err := s.findProject(ctx, "name = ?", name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return p, nil
}

// EnsureProject returns the project called name, creating it if needed.
func (s *Store) EnsureProject(ctx context.Context, name string) (*model.Project, error) {
	p, err := s.GetProjectByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProjectNotFound) {
		return nil, err
	}
	return s.CreateProject(ctx, name, "")
}

// ListProjects returns every project ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// DeleteProject deletes a project together with its entities, connections
// and scan results.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrProjectNotFound, id)
	}
	return nil
}

func (s *Store) touchProject(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

func (s *Store) findProject(ctx context.Context, where string, arg any) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE `+where, arg)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*model.Project, error) {
	var (
		p                model.Project
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read project: %w", err)
	}
	p.CreatedAt = parseTimestamp(created)
	p.UpdatedAt = parseTimestamp(updated)
	return &p, nil
}
