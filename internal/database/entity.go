package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nao1215/osintnexus/internal/model"
)

const entityColumns = `id, project_id, entity_type, value, label, attributes, created_at`

// AddEntity inserts e into its project, or merges it into the existing row
// with the same identity. It reports the row id and whether the row was
// created. On a merge the incoming attributes overwrite stored keys and the
// stored label is kept unless it is empty.
func (s *Store) AddEntity(ctx context.Context, e *model.Entity) (int64, bool, error) {
	if e.Type == "" || e.Value == "" || e.ProjectID == 0 {
		return 0, false, fmt.Errorf("%w: %s", ErrInvalidEntity, e.Identity())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanEntity(tx.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE project_id = ? AND entity_type = ? AND value = ?`,
		e.ProjectID, e.Type, e.Value,
	))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	var (
		id      int64
		created bool
	)
	if existing == nil {
		id, err = insertEntity(ctx, tx, e)
		if err != nil {
			return 0, false, err
		}
		created = true
	} else {
		id = existing.ID
		label := existing.Label
		if label == "" {
			label = e.Label
		}
		attrs, err := encodeAttributes(model.MergeAttributes(existing.Attributes, e.Attributes))
		if err != nil {
			return 0, false, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET label = ?, attributes = ? WHERE id = ?`,
			label, attrs, id,
		); err != nil {
			return 0, false, fmt.Errorf("failed to merge entity: %w", err)
		}
	}

	if err := s.touchProject(ctx, tx, e.ProjectID); err != nil {
		return 0, false, fmt.Errorf("failed to update project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit entity: %w", err)
	}
	return id, created, nil
}

func insertEntity(ctx context.Context, tx *sql.Tx, e *model.Entity) (int64, error) {
	attrs, err := encodeAttributes(e.Attributes)
	if err != nil {
		return 0, err
	}
	label := e.Label
	if label == "" {
		label = e.Value
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO entities (project_id, entity_type, value, label, attributes) VALUES (?, ?, ?, ?, ?)`,
		e.ProjectID, e.Type, e.Value, label, attrs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entity: %w", err)
	}
	return result.LastInsertId()
}

// GetEntity returns the entity with id, or nil if there is none.
func (s *Store) GetEntity(ctx context.Context, id int64) (*model.Entity, error) {
	e, err := scanEntity(s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// FindEntity returns the entity with the given identity, or nil if there
// is none.
func (s *Store) FindEntity(ctx context.Context, id model.Identity) (*model.Entity, error) {
	e, err := scanEntity(s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE project_id = ? AND entity_type = ? AND value = ?`,
		id.ProjectID, id.Type, id.Value,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// GetProjectEntities returns a project's entities in insertion order.
// A non-empty entityType restricts the result to that type.
func (s *Store) GetProjectEntities(ctx context.Context, projectID int64, entityType string) ([]model.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE project_id = ?`
	args := []any{projectID}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}

// UpdateEntityAttributes merges attrs into the stored attributes of the
// entity with id.
func (s *Store) UpdateEntityAttributes(ctx context.Context, id int64, attrs map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	e, err := scanEntity(tx.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("entity %d not found", id)
	}
	if err != nil {
		return err
	}

	encoded, err := encodeAttributes(model.MergeAttributes(e.Attributes, attrs))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET attributes = ? WHERE id = ?`, encoded, id,
	); err != nil {
		return fmt.Errorf("failed to update entity attributes: %w", err)
	}
	return tx.Commit()
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var (
		e       model.Entity
		attrs   string
		created string
	)
	err := row.Scan(&e.ID, &e.ProjectID, &e.Type, &e.Value, &e.Label, &attrs, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entity: %w", err)
	}
	if e.Attributes, err = decodeAttributes(attrs); err != nil {
		return nil, err
	}
	e.CreatedAt = parseTimestamp(created)
	return &e, nil
}

func encodeAttributes(attrs map[string]any) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to serialize attributes: %w", err)
	}
	return string(b), nil
}

func decodeAttributes(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, fmt.Errorf("failed to parse attributes: %w", err)
	}
	return attrs, nil
}
