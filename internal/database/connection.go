package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/osintnexus/internal/model"
)

const connectionColumns = `id, project_id, source_id, target_id, relationship, weight, attributes, created_at`

// AddConnection stores c. A connection with the same project, endpoints and
// relationship is not duplicated: its weight grows by c.Weight (1.0 when
// unset) and its attributes are merged.
func (s *Store) AddConnection(ctx context.Context, c *model.Connection) (int64, error) {
	if c.ProjectID == 0 || c.SourceID == 0 || c.TargetID == 0 {
		return 0, errors.New("connection requires a project and two persisted endpoints")
	}
	weight := c.Weight
	if weight == 0 {
		weight = model.DefaultConnectionWeight
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id    int64
		attrs string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, attributes FROM connections
		WHERE project_id = ? AND source_id = ? AND target_id = ? AND relationship = ?`,
		c.ProjectID, c.SourceID, c.TargetID, c.Relationship,
	).Scan(&id, &attrs)

	switch {
	case err == nil:
		stored, err := decodeAttributes(attrs)
		if err != nil {
			return 0, err
		}
		merged, err := encodeAttributes(model.MergeAttributes(stored, c.Attributes))
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE connections SET weight = weight + ?, attributes = ? WHERE id = ?`,
			weight, merged, id,
		); err != nil {
			return 0, fmt.Errorf("failed to update connection: %w", err)
		}
	case isNoRows(err):
		encoded, err := encodeAttributes(c.Attributes)
		if err != nil {
			return 0, err
		}
		result, err := tx.ExecContext(ctx,
			`INSERT INTO connections (project_id, source_id, target_id, relationship, weight, attributes)
			VALUES (?, ?, ?, ?, ?, ?)`,
			c.ProjectID, c.SourceID, c.TargetID, c.Relationship, weight, encoded,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert connection: %w", err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to get connection id: %w", err)
		}
	default:
		return 0, fmt.Errorf("failed to look up connection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit connection: %w", err)
	}
	return id, nil
}

// GetProjectConnections returns a project's connections in insertion order.
func (s *Store) GetProjectConnections(ctx context.Context, projectID int64) ([]model.Connection, error) {
	return s.queryConnections(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE project_id = ? ORDER BY id`,
		projectID,
	)
}

// GetEntityConnections returns the connections that start or end at the
// entity with id.
func (s *Store) GetEntityConnections(ctx context.Context, entityID int64) ([]model.Connection, error) {
	return s.queryConnections(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE source_id = ? OR target_id = ? ORDER BY id`,
		entityID, entityID,
	)
}

func (s *Store) queryConnections(ctx context.Context, query string, args ...any) ([]model.Connection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var connections []model.Connection
	for rows.Next() {
		var (
			c       model.Connection
			attrs   string
			created string
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.SourceID, &c.TargetID,
			&c.Relationship, &c.Weight, &attrs, &created); err != nil {
			return nil, fmt.Errorf("failed to read connection: %w", err)
		}
		if c.Attributes, err = decodeAttributes(attrs); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTimestamp(created)
		connections = append(connections, c)
	}
	return connections, rows.Err()
}
