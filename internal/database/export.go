package database

import (
	"context"
	"time"

	"github.com/nao1215/osintnexus/internal/model"
)

// ExportProject returns a snapshot of a project with all its entities and
// connections.
func (s *Store) ExportProject(ctx context.Context, projectID int64) (*model.ProjectExport, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	entities, err := s.GetProjectEntities(ctx, projectID, "")
	if err != nil {
		return nil, err
	}
	connections, err := s.GetProjectConnections(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return &model.ProjectExport{
		Project:     *project,
		Entities:    entities,
		Connections: connections,
		ExportedAt:  time.Now().UTC(),
	}, nil
}
