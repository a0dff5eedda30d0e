package model

import "time"

// Project is the scope that owns entities, connections and scan history.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// ProjectExport is a self-contained snapshot of a project's graph.
type ProjectExport struct {
	Project     Project      `json:"project"`
	Entities    []Entity     `json:"entities"`
	Connections []Connection `json:"connections"`
	ExportedAt  time.Time    `json:"exported_at"`
}

// EntityByID indexes the export's entities by identifier.
func (p *ProjectExport) EntityByID() map[int64]Entity {
	idx := make(map[int64]Entity, len(p.Entities))
	for _, e := range p.Entities {
		idx[e.ID] = e
	}
	return idx
}

// CountByType returns how many entities of each type the export holds.
func (p *ProjectExport) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, e := range p.Entities {
		counts[e.Type]++
	}
	return counts
}
