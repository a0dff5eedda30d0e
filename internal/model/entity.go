package model

import (
	"fmt"
	"maps"
	"time"
)

// Well-known entity types. The set is open: modules may emit any type string.
const (
	EntityEmail    = "email"
	EntityDomain   = "domain"
	EntityIP       = "ip"
	EntityNetblock = "netblock"
	EntityPhone    = "phone"
	EntityUsername = "username"
	EntityPerson   = "person"
	EntityCompany  = "company"
	EntityURL      = "url"
	EntityOnion    = "onion"
	EntityImage    = "image"
	EntityLocation = "location"
	EntityDevice   = "device"
	EntitySoftware = "software"
	EntityCountry  = "country"
)

// Entity is a discovered intelligence node.
//
// ID and ProjectID are zero until the entity has been persisted.
// Label and Attributes are presentation data and do not take part in identity.
type Entity struct {
	ID         int64          `json:"id,omitempty"`
	ProjectID  int64          `json:"project_id,omitempty"`
	Type       string         `json:"entity_type"`
	Value      string         `json:"value"`
	Label      string         `json:"label,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitzero"`
}

// NewEntity creates an entity of the given type whose label is its value.
func NewEntity(entityType, value string) Entity {
	return Entity{
		Type:       entityType,
		Value:      value,
		Label:      value,
		Attributes: make(map[string]any),
	}
}

// WithLabel returns a copy of e with the given display label.
func (e Entity) WithLabel(label string) Entity {
	e.Label = label
	return e
}

// WithAttribute returns a copy of e with key set to value.
// The attribute map is cloned so the receiver is left untouched.
func (e Entity) WithAttribute(key string, value any) Entity {
	attrs := make(map[string]any, len(e.Attributes)+1)
	maps.Copy(attrs, e.Attributes)
	attrs[key] = value
	e.Attributes = attrs
	return e
}

// DisplayLabel returns the label, falling back to the value.
func (e Entity) DisplayLabel() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Value
}

// Persisted reports whether the entity has been assigned a store identifier.
func (e Entity) Persisted() bool {
	return e.ID != 0
}

// Identity returns the identity of e within its own project.
func (e Entity) Identity() Identity {
	return Identity{Type: e.Type, Value: e.Value, ProjectID: e.ProjectID}
}

// IdentityIn returns the identity e would have inside projectID.
// Modules never know the project they run for, so the aggregator and the
// workflow runner key entities with this method.
func (e Entity) IdentityIn(projectID int64) Identity {
	return Identity{Type: e.Type, Value: e.Value, ProjectID: projectID}
}

// Identity is the uniqueness key of an entity.
// Two entities are the same entity if and only if their identities are equal.
type Identity struct {
	Type      string
	Value     string
	ProjectID int64
}

// String implements fmt.Stringer.
func (i Identity) String() string {
	return fmt.Sprintf("%s:%s@%d", i.Type, i.Value, i.ProjectID)
}

// MergeAttributes merges src into dst and returns the result.
// Keys present in both maps take the value from src. dst is not modified.
func MergeAttributes(dst, src map[string]any) map[string]any {
	merged := make(map[string]any, len(dst)+len(src))
	maps.Copy(merged, dst)
	maps.Copy(merged, src)
	return merged
}

// Relation is a directed, labeled edge between two entities as discovered
// by a module. Endpoints are matched to stored entities by identity.
type Relation struct {
	Source       Entity `json:"source"`
	Target       Entity `json:"target"`
	Relationship string `json:"relationship"`
}

// NewRelation creates a relation from source to target.
func NewRelation(source, target Entity, relationship string) Relation {
	return Relation{Source: source, Target: target, Relationship: relationship}
}

// DefaultConnectionWeight is the weight of a newly discovered connection.
const DefaultConnectionWeight = 1.0

// Connection is a persisted, directed edge between two stored entities.
type Connection struct {
	ID           int64          `json:"id,omitempty"`
	ProjectID    int64          `json:"project_id"`
	SourceID     int64          `json:"source_id"`
	TargetID     int64          `json:"target_id"`
	Relationship string         `json:"relationship"`
	Weight       float64        `json:"weight"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitzero"`
}
