package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nao1215/osintnexus/internal/model"
)

// Store is the persistence port of the aggregator.
//
// AddEntity has upsert-or-return-existing semantics keyed by the entity's
// identity: it returns the identifier of the stored row and whether the row
// was created by this call. AddConnection persists an edge between two
// stored entities and returns its identifier.
type Store interface {
	AddEntity(ctx context.Context, entity *model.Entity) (id int64, created bool, err error)
	AddConnection(ctx context.Context, conn *model.Connection) (int64, error)
}

// IngestStats summarizes one Ingest call.
type IngestStats struct {
	// Created counts entities inserted by this call.
	Created int
	// Reused counts entities that resolved to an existing row.
	Reused int
	// Failed counts entities the store rejected.
	Failed int
	// Connections counts persisted connections.
	Connections int
	// Dropped counts relations with an unresolved endpoint or a store error.
	Dropped int
}

// Aggregator converts completed ScanResults into persisted graph state
// exactly once per entity identity.
//
// Ingest may be called concurrently from any number of scheduler
// goroutines, including goroutines of different schedulers sharing one
// aggregator. The lookup-then-insert sequence for a whole batch runs under
// a single mutex.
type Aggregator struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	index map[model.Identity]int64
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates an Aggregator writing to store.
func NewAggregator(store Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store: store,
		index: make(map[model.Identity]int64),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Lookup returns the identifier recorded for id, if any.
func (a *Aggregator) Lookup(id model.Identity) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.index[id]
	return v, ok
}

// Ingest persists the entities and relations of a completed result into
// projectID. Entities receive their identifiers in place. Relations are
// persisted only after every entity of the batch has been resolved; a
// relation whose endpoint cannot be resolved is dropped.
//
// emit receives entity.discovered for each newly created entity and
// connection.discovered for each persisted connection. It is called after
// the aggregator lock has been released. emit may be nil.
func (a *Aggregator) Ingest(ctx context.Context, projectID int64, result *model.ScanResult, emit func(Event)) IngestStats {
	var (
		stats  IngestStats
		events []Event
	)

	if result == nil || result.Status != model.StatusCompleted {
		return stats
	}

	a.mu.Lock()

	for i := range result.Entities {
		e := &result.Entities[i]
		if e.Type == "" || e.Value == "" {
			stats.Failed++
			continue
		}
		e.ProjectID = projectID

		id, created, err := a.store.AddEntity(ctx, e)
		if err != nil {
			stats.Failed++
			a.logger.Warn("failed to persist entity",
				"module", result.Module,
				"entity", e.Identity().String(),
				"error", err,
			)
			continue
		}
		e.ID = id
		a.index[e.Identity()] = id

		if created {
			stats.Created++
			discovered := *e
			events = append(events, Event{
				Type:      EventEntityDiscovered,
				ProjectID: projectID,
				Module:    result.Module,
				Entity:    &discovered,
			})
		} else {
			stats.Reused++
		}
	}

	for i := range result.Relations {
		rel := &result.Relations[i]

		sourceID, okSource := a.index[rel.Source.IdentityIn(projectID)]
		targetID, okTarget := a.index[rel.Target.IdentityIn(projectID)]
		if !okSource || !okTarget {
			stats.Dropped++
			a.logger.Debug("dropping connection with unresolved endpoint",
				"module", result.Module,
				"source", rel.Source.IdentityIn(projectID).String(),
				"target", rel.Target.IdentityIn(projectID).String(),
				"relationship", rel.Relationship,
			)
			continue
		}
		rel.Source.ID, rel.Source.ProjectID = sourceID, projectID
		rel.Target.ID, rel.Target.ProjectID = targetID, projectID

		conn := &model.Connection{
			ProjectID:    projectID,
			SourceID:     sourceID,
			TargetID:     targetID,
			Relationship: rel.Relationship,
			Weight:       model.DefaultConnectionWeight,
		}
		if _, err := a.store.AddConnection(ctx, conn); err != nil {
			stats.Dropped++
			a.logger.Warn("failed to persist connection",
				"module", result.Module,
				"relationship", rel.Relationship,
				"error", err,
			)
			continue
		}
		stats.Connections++

		source, target := rel.Source, rel.Target
		events = append(events, Event{
			Type:         EventConnectionDiscovered,
			ProjectID:    projectID,
			Module:       result.Module,
			Source:       &source,
			Target:       &target,
			Relationship: rel.Relationship,
		})
	}

	a.mu.Unlock()

	a.logger.Debug("ingested module result",
		"module", result.Module,
		"projectID", projectID,
		"created", stats.Created,
		"reused", stats.Reused,
		"connections", stats.Connections,
		"dropped", stats.Dropped,
	)

	if emit != nil {
		for _, ev := range events {
			emit(ev)
		}
	}
	return stats
}
