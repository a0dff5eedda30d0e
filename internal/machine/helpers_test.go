package machine

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nao1215/osintnexus/internal/engine"
	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type runFunc = func(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error)

func fakeModule(name string, run runFunc) *module.Func {
	return &module.Func{
		ModuleName:        name,
		ModuleDescription: name,
		Inputs: []string{
			model.InputDomain, model.InputEmail, model.InputUsername,
			model.InputIP, model.InputPhone,
		},
		RunFunc: run,
	}
}

// returning builds a module that returns entities and records the targets
// it was invoked with.
type returning struct {
	mu      sync.Mutex
	targets []string
}

func (r *returning) module(name string, entities ...model.Entity) *module.Func {
	return fakeModule(name, func(_ context.Context, target model.Target, _ module.ProgressFunc) ([]model.Entity, []model.Relation, error) {
		r.mu.Lock()
		r.targets = append(r.targets, target.Describe())
		r.mu.Unlock()
		return entities, nil, nil
	})
}

func (r *returning) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.targets))
	copy(out, r.targets)
	return out
}

// newFactory returns a scheduler factory whose schedulers share one
// semaphore and report to rec.
func newFactory(rec *engine.Recorder, modules ...module.Module) SchedulerFactory {
	reg, err := module.NewRegistry(modules...)
	if err != nil {
		panic(err)
	}
	sem := semaphore.NewWeighted(engine.DefaultConcurrency)
	return func() *engine.Scheduler {
		return engine.New(reg,
			engine.WithSemaphore(sem),
			engine.WithObservers(rec),
			engine.WithLogger(discardLogger()),
		)
	}
}

func values(entities []model.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Value
	}
	return out
}
