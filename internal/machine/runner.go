package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/osintnexus/internal/engine"
	"github.com/nao1215/osintnexus/internal/model"
)

// ErrRunnerBusy is returned by Run while the runner is executing a machine.
var ErrRunnerBusy = errors.New("machine runner is busy")

// State is the lifecycle state of a Runner.
type State int

const (
	// StateIdle means the runner has not run a machine yet.
	StateIdle State = iota
	// StateRunningStep means a step is executing.
	StateRunningStep
	// StateFinished means the last run is over.
	StateFinished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunningStep:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// SchedulerFactory returns a new scheduler for one module invocation.
type SchedulerFactory func() *engine.Scheduler

// StepOutcome summarizes one executed or skipped step.
type StepOutcome struct {
	Index       int
	Description string
	// Skipped is true when no current entity matched the step filter or
	// the step names no modules.
	Skipped     bool
	Candidates  int
	Invocations int
	Failed      int
	Cancelled   int
	Discovered  int
	Duration    time.Duration
}

// Outcome is the result of running a machine.
type Outcome struct {
	Machine string
	// Success is false when the run was cancelled.
	Success bool
	// Final holds the deduplicated entities discovered by the last executed
	// step. It is the machine's output.
	Final []model.Entity
	// Collected holds the deduplicated entities discovered by every step.
	Collected []model.Entity
	Steps     []StepOutcome
}

// Runner executes machines one at a time.
type Runner struct {
	newScheduler SchedulerFactory
	observers    []engine.Observer
	logger       *slog.Logger

	mu    sync.Mutex
	state State
	step  int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithObservers adds observers for workflow events.
func WithObservers(observers ...engine.Observer) RunnerOption {
	return func(r *Runner) {
		r.observers = append(r.observers, observers...)
	}
}

// NewRunner creates a runner that builds schedulers with factory.
func NewRunner(factory SchedulerFactory, opts ...RunnerOption) *Runner {
	r := &Runner{newScheduler: factory}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// State returns the runner state and the zero-based index of the current
// or last step.
func (r *Runner) State() (State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.step
}

func (r *Runner) enterStep(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = i
}

// Run executes m starting from initial and blocks until the last step has
// finished. Entities are deduplicated by identity within projectID.
//
// Cancelling ctx cancels every in-flight scan; Run waits for them to report
// and returns an outcome with Success set to false.
func (r *Runner) Run(ctx context.Context, m *Machine, initial []model.Entity, projectID int64) (*Outcome, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil machine", ErrInvalidMachine)
	}

	r.mu.Lock()
	if r.state == StateRunningStep {
		r.mu.Unlock()
		return nil, ErrRunnerBusy
	}
	r.state = StateRunningStep
	r.step = 0
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.state = StateFinished
		r.mu.Unlock()
	}()

	r.logger.Info("starting machine",
		"machine", m.Name(),
		"steps", m.Len(),
		"entities", len(initial),
		"projectID", projectID,
	)

	outcome := &Outcome{Machine: m.Name(), Success: true}
	current := newEntitySet(projectID)
	current.add(initial...)
	collected := newEntitySet(projectID)
	currentList := current.list()

	for i, step := range m.steps {
		r.enterStep(i)
		r.emit(engine.Event{
			Type:      engine.EventWorkflowStepStarted,
			ProjectID: projectID,
			Machine:   m.Name(),
			StepIndex: i + 1,
			StepCount: m.Len(),
			Message:   step.Description,
		})

		candidates := step.Filter(currentList)
		if len(candidates) == 0 || len(step.Modules) == 0 {
			r.logger.Debug("skipping step",
				"machine", m.Name(),
				"step", step.Description,
				"entities", len(currentList),
			)
			outcome.Steps = append(outcome.Steps, StepOutcome{
				Index:       i,
				Description: step.Description,
				Skipped:     true,
				Candidates:  len(candidates),
			})
			continue
		}

		discovered, so := r.runStep(ctx, m, i, step, candidates, projectID)
		outcome.Steps = append(outcome.Steps, so)

		currentList = discovered.list()
		collected.add(currentList...)

		if ctx.Err() != nil {
			outcome.Success = false
			r.logger.Warn("machine cancelled",
				"machine", m.Name(),
				"step", step.Description,
			)
			break
		}
	}

	if ctx.Err() != nil {
		outcome.Success = false
	}
	outcome.Final = currentList
	outcome.Collected = collected.list()

	r.logger.Info("machine finished",
		"machine", m.Name(),
		"success", outcome.Success,
		"collected", len(outcome.Collected),
	)
	r.emit(engine.Event{
		Type:      engine.EventWorkflowFinished,
		ProjectID: projectID,
		Machine:   m.Name(),
		StepCount: m.Len(),
		Success:   outcome.Success,
		Total:     len(outcome.Collected),
	})

	return outcome, nil
}

// runStep starts one single-module scan per (entity, module) pair and waits
// for all of them.
func (r *Runner) runStep(ctx context.Context, m *Machine, index int, step Step, candidates []model.Entity, projectID int64) (*entitySet, StepOutcome) {
	start := time.Now()
	so := StepOutcome{
		Index:       index,
		Description: step.Description,
		Candidates:  len(candidates),
	}

	total := len(candidates) * len(step.Modules)
	completions := make(chan []model.ScanResult, total)
	scans := make([]*engine.Scan, 0, total)

	for _, e := range candidates {
		target := model.TargetForEntity(e)
		for _, name := range step.Modules {
			scan, ok := r.newScheduler().StartScan(ctx, engine.Request{
				Target:    target,
				Modules:   []string{name},
				ProjectID: projectID,
			})
			if !ok {
				r.logger.Warn("scheduler refused invocation",
					"module", name,
					"target", target.Describe(),
				)
				continue
			}
			scans = append(scans, scan)
			go func() {
				<-scan.Done()
				completions <- scan.Results()
			}()
		}
	}
	so.Invocations = len(scans)

	discovered := newEntitySet(projectID)
	done := ctx.Done()
	for finished := 0; finished < len(scans); {
		select {
		case results := <-completions:
			finished++
			for _, res := range results {
				switch res.Status {
				case model.StatusCompleted:
					discovered.add(res.Entities...)
				case model.StatusFailed:
					so.Failed++
				case model.StatusCancelled:
					so.Cancelled++
				}
			}
			r.emit(engine.Event{
				Type:      engine.EventWorkflowProgress,
				ProjectID: projectID,
				Machine:   m.Name(),
				StepIndex: index + 1,
				StepCount: m.Len(),
				Current:   finished,
				Total:     len(scans),
				Message:   step.Description,
			})
		case <-done:
			for _, scan := range scans {
				scan.Cancel()
			}
			done = nil
		}
	}

	so.Discovered = discovered.len()
	so.Duration = time.Since(start)
	return discovered, so
}

func (r *Runner) emit(e engine.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, o := range r.observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("observer panicked",
						"event", string(e.Type),
						"panic", rec,
					)
				}
			}()
			o.Notify(e)
		}()
	}
}

// entitySet is an insertion-ordered set keyed by identity.
type entitySet struct {
	projectID int64
	index     map[model.Identity]int
	items     []model.Entity
}

func newEntitySet(projectID int64) *entitySet {
	return &entitySet{
		projectID: projectID,
		index:     make(map[model.Identity]int),
	}
}

func (s *entitySet) add(entities ...model.Entity) {
	for _, e := range entities {
		id := e.IdentityIn(s.projectID)
		if i, ok := s.index[id]; ok {
			if !s.items[i].Persisted() && e.Persisted() {
				s.items[i] = e
			}
			continue
		}
		s.index[id] = len(s.items)
		s.items = append(s.items, e)
	}
}

func (s *entitySet) len() int { return len(s.items) }

func (s *entitySet) list() []model.Entity {
	out := make([]model.Entity, len(s.items))
	copy(out, s.items)
	return out
}
