package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

// DefaultConcurrency is the maximum number of module runs executing at once.
// Most modules make outbound network calls; a small bound keeps local sockets
// and remote rate limits in check.
const DefaultConcurrency = 8

// ErrScanInProgress is returned by Run when the scheduler is already scanning.
var ErrScanInProgress = errors.New("scan already in progress")

// Request describes one scan.
type Request struct {
	// Target is the scan input.
	Target model.Target

	// Modules restricts the scan to the named modules, regardless of
	// CanProcess. Unknown names are ignored. When nil, every registered
	// module whose CanProcess(Target) is true runs.
	Modules []string

	// ProjectID is the project results are persisted into.
	// Zero disables persistence.
	ProjectID int64
}

// Scheduler runs modules against a target with bounded concurrency.
//
// A Scheduler runs at most one scan at a time; StartScan while a scan is in
// flight is a no-op. Create one Scheduler per logical scan when scans must
// overlap, and share a semaphore between them to keep a global bound.
type Scheduler struct {
	registry   *module.Registry
	aggregator *Aggregator
	sem        *semaphore.Weighted
	notifier   *notifier
	logger     *slog.Logger
	newID      func() string

	mu      sync.Mutex
	current *Scan
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithObservers adds observers notified of every event.
func WithObservers(observers ...Observer) Option {
	return func(s *Scheduler) {
		s.notifier.observers = append(s.notifier.observers, observers...)
	}
}

// WithAggregator persists completed results through a.
func WithAggregator(a *Aggregator) Option {
	return func(s *Scheduler) {
		s.aggregator = a
	}
}

// WithConcurrency sets the maximum number of concurrent module runs.
// Non-positive values are ignored.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithSemaphore makes the scheduler draw execution slots from sem, which may
// be shared with other schedulers.
func WithSemaphore(sem *semaphore.Weighted) Option {
	return func(s *Scheduler) {
		if sem != nil {
			s.sem = sem
		}
	}
}

// WithIDGenerator replaces the scan ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Scheduler) {
		s.newID = fn
	}
}

// New creates a Scheduler that selects modules from registry.
func New(registry *module.Registry, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: registry,
		sem:      semaphore.NewWeighted(DefaultConcurrency),
		notifier: &notifier{},
		newID:    uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.notifier.logger = s.logger

	return s
}

// Scan is a handle on one in-flight or finished scan.
type Scan struct {
	// ID uniquely identifies the scan.
	ID string
	// Request is the request the scan was started with.
	Request Request
	// Modules lists the names of the selected modules.
	Modules []string

	done      chan struct{}
	cancel    context.CancelFunc
	cancelled atomic.Bool

	mu       sync.Mutex
	results  []model.ScanResult
	finished int
	running  map[string]int
}

// Done is closed after scan.completed has been delivered.
func (s *Scan) Done() <-chan struct{} {
	return s.done
}

// Results returns the results collected so far; after Done it holds exactly
// one result per selected module.
func (s *Scan) Results() []model.ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScanResult, len(s.results))
	copy(out, s.results)
	return out
}

// Cancel sets the cooperative cancellation flag and cancels the context
// handed to running modules.
func (s *Scan) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Cancelled reports whether Cancel has been called.
func (s *Scan) Cancelled() bool {
	return s.cancelled.Load()
}

func (s *Scan) total() int {
	return len(s.Modules)
}

func (s *Scan) markRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name]++
}

// record stores result and reports the number of results and the name of
// a module that is still running.
func (s *Scan) record(result model.ScanResult) (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, result)
	if s.running[result.Module]--; s.running[result.Module] <= 0 {
		delete(s.running, result.Module)
	}
	return len(s.results), s.currentLocked()
}

// progress reports the number of results and a running module name.
func (s *Scan) progress() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results), s.currentLocked()
}

func (s *Scan) currentLocked() string {
	if len(s.running) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.running))
	for name := range s.running {
		names = append(names, name)
	}
	slices.Sort(names)
	return names[0]
}

// finishUnit counts a finished unit and reports whether it was the last one.
func (s *Scan) finishUnit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished++
	return s.finished == s.total()
}

// StartScan starts a scan in the background and returns its handle.
// If a scan is already in flight it does nothing and returns false.
//
// When no module applies the scan completes immediately with zero results.
func (s *Scheduler) StartScan(ctx context.Context, req Request) (*Scan, bool) {
	s.mu.Lock()
	if s.current != nil {
		inFlight := s.current.ID
		s.mu.Unlock()
		s.logger.Debug("scan already in progress, ignoring start request",
			"scanID", inFlight,
		)
		return nil, false
	}

	modules := s.selectModules(req)
	scanCtx, cancel := context.WithCancel(ctx)
	scan := &Scan{
		ID:      s.newID(),
		Request: req,
		Modules: make([]string, len(modules)),
		done:    make(chan struct{}),
		cancel:  cancel,
		running: make(map[string]int),
	}
	for i, m := range modules {
		scan.Modules[i] = m.Name()
	}
	s.current = scan
	s.mu.Unlock()

	s.logger.Info("starting scan",
		"scanID", scan.ID,
		"target", req.Target.Describe(),
		"modules", scan.Modules,
		"projectID", req.ProjectID,
	)

	s.notifier.emit(Event{
		Type:      EventScanStarted,
		ScanID:    scan.ID,
		ProjectID: req.ProjectID,
		Total:     len(modules),
		Message:   req.Target.Describe(),
	})

	if len(modules) == 0 {
		s.complete(scan)
		return scan, true
	}

	go s.dispatch(scanCtx, scan, modules)

	return scan, true
}

// dispatch starts the units of scan in submission order, each once it
// holds a slot of the concurrency bound. Queued units keep their place
// after cancellation and still report.
func (s *Scheduler) dispatch(ctx context.Context, scan *Scan, modules []module.Module) {
	for _, m := range modules {
		_ = s.sem.Acquire(context.WithoutCancel(ctx), 1) //nolint:errcheck // cannot fail without a deadline
		go s.runUnit(ctx, scan, m)
	}
}

// Run starts a scan and blocks until it completes.
// It returns ErrScanInProgress if another scan is in flight.
// Cancelling ctx cancels the scan; Run still waits for every unit to report.
func (s *Scheduler) Run(ctx context.Context, req Request) ([]model.ScanResult, error) {
	scan, ok := s.StartScan(ctx, req)
	if !ok {
		return nil, ErrScanInProgress
	}
	<-scan.Done()
	return scan.Results(), nil
}

// CancelScan cancels the in-flight scan, if any, and reports whether there
// was one. Running modules are not interrupted beyond their context being
// cancelled; each still reports exactly one result, with status cancelled.
func (s *Scheduler) CancelScan() bool {
	s.mu.Lock()
	scan := s.current
	s.mu.Unlock()

	if scan == nil {
		return false
	}
	s.logger.Info("cancelling scan", "scanID", scan.ID)
	scan.Cancel()
	return true
}

// IsScanning reports whether a scan is in flight.
func (s *Scheduler) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// ApplicableModules returns the names of the modules that would run for
// target when no explicit module list is given.
func (s *Scheduler) ApplicableModules(target model.Target) []string {
	modules := s.registry.Applicable(target)
	names := make([]string, len(modules))
	for i, m := range modules {
		names[i] = m.Name()
	}
	return names
}

func (s *Scheduler) selectModules(req Request) []module.Module {
	if req.Modules != nil {
		return s.registry.Select(req.Modules)
	}
	return s.registry.Applicable(req.Target)
}

// runUnit executes one module and emits its events in order. The caller
// has acquired the unit's slot; runUnit releases it.
func (s *Scheduler) runUnit(ctx context.Context, scan *Scan, m module.Module) {
	defer s.sem.Release(1)

	name := m.Name()
	scan.markRunning(name)

	s.notifier.emit(Event{
		Type:      EventModuleStarted,
		ScanID:    scan.ID,
		ProjectID: scan.Request.ProjectID,
		Module:    name,
	})
	s.emitProgress(scan)

	result := s.execute(ctx, scan, m)

	if result.Status == model.StatusFailed {
		s.logger.Warn("module failed",
			"scanID", scan.ID,
			"module", name,
			"error", result.Error,
		)
		s.notifier.emit(Event{
			Type:      EventModuleError,
			ScanID:    scan.ID,
			ProjectID: scan.Request.ProjectID,
			Module:    name,
			Message:   result.Error,
		})
	}

	// A cancel that lands after the module returned still keeps its
	// output out of the store.
	if result.Status == model.StatusCompleted && scan.Cancelled() {
		result.Status = model.StatusCancelled
	}

	if result.Status == model.StatusCompleted && s.aggregator != nil && scan.Request.ProjectID != 0 {
		// A completed result is persisted in full even if the caller's
		// context is cancelled meanwhile.
		s.aggregator.Ingest(context.WithoutCancel(ctx), scan.Request.ProjectID, &result, func(e Event) {
			e.ScanID = scan.ID
			s.notifier.emit(e)
		})
	}

	completed, current := scan.record(result)

	s.notifier.emit(Event{
		Type:      EventModuleCompleted,
		ScanID:    scan.ID,
		ProjectID: scan.Request.ProjectID,
		Module:    name,
		Result:    &result,
		Input:     &scan.Request.Target,
	})
	s.notifier.emit(Event{
		Type:      EventScanProgress,
		ScanID:    scan.ID,
		ProjectID: scan.Request.ProjectID,
		Module:    current,
		Current:   completed,
		Total:     scan.total(),
	})
	s.notifier.emit(Event{
		Type:      EventModuleFinished,
		ScanID:    scan.ID,
		ProjectID: scan.Request.ProjectID,
		Module:    name,
	})

	if scan.finishUnit() {
		s.complete(scan)
	}
}

// execute runs the module and converts its outcome into a ScanResult.
func (s *Scheduler) execute(ctx context.Context, scan *Scan, m module.Module) model.ScanResult {
	name := m.Name()
	start := time.Now()

	var returned atomic.Bool
	progress := func(current, total int) {
		// Reports arriving after Run returned would break event order.
		if returned.Load() {
			return
		}
		s.notifier.emit(Event{
			Type:      EventModuleProgress,
			ScanID:    scan.ID,
			ProjectID: scan.Request.ProjectID,
			Module:    name,
			Current:   current,
			Total:     total,
		})
	}

	s.logger.Debug("running module", "scanID", scan.ID, "module", name)
	entities, relations, err := invoke(ctx, m, scan.Request.Target, progress)
	returned.Store(true)

	result := model.ScanResult{
		Module:    name,
		Entities:  entities,
		Relations: relations,
		StartedAt: start,
		Elapsed:   time.Since(start),
	}

	switch {
	case scan.Cancelled() || ctx.Err() != nil:
		result.Status = model.StatusCancelled
		if err != nil {
			result.Error = err.Error()
		}
	case err != nil:
		result.Status = model.StatusFailed
		result.Error = err.Error()
	default:
		result.Status = model.StatusCompleted
	}

	s.logger.Debug("module returned",
		"scanID", scan.ID,
		"module", name,
		"status", result.Status.String(),
		"entities", len(entities),
		"connections", len(relations),
		"elapsed", result.Elapsed,
	)

	return result
}

// invoke calls m.Run and turns a panic into an error.
func invoke(ctx context.Context, m module.Module, target model.Target, progress module.ProgressFunc) (entities []model.Entity, relations []model.Relation, err error) {
	defer func() {
		if r := recover(); r != nil {
			entities, relations = nil, nil
			err = fmt.Errorf("module panicked: %v", r)
		}
	}()
	return m.Run(ctx, target, progress)
}

func (s *Scheduler) emitProgress(scan *Scan) {
	completed, current := scan.progress()
	s.notifier.emit(Event{
		Type:      EventScanProgress,
		ScanID:    scan.ID,
		ProjectID: scan.Request.ProjectID,
		Module:    current,
		Current:   completed,
		Total:     scan.total(),
	})
}

// complete delivers scan.completed, then releases the scheduler.
func (s *Scheduler) complete(scan *Scan) {
	results := scan.Results()

	summary := model.Summarize(results)
	s.logger.Info("scan completed",
		"scanID", scan.ID,
		"modules", summary.Total,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"cancelled", summary.Cancelled,
	)

	s.notifier.emit(Event{
		Type:      EventScanCompleted,
		ScanID:    scan.ID,
		ProjectID: scan.Request.ProjectID,
		Total:     len(results),
		Results:   results,
	})

	s.mu.Lock()
	if s.current == scan {
		s.current = nil
	}
	s.mu.Unlock()
	scan.cancel()
	close(scan.done)
}
