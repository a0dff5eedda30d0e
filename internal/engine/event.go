package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/osintnexus/internal/model"
)

// EventType identifies the kind of an Event.
type EventType string

const (
	EventScanStarted          EventType = "scan.started"
	EventScanProgress         EventType = "scan.progress"
	EventScanCompleted        EventType = "scan.completed"
	EventModuleStarted        EventType = "module.started"
	EventModuleProgress       EventType = "module.progress"
	EventModuleError          EventType = "module.error"
	EventModuleCompleted      EventType = "module.completed"
	EventModuleFinished       EventType = "module.finished"
	EventEntityDiscovered     EventType = "entity.discovered"
	EventConnectionDiscovered EventType = "connection.discovered"
	EventWorkflowStepStarted  EventType = "workflow.step_started"
	EventWorkflowProgress     EventType = "workflow.progress"
	EventWorkflowFinished     EventType = "workflow.finished"
)

// Event is a lifecycle notification. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	Time      time.Time
	ScanID    string
	ProjectID int64

	// Module is the module name for module.* events and the current module
	// for scan.progress.
	Module string

	// Current and Total carry progress counters: module progress for
	// module.progress, finished/submitted units for scan.progress and the
	// submitted unit count for scan.started.
	Current int
	Total   int

	// Result is set on module.completed; Results on scan.completed.
	Result  *model.ScanResult
	Results []model.ScanResult

	// Input is the scanned target, set on module.completed.
	Input *model.Target

	// Entity is set on entity.discovered.
	Entity *model.Entity

	// Source, Target and Relationship are set on connection.discovered.
	Source       *model.Entity
	Target       *model.Entity
	Relationship string

	// Message carries the error text of module.error, the target
	// description of scan.started and step descriptions for workflow events.
	Message string

	// Workflow fields.
	Machine   string
	StepIndex int
	StepCount int
	Success   bool
}

// Observer receives events. Notify must not block for long: it runs on the
// goroutine of the unit of work that produced the event.
type Observer interface {
	Notify(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event Event)

// Notify implements Observer.
func (f ObserverFunc) Notify(event Event) {
	f(event)
}

// notifier fans events out to observers and isolates observer panics.
type notifier struct {
	observers []Observer
	logger    *slog.Logger
}

func (n *notifier) emit(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	for _, o := range n.observers {
		n.deliver(o, event)
	}
}

func (n *notifier) deliver(o Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("observer panicked",
				"event", string(event.Type),
				"panic", r,
			)
		}
	}()
	o.Notify(event)
}

// Recorder is an Observer that keeps every event it receives.
// It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify implements Observer.
func (r *Recorder) Notify(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of the given type.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// ForModule returns the module.* event types recorded for module, in order.
func (r *Recorder) ForModule(module string) []EventType {
	var out []EventType
	for _, e := range r.Events() {
		if e.Module != module {
			continue
		}
		switch e.Type {
		case EventModuleStarted, EventModuleProgress, EventModuleError, EventModuleCompleted, EventModuleFinished:
			out = append(out, e.Type)
		}
	}
	return out
}
