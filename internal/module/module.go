package module

import (
	"context"
	"slices"
	"strings"

	"github.com/nao1215/osintnexus/internal/model"
)

// ProgressFunc receives progress reports from a running module.
// Implementations supplied by the scheduler are safe for concurrent use and
// never panic.
type ProgressFunc func(current, total int)

// Module is a single data-collection probe.
//
// Run is the only side-effecting method. It must be safe to call
// concurrently with other modules' Run calls, must honor ctx for any
// blocking I/O, and may call progress zero or more times before returning.
// A returned error (or a panic) is turned into a failed ScanResult by the
// scheduler; it never affects sibling modules.
type Module interface {
	// Name returns the unique registry name of the module.
	Name() string
	// Description returns a one-line human-readable summary.
	Description() string
	// InputTypes returns the Target fields the module consumes.
	InputTypes() []string
	// Run executes the probe against target.
	Run(ctx context.Context, target model.Target, progress ProgressFunc) ([]model.Entity, []model.Relation, error)
}

// Processor is implemented by modules that need a stricter applicability
// check than "one of my input fields is set".
type Processor interface {
	CanProcess(target model.Target) bool
}

// CanProcess reports whether m applies to target: true iff at least one of
// the module's input types has a non-empty field on the target. Modules that
// implement Processor decide for themselves.
func CanProcess(m Module, target model.Target) bool {
	if p, ok := m.(Processor); ok {
		return p.CanProcess(target)
	}
	for _, in := range m.InputTypes() {
		if strings.TrimSpace(target.Field(in)) != "" {
			return true
		}
	}
	return false
}

// Accepts reports whether m declares inputType among its input types.
func Accepts(m Module, inputType string) bool {
	return slices.Contains(m.InputTypes(), inputType)
}

// NopProgress discards progress reports.
func NopProgress(int, int) {}

// Func adapts a plain function to the Module interface.
// It is mainly useful for tests and small ad-hoc probes.
type Func struct {
	ModuleName        string
	ModuleDescription string
	Inputs            []string
	RunFunc           func(ctx context.Context, target model.Target, progress ProgressFunc) ([]model.Entity, []model.Relation, error)
}

// Name implements Module.
func (f *Func) Name() string { return f.ModuleName }

// Description implements Module.
func (f *Func) Description() string { return f.ModuleDescription }

// InputTypes implements Module.
func (f *Func) InputTypes() []string { return f.Inputs }

// Run implements Module.
func (f *Func) Run(ctx context.Context, target model.Target, progress ProgressFunc) ([]model.Entity, []model.Relation, error) {
	if f.RunFunc == nil {
		return nil, nil, nil
	}
	return f.RunFunc(ctx, target, progress)
}

var _ Module = (*Func)(nil)
