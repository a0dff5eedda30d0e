package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/nao1215/osintnexus/internal/engine"
	"github.com/nao1215/osintnexus/internal/model"
)

// consoleObserver prints module outcomes and workflow steps as they happen.
// Notify is called from scheduler goroutines; output lines are serialized.
type consoleObserver struct {
	mu      sync.Mutex
	verbose bool

	info    *pterm.PrefixPrinter
	success *pterm.PrefixPrinter
	warning *pterm.PrefixPrinter
	failure *pterm.PrefixPrinter
}

// newConsoleObserver creates a consoleObserver writing to w. Module
// progress reports are only shown when verbose is set.
func newConsoleObserver(w io.Writer, verbose bool) *consoleObserver {
	return &consoleObserver{
		verbose: verbose,
		info:    pterm.Info.WithWriter(w),
		success: pterm.Success.WithWriter(w),
		warning: pterm.Warning.WithWriter(w),
		failure: pterm.Error.WithWriter(w),
	}
}

// Notify implements engine.Observer.
func (c *consoleObserver) Notify(e engine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case engine.EventModuleProgress:
		if c.verbose {
			c.info.Printfln("%s: %d/%d", e.Module, e.Current, e.Total)
		}
	case engine.EventModuleCompleted:
		c.moduleCompleted(e)
	case engine.EventWorkflowStepStarted:
		c.info.Printfln("Step %d/%d: %s", e.StepIndex, e.StepCount, pterm.Cyan(e.Message))
	case engine.EventWorkflowFinished:
		if e.Success {
			c.success.Printfln("Machine %s finished: %d entities", e.Machine, e.Total)
		} else {
			c.warning.Printfln("Machine %s cancelled: %d entities so far", e.Machine, e.Total)
		}
	}
}

func (c *consoleObserver) moduleCompleted(e engine.Event) {
	r := e.Result
	if r == nil {
		return
	}
	subject := r.Module
	if e.Input != nil {
		if desc := e.Input.Describe(); desc != "" {
			subject += " [" + desc + "]"
		}
	}
	elapsed := r.Elapsed.Round(time.Millisecond)

	switch r.Status {
	case model.StatusCompleted:
		c.success.Printfln("%s: %d entities, %d connections (%s)",
			subject, len(r.Entities), len(r.Relations), elapsed)
	case model.StatusCancelled:
		c.warning.Printfln("%s: cancelled (%s)", subject, elapsed)
	default:
		c.failure.Printfln("%s: %s (%s)", subject, r.Error, elapsed)
	}
}

// resultSaver stores one module run in the scan history.
type resultSaver interface {
	SaveScanResult(ctx context.Context, projectID int64, scanID string, target model.Target, result model.ScanResult) (int64, error)
}

// historyObserver writes every module result of a project scan to the
// scan history.
type historyObserver struct {
	ctx    context.Context
	store  resultSaver
	logger *slog.Logger
}

// newHistoryObserver creates a historyObserver. Results are saved even
// after ctx is cancelled so that cancelled runs are recorded too.
func newHistoryObserver(ctx context.Context, store resultSaver, logger *slog.Logger) *historyObserver {
	return &historyObserver{
		ctx:    context.WithoutCancel(ctx),
		store:  store,
		logger: logger,
	}
}

// Notify implements engine.Observer.
func (h *historyObserver) Notify(e engine.Event) {
	if e.Type != engine.EventModuleCompleted || e.Result == nil || e.ProjectID == 0 {
		return
	}

	var target model.Target
	if e.Input != nil {
		target = *e.Input
	}
	if _, err := h.store.SaveScanResult(h.ctx, e.ProjectID, e.ScanID, target, *e.Result); err != nil {
		h.logger.Error("failed to save scan result",
			"scanID", e.ScanID,
			"module", e.Result.Module,
			"error", err,
		)
	}
}

// completedResults extracts the module results recorded by rec.
func completedResults(rec *engine.Recorder) []model.ScanResult {
	events := rec.OfType(engine.EventModuleCompleted)
	out := make([]model.ScanResult, 0, len(events))
	for _, e := range events {
		if e.Result != nil {
			out = append(out, *e.Result)
		}
	}
	return out
}

// printSummary writes a one-line summary of results to w.
func printSummary(w io.Writer, results []model.ScanResult, elapsed time.Duration) {
	s := model.Summarize(results)
	fmt.Fprintf(w, "\n%d module run(s): %d completed, %d failed, %d cancelled in %s\n\n",
		s.Total, s.Completed, s.Failed, s.Cancelled, elapsed.Round(time.Millisecond))
}
