// Package engine runs modules against a target and turns their output into
// persisted graph state.
//
// The package has three parts:
//   - Scheduler: runs each selected module as an independent goroutine,
//     bounded by a weighted semaphore, and reports lifecycle events.
//   - Aggregator: deduplicates entities by identity and persists entities
//     and connections through a Store.
//   - Event and Observer: the notification channel consumed by the CLI,
//     the metrics collector, the scan history recorder and the workflow
//     runner.
//
// # Event ordering
//
// Events of one module are delivered in a fixed order from the goroutine
// that runs it:
//
//	module.started -> module.progress* -> [module.error] -> module.completed -> module.finished
//
// Events of different modules interleave arbitrarily. scan.completed is
// delivered exactly once per scan, after every module.finished of that scan.
//
// Design decision: Observers are called synchronously. Delivering each event
// on its own goroutine would lose the per-module ordering guarantee, and
// observers in this code base only update counters or write a line.
// A panicking observer is recovered and logged so it cannot take a unit of
// work down with it.
package engine
