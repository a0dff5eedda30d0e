// Package machine chains module invocations into multi-step workflows.
//
// A Machine is a named, ordered list of Steps. Each Step names the modules
// to run and, optionally, the entity types it accepts. The Runner drives a
// machine as a small state machine:
//
//	Idle -> RunningStep(0) -> RunningStep(1) -> ... -> Finished
//
// On entering a step the runner filters the current entities by the step's
// types, starts one single-module scan per (entity, module) pair and waits
// until every scan has completed. The entities discovered by the step, with
// duplicates collapsed by identity, become the input of the next step. A
// step without matching entities is skipped.
//
// Design decision: Each invocation gets a fresh engine.Scheduler from a
// factory, because a scheduler runs one scan at a time. Schedulers built by
// the CLI share one semaphore and one aggregator, so the concurrency bound
// and identity deduplication hold across the whole workflow.
package machine
