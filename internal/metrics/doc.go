// Package metrics exposes scan activity as Prometheus metrics.
//
// An Observer is registered with the engine like any other observer. It
// owns a private registry, so several observers can live in one process
// (tests, one observer per CLI invocation) without colliding on the
// default registerer.
package metrics
