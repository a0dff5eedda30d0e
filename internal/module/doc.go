// Package module defines the contract every data-collection probe satisfies
// and the registry the scheduler selects probes from.
//
// A Module is a leaf unit of work: it declares which Target fields it
// consumes and, when run, returns the entities and relations it discovered.
// The orchestrator never looks inside a module beyond this contract.
//
// Design decision: The registry is an explicit value built at startup and
// handed to the scheduler, not package-level state. Tests build their own
// registries with fake modules and never see the built-in probes.
package module
