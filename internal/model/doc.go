// Package model defines the data structures shared by every layer of
// osintnexus.
//
// This package contains the following main types:
//   - Entity: a typed intelligence node (email, domain, ip, ...)
//   - Identity: the (entity type, value, project) tuple that decides uniqueness
//   - Relation: a directed, labeled edge between two in-memory entities as
//     reported by a module
//   - Connection: a persisted edge between two stored entities
//   - Target: the normalized input of a scan
//   - ScanResult: the outcome of one module run
//   - Project: the scope that owns entities and connections
//
// Design decision: Relations reference entities by value rather than by
// identifier because modules create them before anything is persisted. The
// aggregator resolves both endpoints to identifiers and only then turns a
// Relation into a Connection.
package model
