// Package database provides SQLite-based storage for osintnexus.
//
// The Store keeps:
//   - Projects, the scopes that own everything else
//   - Entities, unique per (project, type, value)
//   - Connections between entities, unique per (project, source, target,
//     relationship); repeated discoveries add to the weight
//   - Scan results, the history of module runs inside a project
//
// Deleting a project cascades to its entities, connections and scan results.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the whole
// investigation lives in a single CGO-free file. Uniqueness is enforced by
// the schema, so concurrent writers can never create duplicate rows even if
// they bypass the engine's aggregator.
package database
