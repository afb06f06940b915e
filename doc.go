// Package stageview provides tenant row scoping and staged-content preview
// redirection for reads against a denormalized catalog index.
//
// The root package holds the error taxonomy and the shared cache contract used
// by the sub-packages:
//
//   - dialect/sql: driver wrappers and the SQL query builder
//   - dialect/sql/schema: column introspection and the process-wide column cache
//   - scope: the row-scope filter injecting store/website predicates
//   - tablemap: the table-name mapping registry
//   - index: dimension-aware index table name resolution
//   - preview: preview materialization and preview-mode hooks
//   - collection: a generic table collection running the filter before every read
//   - privacy: query policies wiring viewers and scopes into collections
//   - config: YAML configuration
//
// # Errors
//
// Typed errors carry their context and can be matched with the Is helpers:
//
//	if stageview.IsAlreadyMapped(err) {
//	    // a previous preview session never released its redirect
//	}
package stageview
