// Package storage persists the tracking registry.
//
// Every backend stores the same Snapshot: one record per tenant holding its
// destination and tracked entities. Save replaces the whole registry
// atomically, so a failed write leaves the previous snapshot intact.
//
// Drivers:
//   - file: one JSON document, written to a temp file and renamed
//   - sqlite: one row per tenant, replaced in a transaction
//   - redis: one hash field per tenant, replaced in MULTI/EXEC
//   - postgres: one row per tenant, replaced in a transaction
//   - memory: process-local, for tests and dry runs
package storage
