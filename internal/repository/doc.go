// Package repository contains the storage backends behind the span query
// engine.
//
// Both subpackages implement the same backend interfaces declared in the
// service package, so a workspace can be served by either one:
//   - postgres: the relational backend, also the home of commits,
//     optimizations, feature flags and the denormalization backfill
//   - clickhouse: the analytical backend for spans and evaluation results
//
// Listing methods take an exclusive keyset cursor and return rows in
// descending key order. String key columns compare byte-wise in both stores
// so database order agrees with cursor comparison.
//
// All repository implementations are safe for concurrent use.
// Connection pools are managed at the database layer.
package repository
