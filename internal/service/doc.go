// Package service contains the span query engine.
//
// SpanService is the single entry point. Each top-level call resolves a
// callScope once (commit history, optimization experiments, backend pair)
// and threads it through every sub-query, so a paginated response never
// observes two different views of that state.
//
// # Backends
//
// Storage is reached only through SpanQueryBackend and
// EvaluationQueryBackend. The relational and analytical implementations
// live in the repository packages; BackendSelector picks one pair per call
// from per-workspace feature flags. A call that needs both spans and
// evaluation results is served analytically only when both flags are on.
//
// # Pagination
//
// Every listing is keyset paginated over a strict total order (see
// pagination.Shape). Listings whose rows are filtered after fetching use
// the bounded over-fetch loop in overfetch.go.
//
// # Thread Safety
//
// All services are safe for concurrent use. No call shares mutable state
// with another.
package service
