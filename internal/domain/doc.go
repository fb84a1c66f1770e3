// Package domain contains the core entities and query types of the span
// query engine.
//
// This package defines:
//   - Entity types (Span, Commit, EvaluationResult, Issue, Optimization)
//   - Aggregates derived at read time (TraceRollup, Conversation)
//   - Value objects and enums (SpanType, SpanSource, SpanStatus, SpanKey)
//   - Query inputs shared by both storage backends (SpanQuery, ResultScope)
//
// # Design Philosophy
//
// Domain types are persistence-agnostic. Both the relational and the
// analytical backend translate the same SpanQuery into their own dialect,
// and SpanQuery.Matches states the predicate in Go so in-process filtering
// and test fakes agree with the SQL.
//
// # Identity
//
// A span id is only unique inside its trace. Anything that dedups, excludes
// or requires spans does so by SpanKey, the (spanId, traceId) pair.
//
// # Naming Conventions
//
// Types ending in "Filters" carry raw caller input and are validated by the
// service layer. Types ending in "Query" or "Scope" are already validated.
package domain
