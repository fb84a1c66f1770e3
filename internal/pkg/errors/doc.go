// Package errors provides application error types for the span query service.
//
// # Error Types
//
//   - NotFound: single-item lookup with no matching row (404)
//   - Validation: malformed cursor, unknown span type, inverted range (400)
//   - Backend: any failure reported by PostgreSQL or ClickHouse (502)
//   - Internal: unexpected server error (500)
//
// An empty commit history or an empty required-result set is not an error;
// services return an empty page instead.
//
// # Usage
//
//	return nil, apperrors.NotFound("span")
//	return nil, apperrors.Backend("clickhouse: list spans", err)
//
//	if apperrors.IsNotFound(err) {
//	    // Handle not found
//	}
package errors
