// Package handler contains the HTTP handlers of the span query API.
//
// Span routes live under /v1/workspaces/:workspaceId and call the span
// service through the SpanQuerier interface. Handlers return errors rather
// than writing error bodies; NewErrorHandler maps them to status codes:
//
//   - validation failures to 400 with per-field errors
//   - AppError values to their own status
//   - a canceled request context to 499
//   - anything else to 500
//
// The health endpoints ping every configured backend.
package handler
