package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// SpanQueryBackend is the span capability of a storage backend. Listing
// methods return at most limit rows strictly below after, in descending key
// order.
type SpanQueryBackend interface {
	// ListSpans orders by (startedAt, spanId, traceId)
	ListSpans(ctx context.Context, q *domain.SpanQuery, after *pagination.Cursor, limit int) ([]domain.Span, error)
	GetSpan(ctx context.Context, workspaceID int64, key domain.SpanKey) (*domain.Span, error)
	GetSpansByKeys(ctx context.Context, workspaceID int64, keys []domain.SpanKey) ([]domain.Span, error)
	// ListConversationHeads orders by (latest startedAt, documentLogUuid)
	ListConversationHeads(ctx context.Context, q *domain.SpanQuery, after *pagination.Cursor, limit int) ([]domain.ConversationHead, error)
	TraceIDsByLogUUIDs(ctx context.Context, workspaceID int64, logUUIDs []uuid.UUID, documentUUID *uuid.UUID) (map[uuid.UUID][]string, error)
	SpansByTraceIDs(ctx context.Context, workspaceID int64, traceIDs []string) ([]domain.Span, error)
}

// EvaluationQueryBackend is the evaluation result capability of a storage
// backend. Sets are keyed by (spanId, traceId).
type EvaluationQueryBackend interface {
	SpanKeysWithActiveIssues(ctx context.Context, scope domain.ResultScope) (domain.SpanKeySet, error)
	SpanKeysWithFailedResults(ctx context.Context, scope domain.ResultScope) (domain.SpanKeySet, error)
	SpanKeysWithPassedResults(ctx context.Context, scope domain.ResultScope, annotationsOnly bool) (domain.SpanKeySet, error)
	// ListLatestResults orders by (createdAt, resultId)
	ListLatestResults(ctx context.Context, q *domain.ResultQuery, after *pagination.Cursor, limit int) ([]domain.ResultCandidate, error)
	// ListEvaluatedSpanKeys orders by (traceId, spanId)
	ListEvaluatedSpanKeys(ctx context.Context, q *domain.EvaluatedSpanQuery, after *pagination.Cursor, limit int) ([]domain.SpanKey, error)
}

// BackendKind names a storage backend
type BackendKind string

const (
	BackendRelational BackendKind = "relational"
	BackendAnalytical BackendKind = "analytical"
)

// BackendPair is the full query capability of one storage backend
type BackendPair struct {
	Spans   SpanQueryBackend
	Results EvaluationQueryBackend
}

func (p BackendPair) configured() bool {
	return p.Spans != nil && p.Results != nil
}

// Backends is the pair resolved for one call
type Backends struct {
	Kind BackendKind
	BackendPair
}

// Capability names what a call reads
type Capability int

const (
	NeedSpans Capability = 1 << iota
	NeedResults
	NeedBoth = NeedSpans | NeedResults
)
