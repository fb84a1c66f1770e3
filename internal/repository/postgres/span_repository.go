package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/database"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// SpanRepository serves span queries from PostgreSQL
type SpanRepository struct {
	db *database.PostgresDB
}

// NewSpanRepository creates a new span repository
func NewSpanRepository(db *database.PostgresDB) *SpanRepository {
	return &SpanRepository{db: db}
}

func buildListSpansQuery(q *domain.SpanQuery, after *pagination.Cursor, limit int) (string, []interface{}) {
	a := &args{}
	conditions := spanConditions(q, a)
	if after != nil {
		conditions = append(conditions, fmt.Sprintf("(started_at, id, trace_id) < (%s, %s, %s)",
			a.bind(after.Timestamp), a.bind(after.ID), a.bind(after.TraceID)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM spans
		WHERE %s
		ORDER BY started_at DESC, id DESC, trace_id DESC
		LIMIT %s
	`, spanColumns, where(conditions), a.bind(limit))

	return query, a.values
}

// ListSpans lists spans strictly below after, most recent first
func (r *SpanRepository) ListSpans(ctx context.Context, q *domain.SpanQuery, after *pagination.Cursor, limit int) ([]domain.Span, error) {
	if q.IsEmpty() {
		return nil, nil
	}

	query, values := buildListSpansQuery(q, after, limit)
	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "spans.list"), query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to list spans: %w", err)
	}

	return collectSpans(rows)
}

// GetSpan retrieves a span by its full key
func (r *SpanRepository) GetSpan(ctx context.Context, workspaceID int64, key domain.SpanKey) (*domain.Span, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM spans
		WHERE workspace_id = $1 AND trace_id = $2 AND id = $3
	`, spanColumns)

	row := r.db.Pool.QueryRow(database.WithOperation(ctx, "spans.get"), query, workspaceID, key.TraceID, key.SpanID)
	span, err := scanSpan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("span")
		}
		return nil, fmt.Errorf("failed to get span: %w", err)
	}

	return &span, nil
}

// GetSpansByKeys retrieves the spans behind a set of keys. Missing keys are
// absent from the result.
func (r *SpanRepository) GetSpansByKeys(ctx context.Context, workspaceID int64, keys []domain.SpanKey) ([]domain.Span, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	spanIDs, traceIDs := domain.SplitKeys(keys)
	query := fmt.Sprintf(`
		SELECT %s
		FROM spans
		WHERE workspace_id = $1
			AND (trace_id, id) IN (SELECT * FROM unnest($2::text[], $3::text[]))
	`, spanColumns)

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "spans.get_by_keys"), query, workspaceID, traceIDs, spanIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get spans by keys: %w", err)
	}

	return collectSpans(rows)
}

func buildConversationHeadsQuery(q *domain.SpanQuery, after *pagination.Cursor, limit int) (string, []interface{}) {
	a := &args{}
	conditions := append(spanConditions(q, a), "document_log_uuid IS NOT NULL")

	having := ""
	if after != nil {
		having = fmt.Sprintf("HAVING (MAX(started_at), document_log_uuid) < (%s, %s::uuid)",
			a.bind(after.Timestamp), a.bind(after.ID))
	}

	query := fmt.Sprintf(`
		SELECT document_log_uuid, MAX(started_at) AS last_started_at
		FROM spans
		WHERE %s
		GROUP BY document_log_uuid
		%s
		ORDER BY last_started_at DESC, document_log_uuid DESC
		LIMIT %s
	`, where(conditions), having, a.bind(limit))

	return query, a.values
}

// ListConversationHeads lists document log identities by their most recent
// matching span
func (r *SpanRepository) ListConversationHeads(ctx context.Context, q *domain.SpanQuery, after *pagination.Cursor, limit int) ([]domain.ConversationHead, error) {
	if q.IsEmpty() {
		return nil, nil
	}

	query, values := buildConversationHeadsQuery(q, after, limit)
	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "spans.conversation_heads"), query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation heads: %w", err)
	}
	defer rows.Close()

	var heads []domain.ConversationHead
	for rows.Next() {
		var h domain.ConversationHead
		if err := rows.Scan(&h.DocumentLogUUID, &h.LastStartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation head: %w", err)
		}
		heads = append(heads, h)
	}

	return heads, rows.Err()
}

// TraceIDsByLogUUIDs maps each document log identity to its trace ids
func (r *SpanRepository) TraceIDsByLogUUIDs(ctx context.Context, workspaceID int64, logUUIDs []uuid.UUID, documentUUID *uuid.UUID) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string)
	if len(logUUIDs) == 0 {
		return out, nil
	}

	a := &args{}
	conditions := []string{
		"workspace_id = " + a.bind(workspaceID),
		"document_log_uuid = ANY(" + a.bind(logUUIDs) + ")",
	}
	if documentUUID != nil {
		conditions = append(conditions, "document_uuid = "+a.bind(*documentUUID))
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT document_log_uuid, trace_id
		FROM spans
		WHERE %s
	`, where(conditions))

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "spans.trace_ids_by_log"), query, a.values...)
	if err != nil {
		return nil, fmt.Errorf("failed to get trace ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			logUUID uuid.UUID
			traceID string
		)
		if err := rows.Scan(&logUUID, &traceID); err != nil {
			return nil, fmt.Errorf("failed to scan trace id: %w", err)
		}
		out[logUUID] = append(out[logUUID], traceID)
	}

	return out, rows.Err()
}

// SpansByTraceIDs retrieves every span of the given traces
func (r *SpanRepository) SpansByTraceIDs(ctx context.Context, workspaceID int64, traceIDs []string) ([]domain.Span, error) {
	if len(traceIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM spans
		WHERE workspace_id = $1 AND trace_id = ANY($2)
		ORDER BY started_at DESC, id DESC
	`, spanColumns)

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "spans.by_trace_ids"), query, workspaceID, traceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get spans by trace ids: %w", err)
	}

	return collectSpans(rows)
}
