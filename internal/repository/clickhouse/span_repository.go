package clickhouse

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/database"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// SpanRepository serves span queries from ClickHouse
type SpanRepository struct {
	db *database.ClickHouseDB
}

// NewSpanRepository creates a new span repository
func NewSpanRepository(db *database.ClickHouseDB) *SpanRepository {
	return &SpanRepository{db: db}
}

func buildListSpansQuery(q *domain.SpanQuery, after *pagination.Cursor, limit int) (string, []interface{}) {
	conditions, args := spanConditions(q)
	if after != nil {
		conditions = append(conditions, "(started_at, id, trace_id) < (?, ?, ?)")
		args = append(args, after.Timestamp, after.ID, after.TraceID)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM spans FINAL
		WHERE %s
		ORDER BY started_at DESC, id DESC, trace_id DESC
		LIMIT ?
	`, spanColumns, where(conditions))

	return query, append(args, limit)
}

// ListSpans lists spans strictly below after, most recent first
func (r *SpanRepository) ListSpans(ctx context.Context, q *domain.SpanQuery, after *pagination.Cursor, limit int) ([]domain.Span, error) {
	if q.IsEmpty() {
		return nil, nil
	}

	query, args := buildListSpansQuery(q, after, limit)
	rows, err := r.db.Query(ctx, "spans.list", query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list spans: %w", err)
	}

	return collectSpans(rows)
}

// GetSpan retrieves a span by its full key
func (r *SpanRepository) GetSpan(ctx context.Context, workspaceID int64, key domain.SpanKey) (*domain.Span, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM spans FINAL
		WHERE workspace_id = ? AND trace_id = ? AND id = ?
		LIMIT 1
	`, spanColumns)

	rows, err := r.db.Query(ctx, "spans.get", query, workspaceID, key.TraceID, key.SpanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get span: %w", err)
	}

	spans, err := collectSpans(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get span: %w", err)
	}
	if len(spans) == 0 {
		return nil, apperrors.NotFound("span")
	}

	return &spans[0], nil
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
		FROM spans FINAL
		WHERE workspace_id = ?
			AND has(arrayZip(?, ?), (trace_id, id))
	`, spanColumns)

	rows, err := r.db.Query(ctx, "spans.get_by_keys", query, workspaceID, traceIDs, spanIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get spans by keys: %w", err)
	}

	return collectSpans(rows)
}

// buildConversationHeadsQuery orders log identities by their string form so
// the keyset agrees with cursor comparison.
func buildConversationHeadsQuery(q *domain.SpanQuery, after *pagination.Cursor, limit int) (string, []interface{}) {
	conditions, args := spanConditions(q)
	conditions = append(conditions, "document_log_uuid IS NOT NULL")

	having := ""
	if after != nil {
		having = "HAVING (last_started_at, log_key) < (?, ?)"
		args = append(args, after.Timestamp, after.ID)
	}

	query := fmt.Sprintf(`
		SELECT
			assumeNotNull(document_log_uuid) AS log_uuid,
			max(started_at) AS last_started_at,
			toString(log_uuid) AS log_key
		FROM spans FINAL
		WHERE %s
		GROUP BY log_uuid
		%s
		ORDER BY last_started_at DESC, log_key DESC
		LIMIT ?
	`, where(conditions), having)

	return query, append(args, limit)
}

// ListConversationHeads lists document log identities by their most recent
// matching span
func (r *SpanRepository) ListConversationHeads(ctx context.Context, q *domain.SpanQuery, after *pagination.Cursor, limit int) ([]domain.ConversationHead, error) {
	if q.IsEmpty() {
		return nil, nil
	}

	query, args := buildConversationHeadsQuery(q, after, limit)

	rows, err := r.db.Query(ctx, "spans.conversation_heads", query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation heads: %w", err)
	}
	defer rows.Close()

	var heads []domain.ConversationHead
	for rows.Next() {
		var (
			h   domain.ConversationHead
			key string
		)
		if err := rows.Scan(&h.DocumentLogUUID, &h.LastStartedAt, &key); err != nil {
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

	conditions := []string{"workspace_id = ?", "has(?, toString(document_log_uuid))"}
	args := []interface{}{workspaceID, uuidStrings(logUUIDs)}
	if documentUUID != nil {
		conditions = append(conditions, "document_uuid = ?")
		args = append(args, *documentUUID)
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT assumeNotNull(document_log_uuid) AS log_uuid, trace_id
		FROM spans FINAL
		WHERE %s
	`, where(conditions))

	rows, err := r.db.Query(ctx, "spans.trace_ids_by_log", query, args...)
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
		FROM spans FINAL
		WHERE workspace_id = ? AND has(?, trace_id)
		ORDER BY started_at DESC, id DESC
	`, spanColumns)

	rows, err := r.db.Query(ctx, "spans.by_trace_ids", query, workspaceID, traceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get spans by trace ids: %w", err)
	}

	return collectSpans(rows)
}
