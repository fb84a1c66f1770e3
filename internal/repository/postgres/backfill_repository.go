package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/database"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// BackfillRepository reads and writes the denormalized span columns
type BackfillRepository struct {
	db      *database.PostgresDB
	commits *CommitRepository
}

// NewBackfillRepository creates a new backfill repository
func NewBackfillRepository(db *database.PostgresDB) *BackfillRepository {
	return &BackfillRepository{db: db, commits: NewCommitRepository(db)}
}

func buildBackfillQuery(after *pagination.Cursor, limit int) (string, []interface{}) {
	a := &args{}
	conditions := []string{
		"document_log_uuid IS NOT NULL",
		"(document_uuid IS NULL OR commit_uuid IS NULL OR project_id IS NULL)",
	}
	if after != nil {
		conditions = append(conditions, fmt.Sprintf("(started_at, id, trace_id) > (%s, %s, %s)",
			a.bind(after.Timestamp), a.bind(after.ID), a.bind(after.TraceID)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM spans
		WHERE %s
		ORDER BY started_at ASC, id ASC, trace_id ASC
		LIMIT %s
	`, spanColumns, where(conditions), a.bind(limit))

	return query, a.values
}

// ListSpansToBackfill returns the oldest spans after the given position that
// have a document log but miss a denormalized column
func (r *BackfillRepository) ListSpansToBackfill(ctx context.Context, after *pagination.Cursor, limit int) ([]domain.Span, error) {
	query, values := buildBackfillQuery(after, limit)

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "backfill.list_spans"), query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to list spans to backfill: %w", err)
	}

	return collectSpans(rows)
}

// GetDocumentLogs retrieves document logs by uuid
func (r *BackfillRepository) GetDocumentLogs(ctx context.Context, uuids []uuid.UUID) ([]domain.DocumentLog, error) {
	if len(uuids) == 0 {
		return nil, nil
	}

	query := `
		SELECT uuid, document_uuid, commit_id, experiment_id
		FROM document_logs
		WHERE uuid = ANY($1)
	`

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "backfill.document_logs"), query, uuids)
	if err != nil {
		return nil, fmt.Errorf("failed to get document logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.DocumentLog
	for rows.Next() {
		var l domain.DocumentLog
		if err := rows.Scan(&l.UUID, &l.DocumentUUID, &l.CommitID, &l.ExperimentID); err != nil {
			return nil, fmt.Errorf("failed to scan document log: %w", err)
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

// GetCommitsByIDs retrieves commits by id
func (r *BackfillRepository) GetCommitsByIDs(ctx context.Context, ids []int64) ([]domain.Commit, error) {
	return r.commits.GetCommitsByIDs(ctx, ids)
}

// GetExperimentUUIDs maps experiment ids to their uuids
func (r *BackfillRepository) GetExperimentUUIDs(ctx context.Context, ids []int64) (map[int64]uuid.UUID, error) {
	out := make(map[int64]uuid.UUID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "backfill.experiments"),
		`SELECT id, uuid FROM experiments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get experiments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id int64
			u  uuid.UUID
		)
		if err := rows.Scan(&id, &u); err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		out[id] = u
	}

	return out, rows.Err()
}

// UpdateSpanDenormalization writes the denormalized columns of one span. An
// experiment already set on the span is kept.
func (r *BackfillRepository) UpdateSpanDenormalization(ctx context.Context, update domain.SpanDenormalization) error {
	query := `
		UPDATE spans
		SET project_id = $3,
			document_uuid = $4,
			commit_uuid = $5,
			experiment_uuid = COALESCE(experiment_uuid, $6)
		WHERE id = $1 AND trace_id = $2
	`

	_, err := r.db.Pool.Exec(database.WithOperation(ctx, "backfill.update_span"), query,
		update.Key.SpanID,
		update.Key.TraceID,
		update.ProjectID,
		update.DocumentUUID,
		update.CommitUUID,
		update.ExperimentUUID,
	)
	if err != nil {
		return fmt.Errorf("failed to update span: %w", err)
	}

	return nil
}
