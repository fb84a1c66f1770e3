package clickhouse

import (
	"context"
	"fmt"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/database"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// EvaluationResultRepository serves evaluation result queries from ClickHouse
type EvaluationResultRepository struct {
	db *database.ClickHouseDB
}

// NewEvaluationResultRepository creates a new evaluation result repository
func NewEvaluationResultRepository(db *database.ClickHouseDB) *EvaluationResultRepository {
	return &EvaluationResultRepository{db: db}
}

func (r *EvaluationResultRepository) spanKeys(ctx context.Context, operation, query string, args []interface{}) (domain.SpanKeySet, error) {
	rows, err := r.db.Query(ctx, operation, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query span keys: %w", err)
	}
	defer rows.Close()

	set := domain.SpanKeySet{}
	for rows.Next() {
		var k domain.SpanKey
		if err := rows.Scan(&k.SpanID, &k.TraceID); err != nil {
			return nil, fmt.Errorf("failed to scan span key: %w", err)
		}
		set.Add(k)
	}

	return set, rows.Err()
}

func buildActiveIssuesQuery(scope domain.ResultScope) (string, []interface{}) {
	conditions, args := resultScopeConditions(scope)
	conditions = append(conditions, `issue_id IN (
			SELECT id FROM issues FINAL
			WHERE workspace_id = ? AND ignored_at IS NULL AND deleted_at IS NULL
		)`)
	args = append(args, scope.WorkspaceID)

	query := fmt.Sprintf(`
		SELECT DISTINCT evaluated_span_id, evaluated_trace_id
		FROM evaluation_results FINAL
		WHERE %s
	`, where(conditions))

	return query, args
}

// SpanKeysWithActiveIssues returns the spans tied to an issue that is not
// ignored
func (r *EvaluationResultRepository) SpanKeysWithActiveIssues(ctx context.Context, scope domain.ResultScope) (domain.SpanKeySet, error) {
	query, args := buildActiveIssuesQuery(scope)
	return r.spanKeys(ctx, "results.active_issue_keys", query, args)
}

func buildOutcomeQuery(scope domain.ResultScope, passed, annotationsOnly bool) (string, []interface{}) {
	conditions, args := resultScopeConditions(scope)
	conditions = append(conditions, "has_passed = ?")
	args = append(args, passed)
	if annotationsOnly {
		conditions = append(conditions, "evaluation_type = ?")
		args = append(args, string(domain.EvaluationTypeHuman))
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT evaluated_span_id, evaluated_trace_id
		FROM evaluation_results FINAL
		WHERE %s
	`, where(conditions))

	return query, args
}

// SpanKeysWithFailedResults returns the spans with any failed result in scope
func (r *EvaluationResultRepository) SpanKeysWithFailedResults(ctx context.Context, scope domain.ResultScope) (domain.SpanKeySet, error) {
	query, args := buildOutcomeQuery(scope, false, false)
	return r.spanKeys(ctx, "results.failed_keys", query, args)
}

// SpanKeysWithPassedResults returns the spans with any passed result in
// scope, optionally counting human annotations only
func (r *EvaluationResultRepository) SpanKeysWithPassedResults(ctx context.Context, scope domain.ResultScope, annotationsOnly bool) (domain.SpanKeySet, error) {
	query, args := buildOutcomeQuery(scope, true, annotationsOnly)
	return r.spanKeys(ctx, "results.passed_keys", query, args)
}

func buildLatestResultsQuery(q *domain.ResultQuery, after *pagination.Cursor, limit int) (string, []interface{}, error) {
	conditions, args := resultScopeConditions(q.ResultScope)
	if len(q.EvaluationUUIDs) > 0 {
		conditions = append(conditions, "has(?, toString(evaluation_uuid))")
		args = append(args, uuidStrings(q.EvaluationUUIDs))
	}
	if q.HasPassed != nil {
		conditions = append(conditions, "has_passed = ?")
		args = append(args, *q.HasPassed)
	}

	keyset := "1"
	if after != nil {
		resultID, err := after.ResultID()
		if err != nil {
			return "", nil, err
		}
		keyset = "(created_at, id) < (?, ?)"
		args = append(args, after.Timestamp, resultID)
	}

	query := fmt.Sprintf(`
		SELECT id, created_at, evaluated_span_id, evaluated_trace_id, has_passed
		FROM (
			SELECT id, created_at, evaluated_span_id, evaluated_trace_id, has_passed
			FROM evaluation_results FINAL
			WHERE %s
			ORDER BY created_at DESC, id DESC
			LIMIT 1 BY evaluated_trace_id, evaluated_span_id
		)
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, where(conditions), keyset)

	return query, append(args, limit), nil
}

// ListLatestResults ranks the latest result per span, most recent first
func (r *EvaluationResultRepository) ListLatestResults(ctx context.Context, q *domain.ResultQuery, after *pagination.Cursor, limit int) ([]domain.ResultCandidate, error) {
	query, args, err := buildLatestResultsQuery(q, after, limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, "results.latest", query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest results: %w", err)
	}
	defer rows.Close()

	var candidates []domain.ResultCandidate
	for rows.Next() {
		var c domain.ResultCandidate
		if err := rows.Scan(&c.ResultID, &c.CreatedAt, &c.SpanID, &c.TraceID, &c.HasPassed); err != nil {
			return nil, fmt.Errorf("failed to scan result candidate: %w", err)
		}
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

func buildEvaluatedSpanKeysQuery(q *domain.EvaluatedSpanQuery, after *pagination.Cursor, limit int) (string, []interface{}, error) {
	conditions, args := resultScopeConditions(q.ResultScope)
	switch {
	case q.IssueID != nil:
		conditions = append(conditions, "issue_id = ?")
		args = append(args, *q.IssueID)
	case len(q.EvaluationUUIDs) > 0:
		conditions = append(conditions, "has(?, toString(evaluation_uuid))")
		args = append(args, uuidStrings(q.EvaluationUUIDs))
	default:
		return "", nil, apperrors.Validation("an issue or at least one evaluation is required")
	}
	if after != nil {
		conditions = append(conditions, "(evaluated_trace_id, evaluated_span_id) < (?, ?)")
		args = append(args, after.Value, after.ID)
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT evaluated_trace_id, evaluated_span_id
		FROM evaluation_results FINAL
		WHERE %s
		ORDER BY evaluated_trace_id DESC, evaluated_span_id DESC
		LIMIT ?
	`, where(conditions))

	return query, append(args, limit), nil
}

// ListEvaluatedSpanKeys lists the distinct spans evaluated under an issue or
// a set of evaluations
func (r *EvaluationResultRepository) ListEvaluatedSpanKeys(ctx context.Context, q *domain.EvaluatedSpanQuery, after *pagination.Cursor, limit int) ([]domain.SpanKey, error) {
	query, args, err := buildEvaluatedSpanKeysQuery(q, after, limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, "results.evaluated_keys", query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluated spans: %w", err)
	}
	defer rows.Close()

	var keys []domain.SpanKey
	for rows.Next() {
		var k domain.SpanKey
		if err := rows.Scan(&k.TraceID, &k.SpanID); err != nil {
			return nil, fmt.Errorf("failed to scan span key: %w", err)
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}
