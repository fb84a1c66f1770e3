package postgres

import (
	"context"
	"fmt"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/database"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// EvaluationResultRepository serves evaluation result queries from PostgreSQL
type EvaluationResultRepository struct {
	db *database.PostgresDB
}

// NewEvaluationResultRepository creates a new evaluation result repository
func NewEvaluationResultRepository(db *database.PostgresDB) *EvaluationResultRepository {
	return &EvaluationResultRepository{db: db}
}

func (r *EvaluationResultRepository) spanKeys(ctx context.Context, operation, query string, values []interface{}) (domain.SpanKeySet, error) {
	rows, err := r.db.Pool.Query(database.WithOperation(ctx, operation), query, values...)
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
	a := &args{}
	conditions := append(resultScopeConditions(scope, a), "i.ignored_at IS NULL", "i.deleted_at IS NULL")

	query := fmt.Sprintf(`
		SELECT DISTINCT r.evaluated_span_id, r.evaluated_trace_id
		FROM evaluation_results r
		JOIN issues i ON i.id = r.issue_id
		WHERE %s
	`, where(conditions))

	return query, a.values
}

// SpanKeysWithActiveIssues returns the spans tied to an issue that is not
// ignored
func (r *EvaluationResultRepository) SpanKeysWithActiveIssues(ctx context.Context, scope domain.ResultScope) (domain.SpanKeySet, error) {
	query, values := buildActiveIssuesQuery(scope)
	return r.spanKeys(ctx, "results.active_issue_keys", query, values)
}

func buildOutcomeQuery(scope domain.ResultScope, passed, annotationsOnly bool) (string, []interface{}) {
	a := &args{}
	conditions := append(resultScopeConditions(scope, a), "r.has_passed = "+a.bind(passed))
	if annotationsOnly {
		conditions = append(conditions, "r.evaluation_type = "+a.bind(string(domain.EvaluationTypeHuman)))
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT r.evaluated_span_id, r.evaluated_trace_id
		FROM evaluation_results r
		WHERE %s
	`, where(conditions))

	return query, a.values
}

// SpanKeysWithFailedResults returns the spans with any failed result in scope
func (r *EvaluationResultRepository) SpanKeysWithFailedResults(ctx context.Context, scope domain.ResultScope) (domain.SpanKeySet, error) {
	query, values := buildOutcomeQuery(scope, false, false)
	return r.spanKeys(ctx, "results.failed_keys", query, values)
}

// SpanKeysWithPassedResults returns the spans with any passed result in
// scope, optionally counting human annotations only
func (r *EvaluationResultRepository) SpanKeysWithPassedResults(ctx context.Context, scope domain.ResultScope, annotationsOnly bool) (domain.SpanKeySet, error) {
	query, values := buildOutcomeQuery(scope, true, annotationsOnly)
	return r.spanKeys(ctx, "results.passed_keys", query, values)
}

func buildLatestResultsQuery(q *domain.ResultQuery, after *pagination.Cursor, limit int) (string, []interface{}, error) {
	a := &args{}
	conditions := resultScopeConditions(q.ResultScope, a)
	if len(q.EvaluationUUIDs) > 0 {
		conditions = append(conditions, "r.evaluation_uuid = ANY("+a.bind(q.EvaluationUUIDs)+")")
	}
	if q.HasPassed != nil {
		conditions = append(conditions, "r.has_passed = "+a.bind(*q.HasPassed))
	}

	keyset := "TRUE"
	if after != nil {
		resultID, err := after.ResultID()
		if err != nil {
			return "", nil, err
		}
		keyset = fmt.Sprintf("(created_at, id) < (%s, %s)", a.bind(after.Timestamp), a.bind(resultID))
	}

	query := fmt.Sprintf(`
		SELECT id, created_at, evaluated_span_id, evaluated_trace_id, has_passed
		FROM (
			SELECT DISTINCT ON (r.evaluated_trace_id, r.evaluated_span_id)
				r.id, r.created_at, r.evaluated_span_id, r.evaluated_trace_id, r.has_passed
			FROM evaluation_results r
			WHERE %s
			ORDER BY r.evaluated_trace_id, r.evaluated_span_id, r.created_at DESC, r.id DESC
		) latest
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT %s
	`, where(conditions), keyset, a.bind(limit))

	return query, a.values, nil
}

// ListLatestResults ranks the latest result per span, most recent first
func (r *EvaluationResultRepository) ListLatestResults(ctx context.Context, q *domain.ResultQuery, after *pagination.Cursor, limit int) ([]domain.ResultCandidate, error) {
	query, values, err := buildLatestResultsQuery(q, after, limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "results.latest"), query, values...)
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
	a := &args{}
	conditions := resultScopeConditions(q.ResultScope, a)
	switch {
	case q.IssueID != nil:
		conditions = append(conditions, "r.issue_id = "+a.bind(*q.IssueID))
	case len(q.EvaluationUUIDs) > 0:
		conditions = append(conditions, "r.evaluation_uuid = ANY("+a.bind(q.EvaluationUUIDs)+")")
	default:
		return "", nil, apperrors.Validation("an issue or at least one evaluation is required")
	}
	if after != nil {
		conditions = append(conditions, fmt.Sprintf("(r.evaluated_trace_id, r.evaluated_span_id) < (%s, %s)",
			a.bind(after.Value), a.bind(after.ID)))
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT r.evaluated_trace_id, r.evaluated_span_id
		FROM evaluation_results r
		WHERE %s
		ORDER BY r.evaluated_trace_id DESC, r.evaluated_span_id DESC
		LIMIT %s
	`, where(conditions), a.bind(limit))

	return query, a.values, nil
}

// ListEvaluatedSpanKeys lists the distinct spans evaluated under an issue or
// a set of evaluations
func (r *EvaluationResultRepository) ListEvaluatedSpanKeys(ctx context.Context, q *domain.EvaluatedSpanQuery, after *pagination.Cursor, limit int) ([]domain.SpanKey, error) {
	query, values, err := buildEvaluatedSpanKeysQuery(q, after, limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "results.evaluated_keys"), query, values...)
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
