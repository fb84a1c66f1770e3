package clickhouse

import (
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/spanquery/spanquery/internal/domain"
)

const spanColumns = `id, trace_id, workspace_id, project_id, document_uuid, commit_uuid,
	experiment_uuid, document_log_uuid, type, source, status, started_at, ended_at,
	duration_ms, tokens, cost`

func scanSpan(rows driver.Rows) (domain.Span, error) {
	var (
		s      domain.Span
		typ    string
		status string
	)
	var source *string
	err := rows.Scan(
		&s.ID,
		&s.TraceID,
		&s.WorkspaceID,
		&s.ProjectID,
		&s.DocumentUUID,
		&s.CommitUUID,
		&s.ExperimentUUID,
		&s.DocumentLogUUID,
		&typ,
		&source,
		&status,
		&s.StartedAt,
		&s.EndedAt,
		&s.DurationMs,
		&s.Tokens,
		&s.Cost,
	)
	if err != nil {
		return s, err
	}
	s.Type = domain.SpanType(typ)
	s.Status = domain.SpanStatus(status)
	if source != nil {
		src := domain.SpanSource(*source)
		s.Source = &src
	}
	return s, nil
}

func collectSpans(rows driver.Rows) ([]domain.Span, error) {
	defer rows.Close()

	var spans []domain.Span
	for rows.Next() {
		s, err := scanSpan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan span: %w", err)
		}
		spans = append(spans, s)
	}
	return spans, rows.Err()
}

// uuidStrings renders uuids for has() lookups. Array(UUID) parameters do
// not bind, so uuid columns are compared through toString.
func uuidStrings(list []uuid.UUID) []string {
	out := make([]string, len(list))
	for i, u := range list {
		out[i] = u.String()
	}
	return out
}

// spanConditions compiles the shared span predicates. Spans without a
// source match any source allow-list.
func spanConditions(q *domain.SpanQuery) ([]string, []interface{}) {
	conditions := []string{"workspace_id = ?"}
	args := []interface{}{q.WorkspaceID}

	if q.DocumentUUID != nil {
		conditions = append(conditions, "document_uuid = ?")
		args = append(args, *q.DocumentUUID)
	}

	if q.CommitScoped {
		conditions = append(conditions, "has(?, toString(commit_uuid))")
		args = append(args, uuidStrings(q.CommitUUIDs))
	}

	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, "has(?, type)")
		args = append(args, types)
	}

	if len(q.Sources) > 0 {
		sources := make([]string, len(q.Sources))
		for i, s := range q.Sources {
			sources[i] = string(s)
		}
		conditions = append(conditions, "(source IS NULL OR has(?, source))")
		args = append(args, sources)
	}

	if len(q.ExperimentUUIDs) > 0 {
		conditions = append(conditions, "has(?, toString(experiment_uuid))")
		args = append(args, uuidStrings(q.ExperimentUUIDs))
	}

	if q.StartedAt != nil {
		if q.StartedAt.From != nil {
			conditions = append(conditions, "started_at >= ?")
			args = append(args, *q.StartedAt.From)
		}
		if q.StartedAt.To != nil {
			conditions = append(conditions, "started_at <= ?")
			args = append(args, *q.StartedAt.To)
		}
	}

	if q.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*q.Status))
	}

	if q.ExcludeOptimizations {
		conditions = append(conditions, "ifNull(source, '') != 'optimization'")
		if len(q.OptimizationExperimentUUIDs) > 0 {
			conditions = append(conditions,
				"(ifNull(source, '') != 'experiment' OR experiment_uuid IS NULL OR NOT has(?, toString(experiment_uuid)))")
			args = append(args, uuidStrings(q.OptimizationExperimentUUIDs))
		}
	}

	return conditions, args
}

// resultScopeConditions compiles a result scope against evaluation_results
func resultScopeConditions(scope domain.ResultScope) ([]string, []interface{}) {
	conditions := []string{"workspace_id = ?", "deleted_at IS NULL"}
	args := []interface{}{scope.WorkspaceID}

	if len(scope.CommitIDs) > 0 {
		conditions = append(conditions, "has(?, commit_id)")
		args = append(args, scope.CommitIDs)
	}

	if scope.DocumentUUID != nil {
		conditions = append(conditions, "document_uuid = ?")
		args = append(args, *scope.DocumentUUID)
	}

	return conditions, args
}

func where(conditions []string) string {
	return strings.Join(conditions, " AND ")
}
