package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spanquery/spanquery/internal/domain"
)

// args collects positional query parameters
type args struct {
	values []interface{}
}

// bind appends a parameter and returns its placeholder
func (a *args) bind(v interface{}) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

const spanColumns = `id, trace_id, workspace_id, project_id, document_uuid, commit_uuid,
	experiment_uuid, document_log_uuid, type, source, status, started_at, ended_at,
	duration_ms, tokens, cost`

func scanSpan(row pgx.Row) (domain.Span, error) {
	var (
		s      domain.Span
		typ    string
		source *string
		status string
	)
	err := row.Scan(
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

func collectSpans(rows pgx.Rows) ([]domain.Span, error) {
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

// spanConditions compiles the shared span predicates. Spans without a
// source match any source allow-list.
func spanConditions(q *domain.SpanQuery, a *args) []string {
	conditions := []string{"workspace_id = " + a.bind(q.WorkspaceID)}

	if q.DocumentUUID != nil {
		conditions = append(conditions, "document_uuid = "+a.bind(*q.DocumentUUID))
	}
	if q.CommitScoped {
		conditions = append(conditions, "commit_uuid = ANY("+a.bind(q.CommitUUIDs)+")")
	}
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, "type = ANY("+a.bind(types)+")")
	}
	if len(q.Sources) > 0 {
		sources := make([]string, len(q.Sources))
		for i, s := range q.Sources {
			sources[i] = string(s)
		}
		conditions = append(conditions, "(source IS NULL OR source = ANY("+a.bind(sources)+"))")
	}
	if len(q.ExperimentUUIDs) > 0 {
		conditions = append(conditions, "experiment_uuid = ANY("+a.bind(q.ExperimentUUIDs)+")")
	}
	if q.StartedAt != nil {
		if q.StartedAt.From != nil {
			conditions = append(conditions, "started_at >= "+a.bind(*q.StartedAt.From))
		}
		if q.StartedAt.To != nil {
			conditions = append(conditions, "started_at <= "+a.bind(*q.StartedAt.To))
		}
	}
	if q.Status != nil {
		conditions = append(conditions, "status = "+a.bind(string(*q.Status)))
	}
	if q.ExcludeOptimizations {
		conditions = append(conditions, "source IS DISTINCT FROM 'optimization'")
		if len(q.OptimizationExperimentUUIDs) > 0 {
			conditions = append(conditions, fmt.Sprintf(
				"(source IS DISTINCT FROM 'experiment' OR experiment_uuid IS NULL OR NOT (experiment_uuid = ANY(%s)))",
				a.bind(q.OptimizationExperimentUUIDs),
			))
		}
	}

	return conditions
}

// resultScopeConditions compiles a result scope against evaluation_results
// aliased as r.
func resultScopeConditions(scope domain.ResultScope, a *args) []string {
	conditions := []string{
		"r.workspace_id = " + a.bind(scope.WorkspaceID),
		"r.deleted_at IS NULL",
	}
	if len(scope.CommitIDs) > 0 {
		conditions = append(conditions, "r.commit_id = ANY("+a.bind(scope.CommitIDs)+")")
	}
	if scope.DocumentUUID != nil {
		conditions = append(conditions, "r.document_uuid = "+a.bind(*scope.DocumentUUID))
	}
	return conditions
}

func where(conditions []string) string {
	return strings.Join(conditions, " AND ")
}
