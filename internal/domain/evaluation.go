package domain

import (
	"time"

	"github.com/google/uuid"
)

// EvaluationResult references an evaluated span by its full key. Several
// results may point at the same span over time; the latest one wins.
type EvaluationResult struct {
	ID               int64          `json:"id" ch:"id"`
	WorkspaceID      int64          `json:"workspaceId" ch:"workspace_id"`
	CommitID         int64          `json:"commitId" ch:"commit_id"`
	DocumentUUID     uuid.UUID      `json:"documentUuid" ch:"document_uuid"`
	EvaluationUUID   uuid.UUID      `json:"evaluationUuid" ch:"evaluation_uuid"`
	EvaluationType   EvaluationType `json:"evaluationType" ch:"evaluation_type"`
	EvaluatedSpanID  string         `json:"evaluatedSpanId" ch:"evaluated_span_id"`
	EvaluatedTraceID string         `json:"evaluatedTraceId" ch:"evaluated_trace_id"`
	HasPassed        *bool          `json:"hasPassed,omitempty" ch:"has_passed"`
	IssueID          *int64         `json:"issueId,omitempty" ch:"issue_id"`
	CreatedAt        time.Time      `json:"createdAt" ch:"created_at"`
}

// SpanKey returns the key of the evaluated span
func (r *EvaluationResult) SpanKey() SpanKey {
	return SpanKey{SpanID: r.EvaluatedSpanID, TraceID: r.EvaluatedTraceID}
}

// Issue groups evaluation results under a document. Ignored issues are
// inactive.
type Issue struct {
	ID           int64      `json:"id"`
	WorkspaceID  int64      `json:"workspaceId"`
	DocumentUUID uuid.UUID  `json:"documentUuid"`
	Title        string     `json:"title"`
	IgnoredAt    *time.Time `json:"ignoredAt,omitempty"`
}

// IsActive reports whether the issue still counts against its spans
func (i *Issue) IsActive() bool {
	return i.IgnoredAt == nil
}

// Optimization links the experiments of a prompt optimization run
type Optimization struct {
	ID                      int64      `json:"id"`
	WorkspaceID             int64      `json:"workspaceId"`
	BaselineExperimentUUID  *uuid.UUID `json:"baselineExperimentUuid,omitempty"`
	OptimizedExperimentUUID *uuid.UUID `json:"optimizedExperimentUuid,omitempty"`
}

// ExperimentUUIDs returns the experiments this optimization taints
func (o *Optimization) ExperimentUUIDs() []uuid.UUID {
	var out []uuid.UUID
	if o.BaselineExperimentUUID != nil {
		out = append(out, *o.BaselineExperimentUUID)
	}
	if o.OptimizedExperimentUUID != nil {
		out = append(out, *o.OptimizedExperimentUUID)
	}
	return out
}

// ResultCandidate is the latest evaluation result of one span, as ranked by
// the sampling paths.
type ResultCandidate struct {
	ResultID  int64     `json:"resultId" ch:"id"`
	CreatedAt time.Time `json:"createdAt" ch:"created_at"`
	SpanID    string    `json:"spanId" ch:"evaluated_span_id"`
	TraceID   string    `json:"traceId" ch:"evaluated_trace_id"`
	HasPassed *bool     `json:"hasPassed,omitempty" ch:"has_passed"`
}

// SpanKey returns the key of the candidate's span
func (c *ResultCandidate) SpanKey() SpanKey {
	return SpanKey{SpanID: c.SpanID, TraceID: c.TraceID}
}
