package domain

import (
	"time"

	"github.com/google/uuid"
)

// Scope selects what a listing is about. WorkspaceID is always required;
// the other fields are required by the operations that use them.
type Scope struct {
	WorkspaceID     int64       `json:"workspaceId" validate:"required,gt=0"`
	CommitUUID      *uuid.UUID  `json:"commitUuid,omitempty"`
	DocumentUUID    *uuid.UUID  `json:"documentUuid,omitempty"`
	IssueID         *int64      `json:"issueId,omitempty"`
	EvaluationUUIDs []uuid.UUID `json:"evaluationUuids,omitempty"`
}

// TimeRange is an inclusive range. Either bound may be open.
type TimeRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// IsZero reports whether neither bound is set
func (r *TimeRange) IsZero() bool {
	return r == nil || (r.From == nil && r.To == nil)
}

// Contains reports whether t falls inside the range
func (r *TimeRange) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// SpanFilters is raw caller input for span listings
type SpanFilters struct {
	Types                    []string    `json:"types,omitempty"`
	Sources                  []string    `json:"sources,omitempty"`
	ExperimentUUIDs          []uuid.UUID `json:"experimentUuids,omitempty"`
	CreatedAt                *TimeRange  `json:"createdAt,omitempty"`
	Status                   string      `json:"status,omitempty"`
	IncludeOptimizations     bool        `json:"includeOptimizations,omitempty"`
	ExcludeFailedResults     bool        `json:"excludeFailedResults,omitempty"`
	RequirePassedResults     bool        `json:"requirePassedResults,omitempty"`
	RequirePassedAnnotations bool        `json:"requirePassedAnnotations,omitempty"`
}

// SpanQuery is the validated predicate set shared by every span query.
// Both backends compile it to SQL; Matches evaluates it in process.
type SpanQuery struct {
	WorkspaceID  int64
	DocumentUUID *uuid.UUID

	// CommitScoped restricts spans to CommitUUIDs. A scoped query with no
	// commits matches nothing and must not reach a backend.
	CommitScoped bool
	CommitUUIDs  []uuid.UUID

	Types           []SpanType
	Sources         []SpanSource
	ExperimentUUIDs []uuid.UUID
	StartedAt       *TimeRange
	Status          *SpanStatus

	// ExcludeOptimizations drops spans with source optimization and, when
	// OptimizationExperimentUUIDs is non-empty, experiment spans of those
	// experiments.
	ExcludeOptimizations        bool
	OptimizationExperimentUUIDs []uuid.UUID
}

// IsEmpty reports whether the query can only match nothing
func (q *SpanQuery) IsEmpty() bool {
	return q.CommitScoped && len(q.CommitUUIDs) == 0
}

// WithStartedAt returns a copy of the query with a different time range
func (q SpanQuery) WithStartedAt(r *TimeRange) *SpanQuery {
	q.StartedAt = r
	return &q
}

// IsOptimizationTainted reports whether the span came from an optimization
// run or from an experiment that backs one.
func (q *SpanQuery) IsOptimizationTainted(s *Span) bool {
	if s.Source == nil {
		return false
	}
	switch *s.Source {
	case SpanSourceOptimization:
		return true
	case SpanSourceExperiment:
		return s.ExperimentUUID != nil && len(q.OptimizationExperimentUUIDs) > 0 &&
			containsUUID(q.OptimizationExperimentUUIDs, *s.ExperimentUUID)
	}
	return false
}

// Matches evaluates the query against a span
func (q *SpanQuery) Matches(s *Span) bool {
	if s.WorkspaceID != q.WorkspaceID {
		return false
	}
	if q.DocumentUUID != nil && (s.DocumentUUID == nil || *s.DocumentUUID != *q.DocumentUUID) {
		return false
	}
	if q.CommitScoped && (s.CommitUUID == nil || !containsUUID(q.CommitUUIDs, *s.CommitUUID)) {
		return false
	}
	if len(q.Types) > 0 && !containsType(q.Types, s.Type) {
		return false
	}
	// unset sources match any allow-list
	if len(q.Sources) > 0 && s.Source != nil && !containsSource(q.Sources, *s.Source) {
		return false
	}
	if len(q.ExperimentUUIDs) > 0 && (s.ExperimentUUID == nil || !containsUUID(q.ExperimentUUIDs, *s.ExperimentUUID)) {
		return false
	}
	if !q.StartedAt.Contains(s.StartedAt) {
		return false
	}
	if q.Status != nil && s.Status != *q.Status {
		return false
	}
	if q.ExcludeOptimizations && q.IsOptimizationTainted(s) {
		return false
	}
	return true
}

// ResultScope scopes evaluation result queries
type ResultScope struct {
	WorkspaceID  int64
	CommitIDs    []int64
	DocumentUUID *uuid.UUID
}

// ResultQuery selects the latest result per span for the sampling paths.
// EvaluationUUIDs and HasPassed filter results before the latest one per
// span is picked.
type ResultQuery struct {
	ResultScope
	EvaluationUUIDs []uuid.UUID
	HasPassed       *bool
}

// EvaluatedSpanQuery selects the distinct spans evaluated under an issue or
// a set of evaluations.
type EvaluatedSpanQuery struct {
	ResultScope
	IssueID         *int64
	EvaluationUUIDs []uuid.UUID
}

func containsUUID(list []uuid.UUID, v uuid.UUID) bool {
	for _, u := range list {
		if u == v {
			return true
		}
	}
	return false
}

func containsType(list []SpanType, v SpanType) bool {
	for _, t := range list {
		if t == v {
			return true
		}
	}
	return false
}

func containsSource(list []SpanSource, v SpanSource) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
