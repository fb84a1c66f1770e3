package service

import (
	"github.com/google/uuid"

	"github.com/spanquery/spanquery/internal/domain"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
)

// QueryKind distinguishes listings from single-span lookups. Only listings
// carry the optimization exclusion.
type QueryKind int

const (
	KindListing QueryKind = iota
	KindLookup
)

// BuildSpanQuery validates caller filters and assembles the predicate set
// shared by every span query. It performs no I/O, so invalid input is
// rejected before any backend round-trip.
func BuildSpanQuery(scope domain.Scope, filters domain.SpanFilters, kind QueryKind) (*domain.SpanQuery, error) {
	if scope.WorkspaceID <= 0 {
		return nil, apperrors.Validation("workspace id is required")
	}

	q := &domain.SpanQuery{
		WorkspaceID:  scope.WorkspaceID,
		DocumentUUID: scope.DocumentUUID,
		CommitScoped: scope.CommitUUID != nil,
	}

	if len(filters.Types) == 0 {
		q.Types = append([]domain.SpanType(nil), domain.MainSpanTypes...)
	} else {
		for _, raw := range filters.Types {
			t, err := domain.ParseSpanType(raw)
			if err != nil {
				return nil, apperrors.Validation(err.Error())
			}
			q.Types = append(q.Types, t)
		}
	}

	for _, raw := range filters.Sources {
		src, err := domain.ParseSpanSource(raw)
		if err != nil {
			return nil, apperrors.Validation(err.Error())
		}
		q.Sources = append(q.Sources, src)
	}

	if len(filters.ExperimentUUIDs) > 0 {
		q.ExperimentUUIDs = append([]uuid.UUID(nil), filters.ExperimentUUIDs...)
	}

	if !filters.CreatedAt.IsZero() {
		r := filters.CreatedAt
		if r.From != nil && r.To != nil && r.From.After(*r.To) {
			return nil, apperrors.Validation("createdAt range start is after its end")
		}
		q.StartedAt = &domain.TimeRange{From: r.From, To: r.To}
	}

	if filters.Status != "" {
		status := domain.SpanStatus(filters.Status)
		if !status.IsValid() {
			return nil, apperrors.Validation("unknown span status " + filters.Status)
		}
		q.Status = &status
	}

	if kind == KindListing && !filters.IncludeOptimizations {
		q.ExcludeOptimizations = true
	}

	return q, nil
}

// ApplyCallScope binds the state resolved once per call to a query: the
// commit lineage and the optimization experiment set.
func ApplyCallScope(q *domain.SpanQuery, history *domain.CommitHistory, optimizationExperiments []uuid.UUID) *domain.SpanQuery {
	scoped := *q
	if scoped.CommitScoped {
		scoped.CommitUUIDs = history.UUIDs()
	}
	if scoped.ExcludeOptimizations && len(optimizationExperiments) > 0 {
		scoped.OptimizationExperimentUUIDs = optimizationExperiments
	}
	return &scoped
}
