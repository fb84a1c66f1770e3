package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanquery/spanquery/internal/domain"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
)

func TestBuildSpanQuery(t *testing.T) {
	scope := domain.Scope{WorkspaceID: 1}

	t.Run("defaults to main types and excludes optimizations", func(t *testing.T) {
		q, err := BuildSpanQuery(scope, domain.SpanFilters{}, KindListing)
		require.NoError(t, err)
		assert.Equal(t, domain.MainSpanTypes, q.Types)
		assert.True(t, q.ExcludeOptimizations)
		assert.Nil(t, q.Status)
		assert.Nil(t, q.StartedAt)
	})

	t.Run("lookups never exclude optimizations", func(t *testing.T) {
		q, err := BuildSpanQuery(scope, domain.SpanFilters{}, KindLookup)
		require.NoError(t, err)
		assert.False(t, q.ExcludeOptimizations)
	})

	t.Run("maps filters", func(t *testing.T) {
		from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		exp := uuid.New()
		q, err := BuildSpanQuery(scope, domain.SpanFilters{
			Types:                []string{"completion"},
			Sources:              []string{"api", "playground"},
			ExperimentUUIDs:      []uuid.UUID{exp},
			CreatedAt:            &domain.TimeRange{From: &from},
			Status:               "error",
			IncludeOptimizations: true,
		}, KindListing)
		require.NoError(t, err)
		assert.Equal(t, []domain.SpanType{domain.SpanTypeCompletion}, q.Types)
		assert.Equal(t, []domain.SpanSource{domain.SpanSourceAPI, domain.SpanSourcePlayground}, q.Sources)
		assert.Equal(t, []uuid.UUID{exp}, q.ExperimentUUIDs)
		require.NotNil(t, q.StartedAt)
		assert.Equal(t, from, *q.StartedAt.From)
		require.NotNil(t, q.Status)
		assert.Equal(t, domain.SpanStatusError, *q.Status)
		assert.False(t, q.ExcludeOptimizations)
	})

	t.Run("commit scope marks the query", func(t *testing.T) {
		commit := uuid.New()
		q, err := BuildSpanQuery(domain.Scope{WorkspaceID: 1, CommitUUID: &commit}, domain.SpanFilters{}, KindListing)
		require.NoError(t, err)
		assert.True(t, q.CommitScoped)
		assert.True(t, q.IsEmpty())
	})

	invalid := []struct {
		name    string
		scope   domain.Scope
		filters domain.SpanFilters
	}{
		{"missing workspace", domain.Scope{}, domain.SpanFilters{}},
		{"unknown type", scope, domain.SpanFilters{Types: []string{"nope"}}},
		{"unknown source", scope, domain.SpanFilters{Sources: []string{"nope"}}},
		{"unknown status", scope, domain.SpanFilters{Status: "nope"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSpanQuery(tt.scope, tt.filters, KindListing)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestApplyCallScope(t *testing.T) {
	c1, c2, exp := uuid.New(), uuid.New(), uuid.New()
	history := &domain.CommitHistory{Commits: []domain.Commit{{ID: 2, UUID: c2}, {ID: 1, UUID: c1}}}

	q := &domain.SpanQuery{WorkspaceID: 1, CommitScoped: true, ExcludeOptimizations: true}
	scoped := ApplyCallScope(q, history, []uuid.UUID{exp})

	assert.Equal(t, []uuid.UUID{c2, c1}, scoped.CommitUUIDs)
	assert.Equal(t, []uuid.UUID{exp}, scoped.OptimizationExperimentUUIDs)
	assert.Nil(t, q.CommitUUIDs, "input query is not modified")

	unscoped := ApplyCallScope(&domain.SpanQuery{WorkspaceID: 1}, nil, []uuid.UUID{exp})
	assert.Nil(t, unscoped.CommitUUIDs)
	assert.Nil(t, unscoped.OptimizationExperimentUUIDs)
}
