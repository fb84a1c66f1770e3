package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func sourcePtr(s SpanSource) *SpanSource { return &s }
func uuidPtr(u uuid.UUID) *uuid.UUID     { return &u }

func TestSpanQuery_Matches(t *testing.T) {
	doc := uuid.New()
	commit := uuid.New()
	now := time.Now()

	base := func() *Span {
		return &Span{
			ID:           "s1",
			TraceID:      "t1",
			WorkspaceID:  1,
			DocumentUUID: uuidPtr(doc),
			CommitUUID:   uuidPtr(commit),
			Type:         SpanTypePrompt,
			Status:       SpanStatusOk,
			StartedAt:    now,
		}
	}

	t.Run("workspace isolation", func(t *testing.T) {
		q := &SpanQuery{WorkspaceID: 2}
		assert.False(t, q.Matches(base()))
	})

	t.Run("document filter rejects null document", func(t *testing.T) {
		q := &SpanQuery{WorkspaceID: 1, DocumentUUID: uuidPtr(doc)}
		s := base()
		s.DocumentUUID = nil
		assert.False(t, q.Matches(s))
		assert.True(t, q.Matches(base()))
	})

	t.Run("commit scope", func(t *testing.T) {
		q := &SpanQuery{WorkspaceID: 1, CommitScoped: true, CommitUUIDs: []uuid.UUID{commit}}
		assert.True(t, q.Matches(base()))

		other := &SpanQuery{WorkspaceID: 1, CommitScoped: true, CommitUUIDs: []uuid.UUID{uuid.New()}}
		assert.False(t, other.Matches(base()))
	})

	t.Run("null source matches source allow-list", func(t *testing.T) {
		q := &SpanQuery{WorkspaceID: 1, Sources: []SpanSource{SpanSourceAPI}}
		assert.True(t, q.Matches(base()))

		s := base()
		s.Source = sourcePtr(SpanSourcePlayground)
		assert.False(t, q.Matches(s))
	})

	t.Run("types", func(t *testing.T) {
		q := &SpanQuery{WorkspaceID: 1, Types: MainSpanTypes}
		s := base()
		s.Type = SpanTypeCompletion
		assert.False(t, q.Matches(s))
		assert.True(t, q.Matches(base()))
	})

	t.Run("time range", func(t *testing.T) {
		from := now.Add(time.Hour)
		q := &SpanQuery{WorkspaceID: 1, StartedAt: &TimeRange{From: &from}}
		assert.False(t, q.Matches(base()))
	})
}

func TestSpanQuery_OptimizationExclusion(t *testing.T) {
	tainted := uuid.New()
	clean := uuid.New()

	span := func(src SpanSource, exp *uuid.UUID) *Span {
		return &Span{WorkspaceID: 1, Type: SpanTypePrompt, Source: sourcePtr(src), ExperimentUUID: exp}
	}

	t.Run("optimization source always excluded", func(t *testing.T) {
		q := &SpanQuery{WorkspaceID: 1, ExcludeOptimizations: true}
		assert.False(t, q.Matches(span(SpanSourceOptimization, nil)))
	})

	t.Run("empty experiment set keeps experiment spans", func(t *testing.T) {
		q := &SpanQuery{WorkspaceID: 1, ExcludeOptimizations: true}
		assert.True(t, q.Matches(span(SpanSourceExperiment, uuidPtr(tainted))))
	})

	t.Run("tainted experiment excluded", func(t *testing.T) {
		q := &SpanQuery{WorkspaceID: 1, ExcludeOptimizations: true, OptimizationExperimentUUIDs: []uuid.UUID{tainted}}
		assert.False(t, q.Matches(span(SpanSourceExperiment, uuidPtr(tainted))))
		assert.True(t, q.Matches(span(SpanSourceExperiment, uuidPtr(clean))))
	})

	t.Run("tainted experiment uuid on non experiment source kept", func(t *testing.T) {
		q := &SpanQuery{WorkspaceID: 1, ExcludeOptimizations: true, OptimizationExperimentUUIDs: []uuid.UUID{tainted}}
		assert.True(t, q.Matches(span(SpanSourceAPI, uuidPtr(tainted))))
	})

	t.Run("opt out", func(t *testing.T) {
		q := &SpanQuery{WorkspaceID: 1, OptimizationExperimentUUIDs: []uuid.UUID{tainted}}
		assert.True(t, q.Matches(span(SpanSourceOptimization, nil)))
	})
}

func TestSpanQuery_IsEmpty(t *testing.T) {
	assert.True(t, (&SpanQuery{CommitScoped: true}).IsEmpty())
	assert.False(t, (&SpanQuery{}).IsEmpty())
}

func TestSpanKeySet_CollidingSpanIDs(t *testing.T) {
	set := NewSpanKeySet(SpanKey{SpanID: "a", TraceID: "t1"})

	assert.True(t, set.Has(SpanKey{SpanID: "a", TraceID: "t1"}))
	assert.False(t, set.Has(SpanKey{SpanID: "a", TraceID: "t2"}))

	var empty SpanKeySet
	assert.False(t, empty.Has(SpanKey{SpanID: "a", TraceID: "t1"}))
}

func TestCommitHistory(t *testing.T) {
	var nilHistory *CommitHistory
	assert.True(t, nilHistory.IsEmpty())
	assert.Nil(t, nilHistory.IDs())

	c1, c2 := uuid.New(), uuid.New()
	h := &CommitHistory{Commits: []Commit{{ID: 2, UUID: c2}, {ID: 1, UUID: c1}}}
	assert.Equal(t, []int64{2, 1}, h.IDs())
	assert.Equal(t, []uuid.UUID{c2, c1}, h.UUIDs())
}

func TestParseSpanType(t *testing.T) {
	typ, err := ParseSpanType("chat")
	assert.NoError(t, err)
	assert.True(t, typ.IsMain())

	_, err = ParseSpanType("bogus")
	assert.Error(t, err)

	assert.False(t, SpanTypeCompletion.IsMain())
}
