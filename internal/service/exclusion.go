package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// exclusionSets holds the span keys a review listing excludes or requires.
// A nil required set means nothing is required.
type exclusionSets struct {
	activeIssues domain.SpanKeySet
	failed       domain.SpanKeySet
	required     domain.SpanKeySet
}

// admits reports whether a span survives the exclusion rules. Exclusion
// wins over requirement.
func (e *exclusionSets) admits(k domain.SpanKey) bool {
	if e.activeIssues.Has(k) || e.failed.Has(k) {
		return false
	}
	if e.required != nil && !e.required.Has(k) {
		return false
	}
	return true
}

// requiresNothingAvailable reports whether a requirement was asked for and
// nothing can satisfy it.
func (e *exclusionSets) requiresNothingAvailable() bool {
	return e.required != nil && e.required.Len() == 0
}

// computeExclusionSets resolves the sets for a scope. The lookups are
// independent and run concurrently.
func computeExclusionSets(ctx context.Context, results EvaluationQueryBackend, scope domain.ResultScope, filters domain.SpanFilters) (*exclusionSets, error) {
	sets := &exclusionSets{}
	requirePassed := filters.RequirePassedResults || filters.RequirePassedAnnotations

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keys, err := results.SpanKeysWithActiveIssues(gctx, scope)
		if err != nil {
			return fmt.Errorf("failed to get spans with active issues: %w", err)
		}
		sets.activeIssues = keys
		return nil
	})
	if filters.ExcludeFailedResults {
		g.Go(func() error {
			keys, err := results.SpanKeysWithFailedResults(gctx, scope)
			if err != nil {
				return fmt.Errorf("failed to get spans with failed results: %w", err)
			}
			sets.failed = keys
			return nil
		})
	}
	if requirePassed {
		g.Go(func() error {
			keys, err := results.SpanKeysWithPassedResults(gctx, scope, filters.RequirePassedAnnotations)
			if err != nil {
				return fmt.Errorf("failed to get spans with passed results: %w", err)
			}
			if keys == nil {
				keys = domain.SpanKeySet{}
			}
			sets.required = keys
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}

func spanCursor(s domain.Span) pagination.Cursor {
	return pagination.SpanCursor(s.StartedAt, s.ID, s.TraceID)
}

// reviewLoop scans main-span candidates in listing order and keeps those the
// exclusion sets admit.
func reviewLoop(spans SpanQueryBackend, q *domain.SpanQuery, sets *exclusionSets) candidateLoop[domain.Span, domain.Span] {
	return candidateLoop[domain.Span, domain.Span]{
		operation: "list_spans_for_review",
		fetch: func(ctx context.Context, after *pagination.Cursor, n int) ([]domain.Span, error) {
			return spans.ListSpans(ctx, q, after, n)
		},
		keyOf: spanCursor,
		resolve: func(_ context.Context, batch []domain.Span) ([]keyed[domain.Span], error) {
			kept := make([]keyed[domain.Span], 0, len(batch))
			for _, s := range batch {
				if sets.admits(s.Key()) {
					kept = append(kept, keyed[domain.Span]{item: s, key: spanCursor(s)})
				}
			}
			return kept, nil
		},
	}
}

// resolveKeys loads the spans behind candidate keys and keeps, in candidate
// order, those matching q and absent from skip. Keys that no longer resolve
// are dropped.
func resolveKeys(ctx context.Context, spans SpanQueryBackend, q *domain.SpanQuery, keys []domain.SpanKey, skip domain.SpanKeySet) ([]*domain.Span, error) {
	wanted := make([]domain.SpanKey, 0, len(keys))
	seen := make(domain.SpanKeySet, len(keys))
	for _, k := range keys {
		if skip.Has(k) || seen.Has(k) {
			continue
		}
		seen.Add(k)
		wanted = append(wanted, k)
	}
	out := make([]*domain.Span, len(keys))
	if len(wanted) == 0 {
		return out, nil
	}

	rows, err := spans.GetSpansByKeys(ctx, q.WorkspaceID, wanted)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve spans: %w", err)
	}
	byKey := make(map[domain.SpanKey]*domain.Span, len(rows))
	for i := range rows {
		byKey[rows[i].Key()] = &rows[i]
	}

	emitted := make(domain.SpanKeySet, len(wanted))
	for i, k := range keys {
		s, ok := byKey[k]
		if !ok || skip.Has(k) || emitted.Has(k) || !q.Matches(s) {
			continue
		}
		emitted.Add(k)
		out[i] = s
	}
	return out, nil
}

// resultLoop ranks the latest result per span and resolves each candidate
// to its span, dropping spans in skip or failing q.
func resultLoop(operation string, b Backends, rq *domain.ResultQuery, q *domain.SpanQuery, skip domain.SpanKeySet) candidateLoop[domain.ResultCandidate, domain.Span] {
	keyOf := func(c domain.ResultCandidate) pagination.Cursor {
		return pagination.ResultCursor(c.CreatedAt, c.ResultID)
	}
	return candidateLoop[domain.ResultCandidate, domain.Span]{
		operation: operation,
		fetch: func(ctx context.Context, after *pagination.Cursor, n int) ([]domain.ResultCandidate, error) {
			return b.Results.ListLatestResults(ctx, rq, after, n)
		},
		keyOf: keyOf,
		resolve: func(ctx context.Context, batch []domain.ResultCandidate) ([]keyed[domain.Span], error) {
			keys := make([]domain.SpanKey, len(batch))
			for i := range batch {
				keys[i] = batch[i].SpanKey()
			}
			resolved, err := resolveKeys(ctx, b.Spans, q, keys, skip)
			if err != nil {
				return nil, err
			}
			kept := make([]keyed[domain.Span], 0, len(batch))
			for i, s := range resolved {
				if s != nil {
					kept = append(kept, keyed[domain.Span]{item: *s, key: keyOf(batch[i])})
				}
			}
			return kept, nil
		},
	}
}

// evaluatedLoop walks the distinct spans evaluated under an issue or a set
// of evaluations and resolves them to spans matching q.
func evaluatedLoop(operation string, b Backends, eq *domain.EvaluatedSpanQuery, q *domain.SpanQuery) candidateLoop[domain.SpanKey, domain.Span] {
	keyOf := func(k domain.SpanKey) pagination.Cursor {
		return pagination.TraceCursor(k.TraceID, k.SpanID)
	}
	return candidateLoop[domain.SpanKey, domain.Span]{
		operation: operation,
		fetch: func(ctx context.Context, after *pagination.Cursor, n int) ([]domain.SpanKey, error) {
			return b.Results.ListEvaluatedSpanKeys(ctx, eq, after, n)
		},
		keyOf: keyOf,
		resolve: func(ctx context.Context, batch []domain.SpanKey) ([]keyed[domain.Span], error) {
			resolved, err := resolveKeys(ctx, b.Spans, q, batch, nil)
			if err != nil {
				return nil, err
			}
			kept := make([]keyed[domain.Span], 0, len(batch))
			for i, s := range resolved {
				if s != nil {
					kept = append(kept, keyed[domain.Span]{item: *s, key: keyOf(batch[i])})
				}
			}
			return kept, nil
		},
	}
}
