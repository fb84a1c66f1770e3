package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/spanquery/spanquery/internal/domain"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// fakeBackend is an in-memory SpanQueryBackend and EvaluationQueryBackend.
// It evaluates queries with SpanQuery.Matches and pages with the same keys
// the SQL backends order by.
type fakeBackend struct {
	mu      sync.Mutex
	spans   []domain.Span
	results []domain.EvaluationResult
	issues  map[int64]domain.Issue
	err     error

	calls        map[string]int
	emptyQueries int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{issues: make(map[int64]domain.Issue), calls: make(map[string]int)}
}

func (f *fakeBackend) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.err
}

func (f *fakeBackend) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeBackend) ListSpans(_ context.Context, q *domain.SpanQuery, after *pagination.Cursor, limit int) ([]domain.Span, error) {
	if err := f.record("ListSpans"); err != nil {
		return nil, err
	}
	if q.IsEmpty() {
		f.mu.Lock()
		f.emptyQueries++
		f.mu.Unlock()
		return nil, nil
	}

	var out []domain.Span
	for i := range f.spans {
		s := f.spans[i]
		if q.Matches(&s) && pagination.Before(pagination.ShapeSpan, spanCursor(s), after) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return pagination.Compare(pagination.ShapeSpan, spanCursor(out[i]), spanCursor(out[j])) > 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBackend) GetSpan(_ context.Context, workspaceID int64, key domain.SpanKey) (*domain.Span, error) {
	if err := f.record("GetSpan"); err != nil {
		return nil, err
	}
	for i := range f.spans {
		if f.spans[i].WorkspaceID == workspaceID && f.spans[i].Key() == key {
			s := f.spans[i]
			return &s, nil
		}
	}
	return nil, apperrors.NotFound("span")
}

func (f *fakeBackend) GetSpansByKeys(_ context.Context, workspaceID int64, keys []domain.SpanKey) ([]domain.Span, error) {
	if err := f.record("GetSpansByKeys"); err != nil {
		return nil, err
	}
	wanted := domain.NewSpanKeySet(keys...)
	var out []domain.Span
	for _, s := range f.spans {
		if s.WorkspaceID == workspaceID && wanted.Has(s.Key()) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeBackend) ListConversationHeads(_ context.Context, q *domain.SpanQuery, after *pagination.Cursor, limit int) ([]domain.ConversationHead, error) {
	if err := f.record("ListConversationHeads"); err != nil {
		return nil, err
	}
	latest := make(map[uuid.UUID]time.Time)
	for i := range f.spans {
		s := f.spans[i]
		if s.DocumentLogUUID == nil || !q.Matches(&s) {
			continue
		}
		if t, ok := latest[*s.DocumentLogUUID]; !ok || s.StartedAt.After(t) {
			latest[*s.DocumentLogUUID] = s.StartedAt
		}
	}

	headKey := func(h domain.ConversationHead) pagination.Cursor {
		return pagination.ConversationCursor(h.LastStartedAt, h.DocumentLogUUID.String())
	}
	var heads []domain.ConversationHead
	for logUUID, t := range latest {
		h := domain.ConversationHead{DocumentLogUUID: logUUID, LastStartedAt: t}
		if pagination.Before(pagination.ShapeConversation, headKey(h), after) {
			heads = append(heads, h)
		}
	}
	sort.Slice(heads, func(i, j int) bool {
		return pagination.Compare(pagination.ShapeConversation, headKey(heads[i]), headKey(heads[j])) > 0
	})
	if len(heads) > limit {
		heads = heads[:limit]
	}
	return heads, nil
}

func (f *fakeBackend) TraceIDsByLogUUIDs(_ context.Context, workspaceID int64, logUUIDs []uuid.UUID, documentUUID *uuid.UUID) (map[uuid.UUID][]string, error) {
	if err := f.record("TraceIDsByLogUUIDs"); err != nil {
		return nil, err
	}
	wanted := make(map[uuid.UUID]bool, len(logUUIDs))
	for _, u := range logUUIDs {
		wanted[u] = true
	}
	out := make(map[uuid.UUID][]string)
	seen := make(map[string]bool)
	for _, s := range f.spans {
		if s.WorkspaceID != workspaceID || s.DocumentLogUUID == nil || !wanted[*s.DocumentLogUUID] {
			continue
		}
		if documentUUID != nil && (s.DocumentUUID == nil || *s.DocumentUUID != *documentUUID) {
			continue
		}
		if seen[s.TraceID] {
			continue
		}
		seen[s.TraceID] = true
		out[*s.DocumentLogUUID] = append(out[*s.DocumentLogUUID], s.TraceID)
	}
	return out, nil
}

func (f *fakeBackend) SpansByTraceIDs(_ context.Context, workspaceID int64, traceIDs []string) ([]domain.Span, error) {
	if err := f.record("SpansByTraceIDs"); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(traceIDs))
	for _, id := range traceIDs {
		wanted[id] = true
	}
	var out []domain.Span
	for _, s := range f.spans {
		if s.WorkspaceID == workspaceID && wanted[s.TraceID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeBackend) inScope(r *domain.EvaluationResult, scope domain.ResultScope) bool {
	if r.WorkspaceID != scope.WorkspaceID {
		return false
	}
	if scope.DocumentUUID != nil && r.DocumentUUID != *scope.DocumentUUID {
		return false
	}
	if len(scope.CommitIDs) > 0 {
		for _, id := range scope.CommitIDs {
			if id == r.CommitID {
				return true
			}
		}
		return false
	}
	return true
}

func (f *fakeBackend) keysWhere(scope domain.ResultScope, keep func(r *domain.EvaluationResult) bool) domain.SpanKeySet {
	set := domain.SpanKeySet{}
	for i := range f.results {
		r := &f.results[i]
		if f.inScope(r, scope) && keep(r) {
			set.Add(r.SpanKey())
		}
	}
	return set
}

func (f *fakeBackend) SpanKeysWithActiveIssues(_ context.Context, scope domain.ResultScope) (domain.SpanKeySet, error) {
	if err := f.record("SpanKeysWithActiveIssues"); err != nil {
		return nil, err
	}
	return f.keysWhere(scope, func(r *domain.EvaluationResult) bool {
		if r.IssueID == nil {
			return false
		}
		issue, ok := f.issues[*r.IssueID]
		return ok && issue.IsActive()
	}), nil
}

func (f *fakeBackend) SpanKeysWithFailedResults(_ context.Context, scope domain.ResultScope) (domain.SpanKeySet, error) {
	if err := f.record("SpanKeysWithFailedResults"); err != nil {
		return nil, err
	}
	return f.keysWhere(scope, func(r *domain.EvaluationResult) bool {
		return r.HasPassed != nil && !*r.HasPassed
	}), nil
}

func (f *fakeBackend) SpanKeysWithPassedResults(_ context.Context, scope domain.ResultScope, annotationsOnly bool) (domain.SpanKeySet, error) {
	if err := f.record("SpanKeysWithPassedResults"); err != nil {
		return nil, err
	}
	return f.keysWhere(scope, func(r *domain.EvaluationResult) bool {
		if annotationsOnly && !r.EvaluationType.IsAnnotation() {
			return false
		}
		return r.HasPassed != nil && *r.HasPassed
	}), nil
}

func (f *fakeBackend) ListLatestResults(_ context.Context, q *domain.ResultQuery, after *pagination.Cursor, limit int) ([]domain.ResultCandidate, error) {
	if err := f.record("ListLatestResults"); err != nil {
		return nil, err
	}
	latest := make(map[domain.SpanKey]*domain.EvaluationResult)
	for i := range f.results {
		r := &f.results[i]
		if !f.inScope(r, q.ResultScope) {
			continue
		}
		if len(q.EvaluationUUIDs) > 0 && !containsUUIDTest(q.EvaluationUUIDs, r.EvaluationUUID) {
			continue
		}
		if q.HasPassed != nil && (r.HasPassed == nil || *r.HasPassed != *q.HasPassed) {
			continue
		}
		cur, ok := latest[r.SpanKey()]
		if !ok || r.CreatedAt.After(cur.CreatedAt) || (r.CreatedAt.Equal(cur.CreatedAt) && r.ID > cur.ID) {
			latest[r.SpanKey()] = r
		}
	}

	keyOf := func(c domain.ResultCandidate) pagination.Cursor {
		return pagination.ResultCursor(c.CreatedAt, c.ResultID)
	}
	var out []domain.ResultCandidate
	for _, r := range latest {
		c := domain.ResultCandidate{
			ResultID:  r.ID,
			CreatedAt: r.CreatedAt,
			SpanID:    r.EvaluatedSpanID,
			TraceID:   r.EvaluatedTraceID,
			HasPassed: r.HasPassed,
		}
		if pagination.Before(pagination.ShapeResult, keyOf(c), after) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return pagination.Compare(pagination.ShapeResult, keyOf(out[i]), keyOf(out[j])) > 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBackend) ListEvaluatedSpanKeys(_ context.Context, q *domain.EvaluatedSpanQuery, after *pagination.Cursor, limit int) ([]domain.SpanKey, error) {
	if err := f.record("ListEvaluatedSpanKeys"); err != nil {
		return nil, err
	}
	set := f.keysWhere(q.ResultScope, func(r *domain.EvaluationResult) bool {
		if q.IssueID != nil {
			return r.IssueID != nil && *r.IssueID == *q.IssueID
		}
		return containsUUIDTest(q.EvaluationUUIDs, r.EvaluationUUID)
	})

	keyOf := func(k domain.SpanKey) pagination.Cursor {
		return pagination.TraceCursor(k.TraceID, k.SpanID)
	}
	var out []domain.SpanKey
	for k := range set {
		if pagination.Before(pagination.ShapeTrace, keyOf(k), after) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return pagination.Compare(pagination.ShapeTrace, keyOf(out[i]), keyOf(out[j])) > 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsUUIDTest(list []uuid.UUID, v uuid.UUID) bool {
	for _, u := range list {
		if u == v {
			return true
		}
	}
	return false
}

// MockCommitRepository is a mock implementation of CommitRepository
type MockCommitRepository struct {
	mock.Mock
}

func (m *MockCommitRepository) GetByUUID(ctx context.Context, workspaceID int64, commitUUID uuid.UUID) (*domain.Commit, error) {
	args := m.Called(ctx, workspaceID, commitUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Commit), args.Error(1)
}

func (m *MockCommitRepository) GetAncestry(ctx context.Context, commit *domain.Commit) ([]domain.Commit, error) {
	args := m.Called(ctx, commit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Commit), args.Error(1)
}

// MockOptimizationRepository is a mock implementation of OptimizationRepository
type MockOptimizationRepository struct {
	mock.Mock
}

func (m *MockOptimizationRepository) ListOptimizationExperimentUUIDs(ctx context.Context, workspaceID int64) ([]uuid.UUID, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockFeatureFlagService is a mock implementation of FeatureFlagService
type MockFeatureFlagService struct {
	mock.Mock
}

func (m *MockFeatureFlagService) IsEnabled(ctx context.Context, workspaceID int64, flag string) (bool, error) {
	args := m.Called(ctx, workspaceID, flag)
	return args.Bool(0), args.Error(1)
}

const testWorkspace int64 = 1

var (
	testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testNow  = testBase.Add(time.Hour)
)

type spanOption func(*domain.Span)

func withType(t domain.SpanType) spanOption {
	return func(s *domain.Span) { s.Type = t }
}

func withSource(src domain.SpanSource) spanOption {
	return func(s *domain.Span) { s.Source = &src }
}

func withoutSource() spanOption {
	return func(s *domain.Span) { s.Source = nil }
}

func withExperiment(u uuid.UUID) spanOption {
	return func(s *domain.Span) { s.ExperimentUUID = &u }
}

func withLog(u uuid.UUID) spanOption {
	return func(s *domain.Span) { s.DocumentLogUUID = &u }
}

func withDocument(u uuid.UUID) spanOption {
	return func(s *domain.Span) { s.DocumentUUID = &u }
}

func withCommit(u uuid.UUID) spanOption {
	return func(s *domain.Span) { s.CommitUUID = &u }
}

func withStatus(st domain.SpanStatus) spanOption {
	return func(s *domain.Span) { s.Status = st }
}

func withUsage(tokens int64, cost float64, durationMs int64) spanOption {
	return func(s *domain.Span) {
		s.Tokens = tokens
		s.Cost = cost
		s.DurationMs = durationMs
		s.EndedAt = s.StartedAt.Add(time.Duration(durationMs) * time.Millisecond)
	}
}

func newSpan(id, traceID string, startedAt time.Time, opts ...spanOption) domain.Span {
	src := domain.SpanSourceAPI
	s := domain.Span{
		ID:          id,
		TraceID:     traceID,
		WorkspaceID: testWorkspace,
		Type:        domain.SpanTypePrompt,
		Source:      &src,
		Status:      domain.SpanStatusOk,
		StartedAt:   startedAt,
		EndedAt:     startedAt.Add(10 * time.Millisecond),
		DurationMs:  10,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type resultOption func(*domain.EvaluationResult)

func passed(v bool) resultOption {
	return func(r *domain.EvaluationResult) { r.HasPassed = &v }
}

func withIssue(id int64) resultOption {
	return func(r *domain.EvaluationResult) { r.IssueID = &id }
}

func withEvaluation(u uuid.UUID) resultOption {
	return func(r *domain.EvaluationResult) { r.EvaluationUUID = u }
}

func withResultDocument(u uuid.UUID) resultOption {
	return func(r *domain.EvaluationResult) { r.DocumentUUID = u }
}

func annotation() resultOption {
	return func(r *domain.EvaluationResult) { r.EvaluationType = domain.EvaluationTypeHuman }
}

func newResult(id int64, spanID, traceID string, createdAt time.Time, opts ...resultOption) domain.EvaluationResult {
	r := domain.EvaluationResult{
		ID:               id,
		WorkspaceID:      testWorkspace,
		CommitID:         1,
		EvaluationType:   domain.EvaluationTypeLLM,
		EvaluatedSpanID:  spanID,
		EvaluatedTraceID: traceID,
		CreatedAt:        createdAt,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func spanIDs(spans []domain.Span) []string {
	ids := make([]string, len(spans))
	for i, s := range spans {
		ids[i] = s.TraceID + "/" + s.ID
	}
	return ids
}
