package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spanquery/spanquery/internal/config"
	"github.com/spanquery/spanquery/internal/domain"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/pkg/logger"
	"github.com/spanquery/spanquery/internal/pkg/metrics"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// OptimizationRepository defines optimization repository operations
type OptimizationRepository interface {
	// ListOptimizationExperimentUUIDs returns every experiment referenced
	// by an optimization of the workspace
	ListOptimizationExperimentUUIDs(ctx context.Context, workspaceID int64) ([]uuid.UUID, error)
}

// QueryOptions tunes the engine
type QueryOptions struct {
	DefaultWindow time.Duration
	MaxPageSize   int
	BatchSize     int
	MaxRounds     int
}

// QueryOptionsFromConfig maps configuration onto QueryOptions
func QueryOptionsFromConfig(cfg config.QueryConfig) QueryOptions {
	return QueryOptions{
		DefaultWindow: cfg.DefaultWindow(),
		MaxPageSize:   cfg.MaxPageSize,
		BatchSize:     cfg.OverfetchBatchSize,
		MaxRounds:     cfg.OverfetchMaxRounds,
	}
}

// ListInput is the uniform input of every listing operation
type ListInput struct {
	Scope   domain.Scope
	Filters domain.SpanFilters
	Cursor  string
	Limit   int
}

// SampleByEvaluationInput selects spans by their latest evaluation result
type SampleByEvaluationInput struct {
	ListInput
	HasPassed *bool
}

// SpanPage is a page of spans
type SpanPage struct {
	Items       []domain.Span
	Next        *pagination.Cursor
	HasMore     bool
	DidFallback bool
}

func newSpanPage(p pagination.Page[domain.Span]) *SpanPage {
	items := p.Items
	if items == nil {
		items = []domain.Span{}
	}
	return &SpanPage{Items: items, Next: p.Next, HasMore: p.HasMore}
}

func emptySpanPage() *SpanPage {
	return &SpanPage{Items: []domain.Span{}}
}

// ConversationPage is a page of conversations
type ConversationPage = pagination.Page[domain.Conversation]

// SpanService is the single entry point of the span query engine
type SpanService struct {
	commits       *CommitHistoryResolver
	optimizations OptimizationRepository
	selector      *BackendSelector
	opts          QueryOptions
	now           func() time.Time
	logger        *zap.Logger
}

// NewSpanService creates a new span service
func NewSpanService(
	commits *CommitHistoryResolver,
	optimizations OptimizationRepository,
	selector *BackendSelector,
	opts QueryOptions,
	log *zap.Logger,
) *SpanService {
	if log == nil {
		log = logger.Log
	}
	return &SpanService{
		commits:       commits,
		optimizations: optimizations,
		selector:      selector,
		opts:          opts,
		now:           time.Now,
		logger:        log,
	}
}

// callScope is resolved once per top-level call and threaded through every
// sub-query of that call.
type callScope struct {
	workspaceID             int64
	documentUUID            *uuid.UUID
	history                 *domain.CommitHistory
	optimizationExperiments []uuid.UUID
	backends                Backends
}

// empty reports whether the commit scope resolved to nothing
func (cs *callScope) empty() bool {
	return cs.history != nil && cs.history.IsEmpty()
}

func (cs *callScope) spanQuery(q *domain.SpanQuery) *domain.SpanQuery {
	return ApplyCallScope(q, cs.history, cs.optimizationExperiments)
}

func (cs *callScope) resultScope() domain.ResultScope {
	scope := domain.ResultScope{WorkspaceID: cs.workspaceID, DocumentUUID: cs.documentUUID}
	if cs.history != nil {
		scope.CommitIDs = cs.history.IDs()
	}
	return scope
}

func (s *SpanService) resolveCallScope(ctx context.Context, scope domain.Scope, need Capability, withOptimizations bool) (*callScope, error) {
	cs := &callScope{workspaceID: scope.WorkspaceID, documentUUID: scope.DocumentUUID}

	g, gctx := errgroup.WithContext(ctx)
	if scope.CommitUUID != nil {
		commitUUID := *scope.CommitUUID
		g.Go(func() error {
			history, err := s.commits.Resolve(gctx, scope.WorkspaceID, commitUUID)
			if err != nil {
				return err
			}
			cs.history = history
			return nil
		})
	}
	if withOptimizations && s.optimizations != nil {
		g.Go(func() error {
			experiments, err := s.optimizations.ListOptimizationExperimentUUIDs(gctx, scope.WorkspaceID)
			if err != nil {
				return fmt.Errorf("failed to list optimization experiments: %w", err)
			}
			cs.optimizationExperiments = experiments
			return nil
		})
	}
	g.Go(func() error {
		cs.backends = s.selector.Select(gctx, scope.WorkspaceID, need)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, backendErr("resolve call scope", err)
	}

	metrics.RecordBackendSelection(string(cs.backends.Kind))
	return cs, nil
}

// prepared is a validated listing request
type prepared struct {
	query  *domain.SpanQuery
	cursor *pagination.Cursor
	limit  int
}

// prepare validates everything the caller supplied. It runs before any
// round-trip.
func (s *SpanService) prepare(in ListInput, shape pagination.Shape, kind QueryKind) (*prepared, error) {
	q, err := BuildSpanQuery(in.Scope, in.Filters, kind)
	if err != nil {
		return nil, err
	}
	cursor, err := pagination.DecodeShape(in.Cursor, shape)
	if err != nil {
		return nil, err
	}
	return &prepared{
		query:  q,
		cursor: cursor,
		limit:  pagination.NormalizeLimit(in.Limit, s.opts.MaxPageSize),
	}, nil
}

func (s *SpanService) loopConfig() loopConfig {
	return loopConfig{BatchSize: s.opts.BatchSize, MaxRounds: s.opts.MaxRounds}
}

// ListSpans lists spans most recent first. A request without cursor and
// time range first reads the default window and falls back to all time when
// the window is empty.
func (s *SpanService) ListSpans(ctx context.Context, in ListInput) (*SpanPage, error) {
	p, err := s.prepare(in, pagination.ShapeSpan, KindListing)
	if err != nil {
		return nil, err
	}

	cs, err := s.resolveCallScope(ctx, in.Scope, NeedSpans, p.query.ExcludeOptimizations)
	if err != nil {
		return nil, err
	}
	if cs.empty() {
		return emptySpanPage(), nil
	}
	q := cs.spanQuery(p.query)

	if p.cursor != nil || !q.StartedAt.IsZero() || s.opts.DefaultWindow <= 0 {
		rows, err := cs.backends.Spans.ListSpans(ctx, q, p.cursor, p.limit+1)
		if err != nil {
			return nil, backendErr("list spans", err)
		}
		return newSpanPage(pagination.Trim(rows, p.limit, spanCursor)), nil
	}

	from := s.now().Add(-s.opts.DefaultWindow)
	rows, err := cs.backends.Spans.ListSpans(ctx, q.WithStartedAt(&domain.TimeRange{From: &from}), nil, p.limit+1)
	if err != nil {
		return nil, backendErr("list spans", err)
	}
	if len(rows) > 0 {
		return newSpanPage(pagination.Trim(rows, p.limit, spanCursor)), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err = cs.backends.Spans.ListSpans(ctx, q, nil, p.limit+1)
	if err != nil {
		return nil, backendErr("list spans", err)
	}

	metrics.RecordWindowFallback()
	logger.WithWorkspace(s.logger, cs.workspaceID).Debug("default window empty, listed all time",
		zap.Int("rows", len(rows)),
	)

	page := newSpanPage(pagination.Trim(rows, p.limit, spanCursor))
	page.DidFallback = true
	return page, nil
}

// ListSpansForReview lists main spans not tied to an active issue,
// optionally excluding spans with failed results or requiring spans with
// passed results.
func (s *SpanService) ListSpansForReview(ctx context.Context, in ListInput) (*SpanPage, error) {
	p, err := s.prepare(in, pagination.ShapeSpan, KindListing)
	if err != nil {
		return nil, err
	}

	cs, err := s.resolveCallScope(ctx, in.Scope, NeedBoth, p.query.ExcludeOptimizations)
	if err != nil {
		return nil, err
	}
	if cs.empty() {
		return emptySpanPage(), nil
	}

	sets, err := computeExclusionSets(ctx, cs.backends.Results, cs.resultScope(), in.Filters)
	if err != nil {
		return nil, backendErr("compute exclusion sets", err)
	}
	if sets.requiresNothingAvailable() {
		return emptySpanPage(), nil
	}

	page, err := collect(ctx, s.loopConfig(), reviewLoop(cs.backends.Spans, cs.spanQuery(p.query), sets), p.cursor, p.limit)
	if err != nil {
		return nil, backendErr("list spans for review", err)
	}
	return newSpanPage(page), nil
}

// ListIssueSpans lists the spans evaluated under an issue
func (s *SpanService) ListIssueSpans(ctx context.Context, in ListInput) (*SpanPage, error) {
	if in.Scope.IssueID == nil {
		return nil, apperrors.Validation("issue id is required")
	}
	return s.listEvaluated(ctx, in, "list_issue_spans", func(rs domain.ResultScope) *domain.EvaluatedSpanQuery {
		return &domain.EvaluatedSpanQuery{ResultScope: rs, IssueID: in.Scope.IssueID}
	})
}

// ListEvaluationSpans lists the spans evaluated by a set of evaluations
func (s *SpanService) ListEvaluationSpans(ctx context.Context, in ListInput) (*SpanPage, error) {
	if len(in.Scope.EvaluationUUIDs) == 0 {
		return nil, apperrors.Validation("at least one evaluation uuid is required")
	}
	return s.listEvaluated(ctx, in, "list_evaluation_spans", func(rs domain.ResultScope) *domain.EvaluatedSpanQuery {
		return &domain.EvaluatedSpanQuery{ResultScope: rs, EvaluationUUIDs: in.Scope.EvaluationUUIDs}
	})
}

func (s *SpanService) listEvaluated(ctx context.Context, in ListInput, operation string, build func(domain.ResultScope) *domain.EvaluatedSpanQuery) (*SpanPage, error) {
	p, err := s.prepare(in, pagination.ShapeTrace, KindListing)
	if err != nil {
		return nil, err
	}

	cs, err := s.resolveCallScope(ctx, in.Scope, NeedBoth, p.query.ExcludeOptimizations)
	if err != nil {
		return nil, err
	}
	if cs.empty() {
		return emptySpanPage(), nil
	}

	loop := evaluatedLoop(operation, cs.backends, build(cs.resultScope()), cs.spanQuery(p.query))
	page, err := collect(ctx, s.loopConfig(), loop, p.cursor, p.limit)
	if err != nil {
		return nil, backendErr(operation, err)
	}
	return newSpanPage(page), nil
}

// SampleSpansByEvaluation ranks spans by their latest result for the given
// evaluations and returns those whose span is ok, in scope and untainted.
func (s *SpanService) SampleSpansByEvaluation(ctx context.Context, in SampleByEvaluationInput) (*SpanPage, error) {
	if len(in.Scope.EvaluationUUIDs) == 0 {
		return nil, apperrors.Validation("at least one evaluation uuid is required")
	}
	p, err := s.prepareSample(in.ListInput)
	if err != nil {
		return nil, err
	}

	cs, err := s.resolveCallScope(ctx, in.Scope, NeedBoth, p.query.ExcludeOptimizations)
	if err != nil {
		return nil, err
	}
	if cs.empty() {
		return emptySpanPage(), nil
	}

	rq := &domain.ResultQuery{
		ResultScope:     cs.resultScope(),
		EvaluationUUIDs: in.Scope.EvaluationUUIDs,
		HasPassed:       in.HasPassed,
	}
	loop := resultLoop("sample_spans_by_evaluation", cs.backends, rq, cs.spanQuery(p.query), nil)
	page, err := collect(ctx, s.loopConfig(), loop, p.cursor, p.limit)
	if err != nil {
		return nil, backendErr("sample spans by evaluation", err)
	}
	return newSpanPage(page), nil
}

// SampleSpansWithoutIssues ranks evaluated spans of a document by their
// latest result and skips spans tied to an active issue.
func (s *SpanService) SampleSpansWithoutIssues(ctx context.Context, in ListInput) (*SpanPage, error) {
	if in.Scope.DocumentUUID == nil {
		return nil, apperrors.Validation("document uuid is required")
	}
	p, err := s.prepareSample(in)
	if err != nil {
		return nil, err
	}

	cs, err := s.resolveCallScope(ctx, in.Scope, NeedBoth, p.query.ExcludeOptimizations)
	if err != nil {
		return nil, err
	}
	if cs.empty() {
		return emptySpanPage(), nil
	}

	scope := cs.resultScope()
	withIssues, err := cs.backends.Results.SpanKeysWithActiveIssues(ctx, scope)
	if err != nil {
		return nil, backendErr("get spans with active issues", err)
	}

	loop := resultLoop("sample_spans_without_issues", cs.backends, &domain.ResultQuery{ResultScope: scope}, cs.spanQuery(p.query), withIssues)
	page, err := collect(ctx, s.loopConfig(), loop, p.cursor, p.limit)
	if err != nil {
		return nil, backendErr("sample spans without issues", err)
	}
	return newSpanPage(page), nil
}

// prepareSample forces the ok status the sampling paths require
func (s *SpanService) prepareSample(in ListInput) (*prepared, error) {
	in.Filters.Status = string(domain.SpanStatusOk)
	return s.prepare(in, pagination.ShapeResult, KindListing)
}

// ListConversations lists conversations by their most recent span and
// aggregates each one.
func (s *SpanService) ListConversations(ctx context.Context, in ListInput) (*ConversationPage, error) {
	p, err := s.prepare(in, pagination.ShapeConversation, KindListing)
	if err != nil {
		return nil, err
	}

	cs, err := s.resolveCallScope(ctx, in.Scope, NeedSpans, p.query.ExcludeOptimizations)
	if err != nil {
		return nil, err
	}
	if cs.empty() {
		empty := pagination.Empty[domain.Conversation]()
		return &empty, nil
	}

	heads, err := cs.backends.Spans.ListConversationHeads(ctx, cs.spanQuery(p.query), p.cursor, p.limit+1)
	if err != nil {
		return nil, backendErr("list conversation heads", err)
	}
	headPage := pagination.Trim(heads, p.limit, func(h domain.ConversationHead) pagination.Cursor {
		return pagination.ConversationCursor(h.LastStartedAt, h.DocumentLogUUID.String())
	})

	logUUIDs := make([]uuid.UUID, len(headPage.Items))
	for i, h := range headPage.Items {
		logUUIDs[i] = h.DocumentLogUUID
	}
	convs, err := conversationsFor(ctx, cs.backends.Spans, cs.workspaceID, logUUIDs, in.Scope.DocumentUUID)
	if err != nil {
		return nil, backendErr("aggregate conversations", err)
	}

	items := make([]domain.Conversation, 0, len(logUUIDs))
	for _, logUUID := range logUUIDs {
		conv, ok := convs[logUUID]
		if !ok {
			s.logger.Debug("conversation head without spans", zap.String("document_log_uuid", logUUID.String()))
			continue
		}
		items = append(items, conv)
	}

	return &ConversationPage{Items: items, Next: headPage.Next, HasMore: headPage.HasMore}, nil
}

// GetSpan returns one span by its full key. Lookups never apply the
// optimization exclusion.
func (s *SpanService) GetSpan(ctx context.Context, workspaceID int64, spanID, traceID string) (*domain.Span, error) {
	if workspaceID <= 0 {
		return nil, apperrors.Validation("workspace id is required")
	}
	if spanID == "" || traceID == "" {
		return nil, apperrors.Validation("span id and trace id are required")
	}

	backends := s.selector.Select(ctx, workspaceID, NeedSpans)
	metrics.RecordBackendSelection(string(backends.Kind))

	span, err := backends.Spans.GetSpan(ctx, workspaceID, domain.SpanKey{SpanID: spanID, TraceID: traceID})
	if err != nil {
		return nil, backendErr("get span", err)
	}
	return span, nil
}

// FetchConversation aggregates the conversation of a document log
func (s *SpanService) FetchConversation(ctx context.Context, workspaceID int64, documentLogUUID uuid.UUID, documentUUID *uuid.UUID) (*domain.Conversation, error) {
	if workspaceID <= 0 {
		return nil, apperrors.Validation("workspace id is required")
	}
	if documentLogUUID == uuid.Nil {
		return nil, apperrors.Validation("document log uuid is required")
	}

	backends := s.selector.Select(ctx, workspaceID, NeedSpans)
	metrics.RecordBackendSelection(string(backends.Kind))

	conv, err := fetchConversation(ctx, backends.Spans, logger.WithWorkspace(s.logger, workspaceID), workspaceID, documentLogUUID, documentUUID)
	if err != nil {
		return nil, backendErr("fetch conversation", err)
	}
	return conv, nil
}

// backendErr classifies a storage failure. Errors already classified and
// caller cancellation pass through unchanged; timeouts are backend errors.
func backendErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.GetAppError(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.Backend(op, err)
}
