package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/dto"
	"github.com/spanquery/spanquery/internal/middleware"
	"github.com/spanquery/spanquery/internal/service"
)

// SpanQuerier is the part of the span service the HTTP layer uses
type SpanQuerier interface {
	ListSpans(ctx context.Context, in service.ListInput) (*service.SpanPage, error)
	ListSpansForReview(ctx context.Context, in service.ListInput) (*service.SpanPage, error)
	ListIssueSpans(ctx context.Context, in service.ListInput) (*service.SpanPage, error)
	ListEvaluationSpans(ctx context.Context, in service.ListInput) (*service.SpanPage, error)
	SampleSpansByEvaluation(ctx context.Context, in service.SampleByEvaluationInput) (*service.SpanPage, error)
	SampleSpansWithoutIssues(ctx context.Context, in service.ListInput) (*service.SpanPage, error)
	ListConversations(ctx context.Context, in service.ListInput) (*service.ConversationPage, error)
	GetSpan(ctx context.Context, workspaceID int64, spanID, traceID string) (*domain.Span, error)
	FetchConversation(ctx context.Context, workspaceID int64, documentLogUUID uuid.UUID, documentUUID *uuid.UUID) (*domain.Conversation, error)
}

// SpansHandler serves the span query endpoints of a workspace
type SpansHandler struct {
	spans  SpanQuerier
	logger *zap.Logger
}

// NewSpansHandler creates a new spans handler
func NewSpansHandler(spans SpanQuerier, logger *zap.Logger) *SpansHandler {
	return &SpansHandler{
		spans:  spans,
		logger: logger.Named("spans"),
	}
}

// RegisterRoutes mounts the span routes on a workspace group
// (/v1/workspaces/:workspaceId)
func (h *SpansHandler) RegisterRoutes(ws fiber.Router) {
	ws.Get("/spans", h.ListSpans)
	ws.Get("/spans/review", h.ListSpansForReview)
	ws.Get("/spans/without-issues", h.SampleSpansWithoutIssues)
	ws.Get("/issues/:issueId/spans", h.ListIssueSpans)
	ws.Get("/evaluations/spans", h.ListEvaluationSpans)
	ws.Get("/evaluations/spans/sample", h.SampleSpansByEvaluation)
	ws.Get("/conversations", h.ListConversations)
	ws.Get("/conversations/:documentLogUuid", h.GetConversation)
	ws.Get("/traces/:traceId/spans/:spanId", h.GetSpan)
}

// listInput binds the workspace path and the shared list query
func (h *SpansHandler) listInput(c *fiber.Ctx, q *dto.ListQuery) (service.ListInput, error) {
	var params dto.WorkspaceParams
	if err := dto.ParseParams(c, &params); err != nil {
		return service.ListInput{}, err
	}
	if err := dto.ParseQuery(c, q); err != nil {
		return service.ListInput{}, err
	}
	return q.ToListInput(params.WorkspaceID)
}

type spanLister func(ctx context.Context, in service.ListInput) (*service.SpanPage, error)

func (h *SpansHandler) serveSpanPage(c *fiber.Ctx, list spanLister) error {
	var q dto.ListQuery
	in, err := h.listInput(c, &q)
	if err != nil {
		return err
	}
	page, err := list(c.UserContext(), in)
	if err != nil {
		return err
	}
	h.logFallback(c, page)
	return c.JSON(dto.NewSpanPageResponse(page))
}

func (h *SpansHandler) logFallback(c *fiber.Ctx, page *service.SpanPage) {
	if page.DidFallback {
		middleware.RequestLogger(c, h.logger).Debug("window fallback applied", zap.String("route", c.Route().Path))
	}
}

// ListSpans handles GET /v1/workspaces/:workspaceId/spans
func (h *SpansHandler) ListSpans(c *fiber.Ctx) error {
	return h.serveSpanPage(c, h.spans.ListSpans)
}

// ListSpansForReview handles GET /v1/workspaces/:workspaceId/spans/review
func (h *SpansHandler) ListSpansForReview(c *fiber.Ctx) error {
	return h.serveSpanPage(c, h.spans.ListSpansForReview)
}

// SampleSpansWithoutIssues handles GET /v1/workspaces/:workspaceId/spans/without-issues
func (h *SpansHandler) SampleSpansWithoutIssues(c *fiber.Ctx) error {
	return h.serveSpanPage(c, h.spans.SampleSpansWithoutIssues)
}

// ListEvaluationSpans handles GET /v1/workspaces/:workspaceId/evaluations/spans
func (h *SpansHandler) ListEvaluationSpans(c *fiber.Ctx) error {
	return h.serveSpanPage(c, h.spans.ListEvaluationSpans)
}

// ListIssueSpans handles GET /v1/workspaces/:workspaceId/issues/:issueId/spans
func (h *SpansHandler) ListIssueSpans(c *fiber.Ctx) error {
	var params dto.IssueParams
	if err := dto.ParseParams(c, &params); err != nil {
		return err
	}
	var q dto.ListQuery
	if err := dto.ParseQuery(c, &q); err != nil {
		return err
	}
	in, err := q.ToListInput(params.WorkspaceID)
	if err != nil {
		return err
	}
	issueID := params.IssueID
	in.Scope.IssueID = &issueID

	page, err := h.spans.ListIssueSpans(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSpanPageResponse(page))
}

// SampleSpansByEvaluation handles GET /v1/workspaces/:workspaceId/evaluations/spans/sample
func (h *SpansHandler) SampleSpansByEvaluation(c *fiber.Ctx) error {
	var params dto.WorkspaceParams
	if err := dto.ParseParams(c, &params); err != nil {
		return err
	}
	var q dto.SampleQuery
	if err := dto.ParseQuery(c, &q); err != nil {
		return err
	}
	in, err := q.ToListInput(params.WorkspaceID)
	if err != nil {
		return err
	}

	page, err := h.spans.SampleSpansByEvaluation(c.UserContext(), service.SampleByEvaluationInput{
		ListInput: in,
		HasPassed: q.HasPassed,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSpanPageResponse(page))
}

// ListConversations handles GET /v1/workspaces/:workspaceId/conversations
func (h *SpansHandler) ListConversations(c *fiber.Ctx) error {
	var q dto.ListQuery
	in, err := h.listInput(c, &q)
	if err != nil {
		return err
	}
	page, err := h.spans.ListConversations(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewConversationPageResponse(page))
}

// GetConversation handles GET /v1/workspaces/:workspaceId/conversations/:documentLogUuid
func (h *SpansHandler) GetConversation(c *fiber.Ctx) error {
	var params dto.ConversationParams
	if err := dto.ParseParams(c, &params); err != nil {
		return err
	}
	var q dto.ConversationQuery
	if err := dto.ParseQuery(c, &q); err != nil {
		return err
	}

	conv, err := h.spans.FetchConversation(c.UserContext(), params.WorkspaceID, uuid.MustParse(params.DocumentLogUUID), q.DocumentUUIDPtr())
	if err != nil {
		return err
	}
	return c.JSON(conv)
}

// GetSpan handles GET /v1/workspaces/:workspaceId/traces/:traceId/spans/:spanId
func (h *SpansHandler) GetSpan(c *fiber.Ctx) error {
	var params dto.SpanParams
	if err := dto.ParseParams(c, &params); err != nil {
		return err
	}

	span, err := h.spans.GetSpan(c.UserContext(), params.WorkspaceID, params.SpanID, params.TraceID)
	if err != nil {
		return err
	}
	return c.JSON(span)
}
