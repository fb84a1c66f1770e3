package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/dto"
	"github.com/spanquery/spanquery/internal/middleware"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
	"github.com/spanquery/spanquery/internal/service"
)

// MockSpanQuerier mocks the span service
type MockSpanQuerier struct {
	mock.Mock
}

func (m *MockSpanQuerier) page(args mock.Arguments) (*service.SpanPage, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SpanPage), args.Error(1)
}

func (m *MockSpanQuerier) ListSpans(ctx context.Context, in service.ListInput) (*service.SpanPage, error) {
	return m.page(m.Called(ctx, in))
}

func (m *MockSpanQuerier) ListSpansForReview(ctx context.Context, in service.ListInput) (*service.SpanPage, error) {
	return m.page(m.Called(ctx, in))
}

func (m *MockSpanQuerier) ListIssueSpans(ctx context.Context, in service.ListInput) (*service.SpanPage, error) {
	return m.page(m.Called(ctx, in))
}

func (m *MockSpanQuerier) ListEvaluationSpans(ctx context.Context, in service.ListInput) (*service.SpanPage, error) {
	return m.page(m.Called(ctx, in))
}

func (m *MockSpanQuerier) SampleSpansByEvaluation(ctx context.Context, in service.SampleByEvaluationInput) (*service.SpanPage, error) {
	return m.page(m.Called(ctx, in))
}

func (m *MockSpanQuerier) SampleSpansWithoutIssues(ctx context.Context, in service.ListInput) (*service.SpanPage, error) {
	return m.page(m.Called(ctx, in))
}

func (m *MockSpanQuerier) ListConversations(ctx context.Context, in service.ListInput) (*service.ConversationPage, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ConversationPage), args.Error(1)
}

func (m *MockSpanQuerier) GetSpan(ctx context.Context, workspaceID int64, spanID, traceID string) (*domain.Span, error) {
	args := m.Called(ctx, workspaceID, spanID, traceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Span), args.Error(1)
}

func (m *MockSpanQuerier) FetchConversation(ctx context.Context, workspaceID int64, documentLogUUID uuid.UUID, documentUUID *uuid.UUID) (*domain.Conversation, error) {
	args := m.Called(ctx, workspaceID, documentLogUUID, documentUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func setupSpansTestApp(svc *MockSpanQuerier) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(zap.NewNop(), false)})
	NewSpansHandler(svc, zap.NewNop()).RegisterRoutes(app.Group("/v1/workspaces/:workspaceId"))
	return app
}

func doGet(t *testing.T, app *fiber.App, target string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSpansHandler_ListSpans(t *testing.T) {
	t.Run("binds query and encodes next cursor", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)

		commit := uuid.New()
		next := pagination.SpanCursor(testStart, "span-2", "trace-2")
		svc.On("ListSpans", mock.Anything, mock.MatchedBy(func(in service.ListInput) bool {
			return in.Scope.WorkspaceID == 42 &&
				in.Scope.CommitUUID != nil && *in.Scope.CommitUUID == commit &&
				assert.ObjectsAreEqual([]string{"prompt", "completion"}, in.Filters.Types) &&
				in.Filters.Status == "error" &&
				in.Filters.IncludeOptimizations &&
				in.Limit == 10
		})).Return(&service.SpanPage{
			Items:   []domain.Span{{ID: "span-1", TraceID: "trace-1", WorkspaceID: 42}},
			Next:    &next,
			HasMore: true,
		}, nil)

		resp, body := doGet(t, app, "/v1/workspaces/42/spans?commitUuid="+commit.String()+
			"&types=prompt,completion&status=error&includeOptimizations=true&limit=10")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["hasMore"])
		assert.Equal(t, next.Encode(), body["next"])
		assert.Len(t, body["items"], 1)
		svc.AssertExpectations(t)
	})

	t.Run("empty page serializes items as array", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)
		svc.On("ListSpans", mock.Anything, mock.Anything).Return(&service.SpanPage{}, nil)

		resp, body := doGet(t, app, "/v1/workspaces/42/spans")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []interface{}{}, body["items"])
		assert.NotContains(t, body, "next")
	})

	t.Run("invalid status is rejected before the service", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)

		resp, body := doGet(t, app, "/v1/workspaces/42/spans?status=broken")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, apperrors.CodeValidation, errorCode(body))
		svc.AssertNotCalled(t, "ListSpans", mock.Anything, mock.Anything)
	})

	t.Run("non numeric workspace is rejected", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)

		resp, _ := doGet(t, app, "/v1/workspaces/abc/spans")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		svc.AssertNotCalled(t, "ListSpans", mock.Anything, mock.Anything)
	})

	t.Run("service validation error maps to 400", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)
		svc.On("ListSpans", mock.Anything, mock.Anything).Return(nil, apperrors.Validation("invalid cursor"))

		resp, body := doGet(t, app, "/v1/workspaces/42/spans?cursor=garbage")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, apperrors.CodeValidation, errorCode(body))
	})

	t.Run("backend error maps to 502", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)
		svc.On("ListSpans", mock.Anything, mock.Anything).
			Return(nil, apperrors.Backend("spans.list", errors.New("connection reset")))

		resp, body := doGet(t, app, "/v1/workspaces/42/spans")

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, apperrors.CodeBackend, errorCode(body))
	})

	t.Run("canceled context maps to 499", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)
		svc.On("ListSpans", mock.Anything, mock.Anything).Return(nil, context.Canceled)

		resp, _ := doGet(t, app, "/v1/workspaces/42/spans")

		assert.Equal(t, StatusClientClosedRequest, resp.StatusCode)
	})

	t.Run("unknown error maps to 500", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)
		svc.On("ListSpans", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

		resp, body := doGet(t, app, "/v1/workspaces/42/spans")

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, apperrors.CodeInternal, errorCode(body))
	})
}

func TestSpansHandler_ListIssueSpans(t *testing.T) {
	svc := new(MockSpanQuerier)
	app := setupSpansTestApp(svc)

	svc.On("ListIssueSpans", mock.Anything, mock.MatchedBy(func(in service.ListInput) bool {
		return in.Scope.IssueID != nil && *in.Scope.IssueID == 7 && in.Scope.WorkspaceID == 42
	})).Return(&service.SpanPage{Items: []domain.Span{{ID: "s", TraceID: "t"}}}, nil)

	resp, body := doGet(t, app, "/v1/workspaces/42/issues/7/spans")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["hasMore"])
	svc.AssertExpectations(t)
}

func TestSpansHandler_SampleSpansByEvaluation(t *testing.T) {
	t.Run("passes outcome and evaluations", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)
		evalA, evalB := uuid.New(), uuid.New()

		svc.On("SampleSpansByEvaluation", mock.Anything, mock.MatchedBy(func(in service.SampleByEvaluationInput) bool {
			return in.HasPassed != nil && !*in.HasPassed &&
				assert.ObjectsAreEqual([]uuid.UUID{evalA, evalB}, in.Scope.EvaluationUUIDs)
		})).Return(&service.SpanPage{}, nil)

		resp, _ := doGet(t, app, "/v1/workspaces/42/evaluations/spans/sample?hasPassed=false&evaluationUuids="+
			evalA.String()+","+evalB.String())

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		svc.AssertExpectations(t)
	})

	t.Run("omitted outcome stays nil", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)
		eval := uuid.New()

		svc.On("SampleSpansByEvaluation", mock.Anything, mock.MatchedBy(func(in service.SampleByEvaluationInput) bool {
			return in.HasPassed == nil
		})).Return(&service.SpanPage{}, nil)

		resp, _ := doGet(t, app, "/v1/workspaces/42/evaluations/spans/sample?evaluationUuids="+eval.String())

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		svc.AssertExpectations(t)
	})

	t.Run("malformed evaluation uuid", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)

		resp, body := doGet(t, app, "/v1/workspaces/42/evaluations/spans/sample?evaluationUuids=nope")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, apperrors.CodeValidation, errorCode(body))
	})
}

func TestSpansHandler_ListConversations(t *testing.T) {
	svc := new(MockSpanQuerier)
	app := setupSpansTestApp(svc)

	logUUID := uuid.New()
	next := pagination.ConversationCursor(testStart, logUUID.String())
	svc.On("ListConversations", mock.Anything, mock.Anything).Return(&service.ConversationPage{
		Items:   []domain.Conversation{{DocumentLogUUID: logUUID, TraceCount: 2, SpanCount: 5}},
		Next:    &next,
		HasMore: true,
	}, nil)

	resp, body := doGet(t, app, "/v1/workspaces/42/conversations")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, next.Encode(), body["next"])
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, logUUID.String(), items[0].(map[string]interface{})["documentLogUuid"])
}

func TestSpansHandler_GetConversation(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)
		logUUID, docUUID := uuid.New(), uuid.New()

		svc.On("FetchConversation", mock.Anything, int64(42), logUUID, &docUUID).
			Return(&domain.Conversation{DocumentLogUUID: logUUID, SpanCount: 3}, nil)

		resp, body := doGet(t, app, "/v1/workspaces/42/conversations/"+logUUID.String()+"?documentUuid="+docUUID.String())

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(3), body["spanCount"])
		svc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)
		logUUID := uuid.New()

		svc.On("FetchConversation", mock.Anything, int64(42), logUUID, (*uuid.UUID)(nil)).
			Return(nil, apperrors.NotFound("conversation"))

		resp, body := doGet(t, app, "/v1/workspaces/42/conversations/"+logUUID.String())

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, apperrors.CodeNotFound, errorCode(body))
	})

	t.Run("path must be a uuid", func(t *testing.T) {
		svc := new(MockSpanQuerier)
		app := setupSpansTestApp(svc)

		resp, _ := doGet(t, app, "/v1/workspaces/42/conversations/not-a-uuid")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		svc.AssertNotCalled(t, "FetchConversation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSpansHandler_GetSpan(t *testing.T) {
	svc := new(MockSpanQuerier)
	app := setupSpansTestApp(svc)

	svc.On("GetSpan", mock.Anything, int64(42), "span-1", "trace-1").
		Return(&domain.Span{ID: "span-1", TraceID: "trace-1", WorkspaceID: 42, Status: domain.SpanStatusOk}, nil)

	resp, body := doGet(t, app, "/v1/workspaces/42/traces/trace-1/spans/span-1")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "span-1", body["id"])
	assert.Equal(t, "trace-1", body["traceId"])
	svc.AssertExpectations(t)
}

func TestSpansHandler_RegisterRoutes(t *testing.T) {
	app := setupSpansTestApp(new(MockSpanQuerier))

	paths := make(map[string]bool)
	for _, r := range app.GetRoutes() {
		if r.Method == fiber.MethodGet {
			paths[r.Path] = true
		}
	}

	for _, p := range []string{
		"/v1/workspaces/:workspaceId/spans",
		"/v1/workspaces/:workspaceId/spans/review",
		"/v1/workspaces/:workspaceId/spans/without-issues",
		"/v1/workspaces/:workspaceId/issues/:issueId/spans",
		"/v1/workspaces/:workspaceId/evaluations/spans",
		"/v1/workspaces/:workspaceId/evaluations/spans/sample",
		"/v1/workspaces/:workspaceId/conversations",
		"/v1/workspaces/:workspaceId/conversations/:documentLogUuid",
		"/v1/workspaces/:workspaceId/traces/:traceId/spans/:spanId",
	} {
		assert.True(t, paths[p], "route %s should be registered", p)
	}
}

func TestNewSpanPageResponse_Fallback(t *testing.T) {
	resp := dto.NewSpanPageResponse(&service.SpanPage{DidFallback: true})
	assert.True(t, resp.DidFallback)
	assert.Empty(t, resp.Next)
	assert.NotNil(t, resp.Items)
}

type exhaustedCounter struct{}

func (exhaustedCounter) Hit(context.Context, string, time.Duration) (int64, error) {
	return 100, nil
}

func TestErrorHandler_RateLimited(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(zap.NewNop(), false)})
	app.Use(middleware.RequestID())
	NewSpansHandler(new(MockSpanQuerier), zap.NewNop()).RegisterRoutes(
		app.Group("/v1/workspaces/:workspaceId", middleware.WorkspaceRateLimit(exhaustedCounter{}, 10)),
	)

	resp, body := doGet(t, app, "/v1/workspaces/1/spans")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", errorCode(body))
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.NotEmpty(t, body["request_id"])
	assert.Equal(t, resp.Header.Get("X-Request-ID"), body["request_id"])
}
