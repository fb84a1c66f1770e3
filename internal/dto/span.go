package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/spanquery/spanquery/internal/domain"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/service"
)

// WorkspaceParams are the path parameters of every workspace route
type WorkspaceParams struct {
	WorkspaceID int64 `params:"workspaceId" validate:"required,gt=0"`
}

// SpanParams identify one span
type SpanParams struct {
	WorkspaceParams
	TraceID string `params:"traceId" validate:"required"`
	SpanID  string `params:"spanId" validate:"required"`
}

// IssueParams identify one issue
type IssueParams struct {
	WorkspaceParams
	IssueID int64 `params:"issueId" validate:"required,gt=0"`
}

// ConversationParams identify one conversation
type ConversationParams struct {
	WorkspaceParams
	DocumentLogUUID string `params:"documentLogUuid" validate:"required,uuid"`
}

// ListQuery is the query string shared by the listing endpoints. List
// values are comma separated.
type ListQuery struct {
	CommitUUID               string `query:"commitUuid" validate:"omitempty,uuid"`
	DocumentUUID             string `query:"documentUuid" validate:"omitempty,uuid"`
	EvaluationUUIDs          string `query:"evaluationUuids"`
	Types                    string `query:"types"`
	Sources                  string `query:"sources"`
	ExperimentUUIDs          string `query:"experimentUuids"`
	From                     string `query:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To                       string `query:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Status                   string `query:"status" validate:"omitempty,oneof=ok error unset"`
	IncludeOptimizations     bool   `query:"includeOptimizations"`
	ExcludeFailedResults     bool   `query:"excludeFailedResults"`
	RequirePassedResults     bool   `query:"requirePassedResults"`
	RequirePassedAnnotations bool   `query:"requirePassedAnnotations"`
	Cursor                   string `query:"cursor"`
	Limit                    int    `query:"limit" validate:"gte=0"`
}

// SampleQuery adds the outcome filter of evaluation sampling
type SampleQuery struct {
	ListQuery
	HasPassed *bool `query:"hasPassed"`
}

// ToListInput converts a validated query into engine input
func (q *ListQuery) ToListInput(workspaceID int64) (service.ListInput, error) {
	experiments, err := parseUUIDList("experimentUuids", q.ExperimentUUIDs)
	if err != nil {
		return service.ListInput{}, err
	}
	evaluations, err := parseUUIDList("evaluationUuids", q.EvaluationUUIDs)
	if err != nil {
		return service.ListInput{}, err
	}

	var createdAt *domain.TimeRange
	if q.From != "" || q.To != "" {
		createdAt = &domain.TimeRange{}
		if q.From != "" {
			from, err := time.Parse(time.RFC3339, q.From)
			if err != nil {
				return service.ListInput{}, apperrors.Validation("from must be an RFC 3339 timestamp")
			}
			createdAt.From = &from
		}
		if q.To != "" {
			to, err := time.Parse(time.RFC3339, q.To)
			if err != nil {
				return service.ListInput{}, apperrors.Validation("to must be an RFC 3339 timestamp")
			}
			createdAt.To = &to
		}
	}

	return service.ListInput{
		Scope: domain.Scope{
			WorkspaceID:     workspaceID,
			CommitUUID:      parseOptionalUUID(q.CommitUUID),
			DocumentUUID:    parseOptionalUUID(q.DocumentUUID),
			EvaluationUUIDs: evaluations,
		},
		Filters: domain.SpanFilters{
			Types:                    splitList(q.Types),
			Sources:                  splitList(q.Sources),
			ExperimentUUIDs:          experiments,
			CreatedAt:                createdAt,
			Status:                   q.Status,
			IncludeOptimizations:     q.IncludeOptimizations,
			ExcludeFailedResults:     q.ExcludeFailedResults,
			RequirePassedResults:     q.RequirePassedResults,
			RequirePassedAnnotations: q.RequirePassedAnnotations,
		},
		Cursor: q.Cursor,
		Limit:  q.Limit,
	}, nil
}

// ConversationQuery narrows a conversation lookup to a document
type ConversationQuery struct {
	DocumentUUID string `query:"documentUuid" validate:"omitempty,uuid"`
}

// DocumentUUIDPtr returns the validated document uuid, if any
func (q *ConversationQuery) DocumentUUIDPtr() *uuid.UUID {
	return parseOptionalUUID(q.DocumentUUID)
}

// SpanPageResponse is a page of spans on the wire
type SpanPageResponse struct {
	Items       []domain.Span `json:"items"`
	Next        string        `json:"next,omitempty"`
	HasMore     bool          `json:"hasMore"`
	DidFallback bool          `json:"didFallback,omitempty"`
}

// NewSpanPageResponse encodes the continuation cursor of a page
func NewSpanPageResponse(p *service.SpanPage) SpanPageResponse {
	resp := SpanPageResponse{Items: p.Items, HasMore: p.HasMore, DidFallback: p.DidFallback}
	if p.Next != nil {
		resp.Next = p.Next.Encode()
	}
	if resp.Items == nil {
		resp.Items = []domain.Span{}
	}
	return resp
}

// ConversationPageResponse is a page of conversations on the wire
type ConversationPageResponse struct {
	Items   []domain.Conversation `json:"items"`
	Next    string                `json:"next,omitempty"`
	HasMore bool                  `json:"hasMore"`
}

// NewConversationPageResponse encodes the continuation cursor of a page
func NewConversationPageResponse(p *service.ConversationPage) ConversationPageResponse {
	items := p.Items
	if items == nil {
		items = []domain.Conversation{}
	}
	return ConversationPageResponse{Items: items, Next: p.NextToken(), HasMore: p.HasMore}
}
