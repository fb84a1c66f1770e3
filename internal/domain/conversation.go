package domain

import (
	"time"

	"github.com/google/uuid"
)

// TraceRollup aggregates the spans of one trace. Latest-wins fields come
// from the most recently started span where the field is set.
type TraceRollup struct {
	TraceID         string      `json:"traceId"`
	DocumentLogUUID *uuid.UUID  `json:"documentLogUuid,omitempty"`
	SpanCount       int         `json:"spanCount"`
	MainSpanCount   int         `json:"mainSpanCount"`
	TotalTokens     int64       `json:"totalTokens"`
	TotalCost       float64     `json:"totalCost"`
	TotalDurationMs int64       `json:"totalDurationMs"`
	StartedAt       time.Time   `json:"startedAt"`
	EndedAt         time.Time   `json:"endedAt"`
	Source          *SpanSource `json:"source,omitempty"`
	CommitUUID      *uuid.UUID  `json:"commitUuid,omitempty"`
	ExperimentUUID  *uuid.UUID  `json:"experimentUuid,omitempty"`
	DocumentUUID    *uuid.UUID  `json:"documentUuid,omitempty"`
}

// Conversation aggregates the traces sharing a document log identity
type Conversation struct {
	DocumentLogUUID uuid.UUID     `json:"documentLogUuid"`
	TraceCount      int           `json:"traceCount"`
	SpanCount       int           `json:"spanCount"`
	TotalTokens     int64         `json:"totalTokens"`
	TotalCost       float64       `json:"totalCost"`
	TotalDurationMs int64         `json:"totalDurationMs"`
	StartedAt       time.Time     `json:"startedAt"`
	EndedAt         time.Time     `json:"endedAt"`
	Source          *SpanSource   `json:"source,omitempty"`
	CommitUUID      *uuid.UUID    `json:"commitUuid,omitempty"`
	ExperimentUUID  *uuid.UUID    `json:"experimentUuid,omitempty"`
	DocumentUUID    *uuid.UUID    `json:"documentUuid,omitempty"`
	Traces          []TraceRollup `json:"traces"`
}

// ConversationHead positions a conversation in a listing
type ConversationHead struct {
	DocumentLogUUID uuid.UUID `json:"documentLogUuid" ch:"document_log_uuid"`
	LastStartedAt   time.Time `json:"lastStartedAt" ch:"last_started_at"`
}
