package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Span is an immutable telemetry record. The denormalized fields
// (ProjectID, DocumentUUID, CommitUUID, ExperimentUUID) are filled by a
// backfill after ingestion and may be nil on recent rows.
type Span struct {
	ID              string      `json:"id" ch:"id"`
	TraceID         string      `json:"traceId" ch:"trace_id"`
	WorkspaceID     int64       `json:"workspaceId" ch:"workspace_id"`
	ProjectID       *int64      `json:"projectId,omitempty" ch:"project_id"`
	DocumentUUID    *uuid.UUID  `json:"documentUuid,omitempty" ch:"document_uuid"`
	CommitUUID      *uuid.UUID  `json:"commitUuid,omitempty" ch:"commit_uuid"`
	ExperimentUUID  *uuid.UUID  `json:"experimentUuid,omitempty" ch:"experiment_uuid"`
	DocumentLogUUID *uuid.UUID  `json:"documentLogUuid,omitempty" ch:"document_log_uuid"`
	Type            SpanType    `json:"type" ch:"type"`
	Source          *SpanSource `json:"source,omitempty" ch:"source"`
	Status          SpanStatus  `json:"status" ch:"status"`
	StartedAt       time.Time   `json:"startedAt" ch:"started_at"`
	EndedAt         time.Time   `json:"endedAt" ch:"ended_at"`
	DurationMs      int64       `json:"durationMs" ch:"duration_ms"`
	Tokens          int64       `json:"tokens" ch:"tokens"`
	Cost            float64     `json:"cost" ch:"cost"`
}

// Key returns the span's primary key
func (s *Span) Key() SpanKey {
	return SpanKey{SpanID: s.ID, TraceID: s.TraceID}
}

// IsMain reports whether the span is a main span
func (s *Span) IsMain() bool {
	return s.Type.IsMain()
}

// SpanKey is the (spanId, traceId) pair. Span ids are only unique within a
// trace, so every membership test uses the full key.
type SpanKey struct {
	SpanID  string `json:"spanId"`
	TraceID string `json:"traceId"`
}

func (k SpanKey) String() string {
	return k.TraceID + "/" + k.SpanID
}

// SpanKeySet is a set of span keys
type SpanKeySet map[SpanKey]struct{}

// NewSpanKeySet builds a set from keys
func NewSpanKeySet(keys ...SpanKey) SpanKeySet {
	set := make(SpanKeySet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Add adds a key
func (s SpanKeySet) Add(k SpanKey) {
	s[k] = struct{}{}
}

// Has reports membership. A nil set contains nothing.
func (s SpanKeySet) Has(k SpanKey) bool {
	_, ok := s[k]
	return ok
}

// Len returns the number of keys
func (s SpanKeySet) Len() int {
	return len(s)
}

// Keys returns the keys ordered by (traceId, spanId)
func (s SpanKeySet) Keys() []SpanKey {
	keys := make([]SpanKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TraceID != keys[j].TraceID {
			return keys[i].TraceID < keys[j].TraceID
		}
		return keys[i].SpanID < keys[j].SpanID
	})
	return keys
}

// SplitKeys splits keys into parallel slices for backends that bind tuples
// as two arrays.
func SplitKeys(keys []SpanKey) (spanIDs, traceIDs []string) {
	spanIDs = make([]string, len(keys))
	traceIDs = make([]string, len(keys))
	for i, k := range keys {
		spanIDs[i] = k.SpanID
		traceIDs[i] = k.TraceID
	}
	return spanIDs, traceIDs
}
