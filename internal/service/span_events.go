package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/logger"
	"github.com/spanquery/spanquery/internal/pkg/metrics"
)

// Event types published for created spans
const (
	EventMainSpanCreated     = "span:main-created"
	EventConversationUpdated = "conversation:updated"
)

// SpanEvent is published to a workspace's event channel
type SpanEvent struct {
	Type        string    `json:"type"`
	WorkspaceID int64     `json:"workspaceId"`
	Data        any       `json:"data"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventPublisher publishes messages on a channel
type EventPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// SpanGetter looks up a single span
type SpanGetter interface {
	GetSpan(ctx context.Context, workspaceID int64, spanID, traceID string) (*domain.Span, error)
}

// WorkspaceChannel returns the event channel of a workspace
func WorkspaceChannel(workspaceID int64) string {
	return fmt.Sprintf("workspace:%d:events", workspaceID)
}

// SpanEventService republishes span creation for main spans
type SpanEventService struct {
	spans     SpanGetter
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewSpanEventService creates a new span event service
func NewSpanEventService(spans SpanGetter, publisher EventPublisher, log *zap.Logger) *SpanEventService {
	if log == nil {
		log = logger.Log
	}
	return &SpanEventService{spans: spans, publisher: publisher, logger: log, now: time.Now}
}

// HandleSpanCreated looks the span up and, when it is a main span,
// publishes a main-span event and, for spans with a document log, a
// conversation update. It reports whether anything was published.
//
// Only a failed main-span publish is returned, so a retried task never
// repeats that event. A failed conversation update is logged and dropped.
func (s *SpanEventService) HandleSpanCreated(ctx context.Context, workspaceID int64, spanID, traceID string) (bool, error) {
	span, err := s.spans.GetSpan(ctx, workspaceID, spanID, traceID)
	if err != nil {
		return false, err
	}
	if !span.IsMain() {
		return false, nil
	}

	log := logger.WithSpan(logger.WithWorkspace(s.logger, workspaceID), spanID, traceID)

	if err := s.publish(ctx, workspaceID, EventMainSpanCreated, span); err != nil {
		return false, err
	}

	if span.DocumentLogUUID != nil {
		data := map[string]string{
			"documentLogUuid": span.DocumentLogUUID.String(),
			"traceId":         span.TraceID,
		}
		if err := s.publish(ctx, workspaceID, EventConversationUpdated, data); err != nil {
			log.Warn("failed to publish conversation update", zap.Error(err))
		}
	}

	log.Debug("published span events", zap.String("type", string(span.Type)))
	return true, nil
}

func (s *SpanEventService) publish(ctx context.Context, workspaceID int64, eventType string, data any) error {
	payload, err := json.Marshal(SpanEvent{
		Type:        eventType,
		WorkspaceID: workspaceID,
		Data:        data,
		Timestamp:   s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	if err := s.publisher.Publish(ctx, WorkspaceChannel(workspaceID), payload); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	metrics.RecordEventPublished(eventType)
	return nil
}
