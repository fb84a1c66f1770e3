package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
)

const (
	// TypeSpansCreated is the task type emitted by ingestion for each new span
	TypeSpansCreated = "spans:created"
)

// SpanCreatedPayload is the payload for span created tasks
type SpanCreatedPayload struct {
	WorkspaceID int64  `json:"workspaceId"`
	SpanID      string `json:"spanId"`
	TraceID     string `json:"traceId"`
}

// NewSpanCreatedTask creates a span created task
func NewSpanCreatedTask(payload *SpanCreatedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal span created payload: %w", err)
	}
	return asynq.NewTask(TypeSpansCreated, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// SpanCreatedHandler reacts to a newly ingested span
type SpanCreatedHandler interface {
	HandleSpanCreated(ctx context.Context, workspaceID int64, spanID, traceID string) (bool, error)
}

// SpanWorker publishes realtime events for created spans
type SpanWorker struct {
	logger  *zap.Logger
	handler SpanCreatedHandler
}

// NewSpanWorker creates a new span worker
func NewSpanWorker(logger *zap.Logger, handler SpanCreatedHandler) *SpanWorker {
	return &SpanWorker{logger: logger, handler: handler}
}

// ProcessTask processes a span created task
func (w *SpanWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload SpanCreatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal span created payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.WorkspaceID <= 0 || payload.SpanID == "" || payload.TraceID == "" {
		return fmt.Errorf("incomplete span created payload: %w", asynq.SkipRetry)
	}

	published, err := w.handler.HandleSpanCreated(ctx, payload.WorkspaceID, payload.SpanID, payload.TraceID)
	if err != nil {
		// ingestion may enqueue before the span is readable, so not found retries
		if apperrors.IsValidation(err) {
			return fmt.Errorf("span created task rejected: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to handle span created: %w", err)
	}

	if published {
		w.logger.Debug("span events published",
			zap.Int64("workspace_id", payload.WorkspaceID),
			zap.String("span_id", payload.SpanID),
			zap.String("trace_id", payload.TraceID),
		)
	}

	return nil
}
