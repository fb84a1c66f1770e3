package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/service"
)

const (
	// TypeSpansBackfill is the task type for the span denormalization backfill
	TypeSpansBackfill = "spans:backfill"

	defaultBackfillBatch = 1000
)

// BackfillPayload is the payload for backfill tasks
type BackfillPayload struct {
	Batch int `json:"batch"`
}

// NewBackfillTask creates a backfill task
func NewBackfillTask(payload *BackfillPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backfill payload: %w", err)
	}
	return asynq.NewTask(TypeSpansBackfill, data, asynq.MaxRetry(1), asynq.Timeout(10*time.Minute)), nil
}

// Backfiller runs one backfill batch
type Backfiller interface {
	Run(ctx context.Context, batch int) (*service.BackfillResult, error)
}

// BackfillWorker fills denormalized span columns in batches
type BackfillWorker struct {
	logger     *zap.Logger
	backfiller Backfiller
	batch      int
}

// NewBackfillWorker creates a new backfill worker. batch is used when a task
// does not carry its own.
func NewBackfillWorker(logger *zap.Logger, backfiller Backfiller, batch int) *BackfillWorker {
	if batch <= 0 {
		batch = defaultBackfillBatch
	}
	return &BackfillWorker{logger: logger, backfiller: backfiller, batch: batch}
}

// ProcessTask processes a backfill task
func (w *BackfillWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload BackfillPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal backfill payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	batch := payload.Batch
	if batch <= 0 {
		batch = w.batch
	}

	start := time.Now()
	result, err := w.backfiller.Run(ctx, batch)
	if err != nil {
		return fmt.Errorf("span backfill failed: %w", err)
	}

	w.logger.Info("span backfill task completed",
		zap.Int("batch", batch),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}
