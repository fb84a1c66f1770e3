package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/config"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/service"
)

type MockSpanCreatedHandler struct {
	mock.Mock
}

func (m *MockSpanCreatedHandler) HandleSpanCreated(ctx context.Context, workspaceID int64, spanID, traceID string) (bool, error) {
	args := m.Called(ctx, workspaceID, spanID, traceID)
	return args.Bool(0), args.Error(1)
}

type MockBackfiller struct {
	mock.Mock
}

func (m *MockBackfiller) Run(ctx context.Context, batch int) (*service.BackfillResult, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BackfillResult), args.Error(1)
}

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	return &asynq.TaskInfo{}, args.Error(0)
}

func TestNewSpanCreatedTask(t *testing.T) {
	payload := &SpanCreatedPayload{WorkspaceID: 3, SpanID: "s1", TraceID: "t1"}

	task, err := NewSpanCreatedTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeSpansCreated, task.Type())

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, float64(3), decoded["workspaceId"])
	assert.Equal(t, "s1", decoded["spanId"])
	assert.Equal(t, "t1", decoded["traceId"])
}

func TestSpanWorker_ProcessTask(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes main span", func(t *testing.T) {
		handler := new(MockSpanCreatedHandler)
		handler.On("HandleSpanCreated", ctx, int64(3), "s1", "t1").Return(true, nil)

		task, err := NewSpanCreatedTask(&SpanCreatedPayload{WorkspaceID: 3, SpanID: "s1", TraceID: "t1"})
		require.NoError(t, err)

		err = NewSpanWorker(zap.NewNop(), handler).ProcessTask(ctx, task)
		assert.NoError(t, err)
		handler.AssertExpectations(t)
	})

	t.Run("malformed payload is not retried", func(t *testing.T) {
		handler := new(MockSpanCreatedHandler)
		task := asynq.NewTask(TypeSpansCreated, []byte("{"))

		err := NewSpanWorker(zap.NewNop(), handler).ProcessTask(ctx, task)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
		handler.AssertNotCalled(t, "HandleSpanCreated")
	})

	t.Run("incomplete payload is not retried", func(t *testing.T) {
		handler := new(MockSpanCreatedHandler)
		task, err := NewSpanCreatedTask(&SpanCreatedPayload{WorkspaceID: 3, SpanID: "s1"})
		require.NoError(t, err)

		err = NewSpanWorker(zap.NewNop(), handler).ProcessTask(ctx, task)
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("missing span is retried", func(t *testing.T) {
		handler := new(MockSpanCreatedHandler)
		handler.On("HandleSpanCreated", ctx, int64(3), "s1", "t1").Return(false, apperrors.NotFound("span"))

		task, err := NewSpanCreatedTask(&SpanCreatedPayload{WorkspaceID: 3, SpanID: "s1", TraceID: "t1"})
		require.NoError(t, err)

		err = NewSpanWorker(zap.NewNop(), handler).ProcessTask(ctx, task)
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestBackfillWorker_ProcessTask(t *testing.T) {
	ctx := context.Background()

	t.Run("uses payload batch", func(t *testing.T) {
		backfiller := new(MockBackfiller)
		backfiller.On("Run", ctx, 50).Return(&service.BackfillResult{Scanned: 2, Updated: 2}, nil)

		task, err := NewBackfillTask(&BackfillPayload{Batch: 50})
		require.NoError(t, err)

		assert.NoError(t, NewBackfillWorker(zap.NewNop(), backfiller, 500).ProcessTask(ctx, task))
		backfiller.AssertExpectations(t)
	})

	t.Run("falls back to configured batch", func(t *testing.T) {
		backfiller := new(MockBackfiller)
		backfiller.On("Run", ctx, 500).Return(&service.BackfillResult{}, nil)

		task := asynq.NewTask(TypeSpansBackfill, nil)
		assert.NoError(t, NewBackfillWorker(zap.NewNop(), backfiller, 500).ProcessTask(ctx, task))
		backfiller.AssertExpectations(t)
	})

	t.Run("default batch", func(t *testing.T) {
		w := NewBackfillWorker(zap.NewNop(), new(MockBackfiller), 0)
		assert.Equal(t, defaultBackfillBatch, w.batch)
	})

	t.Run("run error", func(t *testing.T) {
		backfiller := new(MockBackfiller)
		backfiller.On("Run", ctx, 500).Return(nil, errors.New("db down"))

		task := asynq.NewTask(TypeSpansBackfill, nil)
		err := NewBackfillWorker(zap.NewNop(), backfiller, 500).ProcessTask(ctx, task)
		assert.ErrorContains(t, err, "db down")
	})
}

func TestQueues(t *testing.T) {
	assert.Equal(t, map[string]int{"critical": 6, "default": 3, "low": 1}, Queues(config.WorkerConfig{}))
	assert.Equal(t,
		map[string]int{"spans-hi": 6, "default": 3, "spans-lo": 1},
		Queues(config.WorkerConfig{QueueCritical: "spans-hi", QueueLow: "spans-lo"}),
	)
}

func TestEnqueueSpanCreated(t *testing.T) {
	ctx := context.Background()
	client := new(MockEnqueuer)
	client.On("EnqueueContext", ctx, mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == TypeSpansCreated
	}), mock.Anything).Return(nil)

	err := EnqueueSpanCreated(ctx, client, "", &SpanCreatedPayload{WorkspaceID: 1, SpanID: "s", TraceID: "t"})
	assert.NoError(t, err)
	client.AssertExpectations(t)
}

func TestNewServeMux(t *testing.T) {
	cfg := &config.Config{Worker: config.WorkerConfig{BackfillBatch: 10}}
	mux := NewServeMux(zap.NewNop(), cfg, &WorkerDependencies{
		SpanEvents: new(MockSpanCreatedHandler),
		Backfill:   new(MockBackfiller),
	})

	_, pattern := mux.Handler(asynq.NewTask(TypeSpansBackfill, nil))
	assert.Equal(t, TypeSpansBackfill, pattern)

	_, pattern = mux.Handler(asynq.NewTask(TypeSpansCreated, nil))
	assert.Equal(t, TypeSpansCreated, pattern)
}
