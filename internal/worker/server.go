package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/config"
)

// Server is the worker server
type Server struct {
	logger    *zap.Logger
	config    *config.Config
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	client    *asynq.Client
}

// WorkerDependencies holds dependencies for workers
type WorkerDependencies struct {
	SpanEvents SpanCreatedHandler
	Backfill   Backfiller
}

// RedisOpt builds the asynq connection options from config
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// Queues maps the configured queue names to their priorities
func Queues(cfg config.WorkerConfig) map[string]int {
	return map[string]int{
		queueName(cfg.QueueCritical, "critical"): 6,
		queueName(cfg.QueueDefault, "default"):   3,
		queueName(cfg.QueueLow, "low"):           1,
	}
}

func queueName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// NewServer creates a new worker server
func NewServer(
	logger *zap.Logger,
	cfg *config.Config,
	deps *WorkerDependencies,
) (*Server, error) {
	redisOpt := RedisOpt(cfg)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues:      Queues(cfg.Worker),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	mux := NewServeMux(logger, cfg, deps)

	scheduler := asynq.NewScheduler(redisOpt, nil)

	client := asynq.NewClient(redisOpt)

	return &Server{
		logger:    logger,
		config:    cfg,
		server:    server,
		mux:       mux,
		scheduler: scheduler,
		client:    client,
	}, nil
}

// NewServeMux registers the task handlers
func NewServeMux(logger *zap.Logger, cfg *config.Config, deps *WorkerDependencies) *asynq.ServeMux {
	mux := asynq.NewServeMux()

	if deps.SpanEvents != nil {
		mux.HandleFunc(TypeSpansCreated, NewSpanWorker(logger, deps.SpanEvents).ProcessTask)
	}
	if deps.Backfill != nil {
		mux.HandleFunc(TypeSpansBackfill, NewBackfillWorker(logger, deps.Backfill, cfg.Worker.BackfillBatch).ProcessTask)
	}

	return mux
}

// Start starts the worker server
func (s *Server) Start() error {
	if err := s.registerScheduledTasks(); err != nil {
		return fmt.Errorf("failed to register scheduled tasks: %w", err)
	}

	go func() {
		if err := s.scheduler.Run(); err != nil {
			s.logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	s.logger.Info("starting worker server",
		zap.Int("concurrency", s.config.Worker.Concurrency),
		zap.Bool("backfill_enabled", s.config.Worker.BackfillEnabled),
	)

	return s.server.Run(s.mux)
}

// Stop stops the worker server
func (s *Server) Stop() {
	s.server.Shutdown()
	s.scheduler.Shutdown()
	s.client.Close()
}

// Client returns the asynq client for enqueuing tasks
func (s *Server) Client() *asynq.Client {
	return s.client
}

// registerScheduledTasks registers periodic tasks with the scheduler
func (s *Server) registerScheduledTasks() error {
	if !s.config.Worker.BackfillEnabled {
		return nil
	}

	task, err := NewBackfillTask(&BackfillPayload{Batch: s.config.Worker.BackfillBatch})
	if err != nil {
		return err
	}

	_, err = s.scheduler.Register(
		s.config.Worker.BackfillCron,
		task,
		asynq.Queue(queueName(s.config.Worker.QueueLow, "low")),
	)
	if err != nil {
		return fmt.Errorf("failed to register span backfill task: %w", err)
	}

	return nil
}

// asynqLogger adapts zap.Logger to asynq.Logger
type asynqLogger struct {
	logger *zap.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}

// Enqueuer enqueues tasks
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueSpanCreated enqueues a span created task
func EnqueueSpanCreated(ctx context.Context, client Enqueuer, queue string, payload *SpanCreatedPayload) error {
	task, err := NewSpanCreatedTask(payload)
	if err != nil {
		return err
	}
	_, err = client.EnqueueContext(ctx, task, asynq.Queue(queueName(queue, "critical")))
	return err
}

// EnqueueBackfill enqueues an immediate backfill run
func EnqueueBackfill(ctx context.Context, client Enqueuer, queue string, payload *BackfillPayload) error {
	task, err := NewBackfillTask(payload)
	if err != nil {
		return err
	}
	_, err = client.EnqueueContext(ctx, task, asynq.Queue(queueName(queue, "low")))
	return err
}
