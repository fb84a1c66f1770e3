package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/config"
	"github.com/spanquery/spanquery/internal/pkg/database"
	"github.com/spanquery/spanquery/internal/pkg/logger"
	chrepo "github.com/spanquery/spanquery/internal/repository/clickhouse"
	pgrepo "github.com/spanquery/spanquery/internal/repository/postgres"
	"github.com/spanquery/spanquery/internal/service"
	"github.com/spanquery/spanquery/internal/worker"
)

// backfillPositionTTL bounds how long an idle backfill walk keeps its position
const backfillPositionTTL = 7 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer func() { _ = logger.Sync() }()

	log.Info("starting worker service")

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	deps, cleanup, err := initWorkerDependencies(initCtx, cfg, log)
	cancelInit()
	if err != nil {
		log.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer cleanup()

	workerServer, err := worker.NewServer(log, cfg, deps)
	if err != nil {
		log.Fatal("failed to create worker server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- workerServer.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down worker...")
		workerServer.Stop()
	case err := <-errCh:
		if err != nil {
			log.Error("worker server error", zap.Error(err))
		}
	}

	log.Info("worker stopped")
}

// initWorkerDependencies wires the span event and backfill services
func initWorkerDependencies(ctx context.Context, cfg *config.Config, log *zap.Logger) (*worker.WorkerDependencies, func(), error) {
	pg, err := database.NewPostgres(ctx, cfg.Postgres, logger.IsDebug())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	ch, err := database.NewClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}

	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		_ = ch.Close()
		pg.Close()
		return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	flags := service.NewCachedFeatureFlags(
		pgrepo.NewFeatureRepository(pg),
		database.NewCache(rdb, cfg.Flags.CacheTTL()),
		log,
	)
	selector := service.NewBackendSelector(flags,
		service.BackendPair{
			Spans:   pgrepo.NewSpanRepository(pg),
			Results: pgrepo.NewEvaluationResultRepository(pg),
		},
		service.BackendPair{
			Spans:   chrepo.NewSpanRepository(ch),
			Results: chrepo.NewEvaluationResultRepository(ch),
		},
		log,
	)
	spans := service.NewSpanService(
		service.NewCommitHistoryResolver(pgrepo.NewCommitRepository(pg), log),
		pgrepo.NewOptimizationRepository(pg),
		selector,
		service.QueryOptionsFromConfig(cfg.Query),
		log,
	)

	deps := &worker.WorkerDependencies{
		SpanEvents: service.NewSpanEventService(spans, rdb, log),
		Backfill: service.NewBackfillService(
			pgrepo.NewBackfillRepository(pg),
			database.NewCache(rdb, backfillPositionTTL),
			log,
		),
	}

	cleanup := func() {
		_ = rdb.Close()
		_ = ch.Close()
		pg.Close()
	}

	return deps, cleanup, nil
}
