package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/config"
	"github.com/spanquery/spanquery/internal/handler"
	"github.com/spanquery/spanquery/internal/middleware"
	"github.com/spanquery/spanquery/internal/pkg/database"
	"github.com/spanquery/spanquery/internal/pkg/logger"
	chrepo "github.com/spanquery/spanquery/internal/repository/clickhouse"
	pgrepo "github.com/spanquery/spanquery/internal/repository/postgres"
	"github.com/spanquery/spanquery/internal/service"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger

	Postgres   *database.PostgresDB
	ClickHouse *database.ClickHouseDB
	Redis      *database.RedisDB

	SpanService *service.SpanService

	HealthHandler *handler.HealthHandler
	SpansHandler  *handler.SpansHandler
	RateCounter   middleware.RateCounter
}

// initDependencies opens every backend and wires the span service
func initDependencies(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Logger: log}

	pg, err := database.NewPostgres(ctx, cfg.Postgres, logger.IsDebug())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	deps.Postgres = pg

	ch, err := database.NewClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}
	deps.ClickHouse = ch

	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	deps.Redis = rdb

	deps.SpanService = newSpanService(cfg, pg, ch, rdb, log)

	deps.HealthHandler = handler.NewHealthHandler(appVersion,
		handler.Dependency{Name: "postgres", Pinger: pg},
		handler.Dependency{Name: "clickhouse", Pinger: ch},
		handler.Dependency{Name: "redis", Pinger: rdb},
	)
	deps.SpansHandler = handler.NewSpansHandler(deps.SpanService, log)
	deps.RateCounter = middleware.NewRedisRateCounter(rdb.Client)

	return deps, nil
}

// newSpanService builds the query engine over both backends. The relational
// pair is the default; workspaces flagged for the analytical backend read
// from ClickHouse.
func newSpanService(
	cfg *config.Config,
	pg *database.PostgresDB,
	ch *database.ClickHouseDB,
	rdb *database.RedisDB,
	log *zap.Logger,
) *service.SpanService {
	relational := service.BackendPair{
		Spans:   pgrepo.NewSpanRepository(pg),
		Results: pgrepo.NewEvaluationResultRepository(pg),
	}
	analytical := service.BackendPair{
		Spans:   chrepo.NewSpanRepository(ch),
		Results: chrepo.NewEvaluationResultRepository(ch),
	}

	flags := service.NewCachedFeatureFlags(
		pgrepo.NewFeatureRepository(pg),
		database.NewCache(rdb, cfg.Flags.CacheTTL()),
		log,
	)

	return service.NewSpanService(
		service.NewCommitHistoryResolver(pgrepo.NewCommitRepository(pg), log),
		pgrepo.NewOptimizationRepository(pg),
		service.NewBackendSelector(flags, relational, analytical, log),
		service.QueryOptionsFromConfig(cfg.Query),
		log,
	)
}

// Close closes all connections
func (d *Dependencies) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.ClickHouse != nil {
		_ = d.ClickHouse.Close()
	}
	if d.Postgres != nil {
		d.Postgres.Close()
	}
}
