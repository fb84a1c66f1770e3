package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/config"
	"github.com/spanquery/spanquery/internal/pkg/circuitbreaker"
	"github.com/spanquery/spanquery/internal/pkg/logger"
	"github.com/spanquery/spanquery/internal/pkg/metrics"
)

const clickhouseLabel = "clickhouse"

// ClickHouseDB wraps a ClickHouse connection. Reads go through a circuit
// breaker so an unreachable cluster fails fast with ErrCircuitOpen.
type ClickHouseDB struct {
	Conn    driver.Conn
	breaker *circuitbreaker.CircuitBreaker
}

// NewClickHouse creates a new ClickHouse connection
func NewClickHouse(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseDB, error) {
	maxExec := cfg.MaxExecutionSeconds
	if maxExec <= 0 {
		maxExec = 60
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": maxExec,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     25,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	logger.Info("connected to ClickHouse",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return &ClickHouseDB{Conn: conn, breaker: newClickHouseBreaker()}, nil
}

func newClickHouseBreaker() *circuitbreaker.CircuitBreaker {
	cfg := circuitbreaker.DefaultConfig(clickhouseLabel)
	cfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		metrics.SetCircuitState(name, int(to))
		logger.Warn("circuit breaker state changed",
			zap.String("database", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return circuitbreaker.New(cfg)
}

// Close closes the connection
func (db *ClickHouseDB) Close() error {
	if db.Conn != nil {
		return db.Conn.Close()
	}
	return nil
}

// Ping checks the connection
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	if db.Conn == nil {
		return fmt.Errorf("clickhouse connection not initialized")
	}
	return db.Conn.Ping(ctx)
}

// Query executes a named query
func (db *ClickHouseDB) Query(ctx context.Context, operation string, query string, args ...interface{}) (driver.Rows, error) {
	if err := db.allow(); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := db.Conn.Query(ctx, query, args...)
	db.done(err)
	db.observe(operation, start, query, err)
	return rows, err
}

func (db *ClickHouseDB) allow() error {
	if db.breaker == nil {
		return nil
	}
	return db.breaker.Allow()
}

func (db *ClickHouseDB) done(err error) {
	if db.breaker != nil {
		db.breaker.Done(err)
	}
}

func (db *ClickHouseDB) observe(operation string, start time.Time, query string, err error) {
	duration := time.Since(start)
	metrics.Track(clickhouseLabel, operation, start, err)

	if duration > metrics.SlowQueryThreshold {
		logger.Warn("slow query detected",
			zap.String("database", clickhouseLabel),
			zap.String("operation", operation),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("sql", truncateSQL(query, 200)),
		)
	}
}
