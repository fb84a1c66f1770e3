package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
	Worker     WorkerConfig
	Log        LogConfig
	Query      QueryConfig
	Flags      FlagsConfig
	Sentry     SentryConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`

	// RateLimitPerMinute caps requests per workspace. Zero disables it.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// DSN returns the PostgreSQL connection string
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	// MaxExecutionSeconds is enforced server side so a runaway scan surfaces
	// as a backend error instead of hanging the request.
	MaxExecutionSeconds int `mapstructure:"max_execution_seconds"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	Concurrency     int    `mapstructure:"concurrency"`
	QueueCritical   string `mapstructure:"queue_critical"`
	QueueDefault    string `mapstructure:"queue_default"`
	QueueLow        string `mapstructure:"queue_low"`
	BackfillEnabled bool   `mapstructure:"backfill_enabled"`
	BackfillCron    string `mapstructure:"backfill_cron"`
	BackfillBatch   int    `mapstructure:"backfill_batch"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// QueryConfig tunes the span query engine
type QueryConfig struct {
	DefaultWindowDays  int `mapstructure:"default_window_days"`
	MaxPageSize        int `mapstructure:"max_page_size"`
	OverfetchBatchSize int `mapstructure:"overfetch_batch_size"`
	OverfetchMaxRounds int `mapstructure:"overfetch_max_rounds"`
}

// DefaultWindow returns the trailing window applied to range-less span listings
func (c QueryConfig) DefaultWindow() time.Duration {
	return time.Duration(c.DefaultWindowDays) * 24 * time.Hour
}

// FlagsConfig holds feature flag lookup configuration
type FlagsConfig struct {
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

// CacheTTL returns the flag cache TTL. Zero disables caching.
func (c FlagsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	DSN              string  `mapstructure:"dsn"`
	Environment      string  `mapstructure:"environment"`
	Release          string  `mapstructure:"release"`
	Debug            bool    `mapstructure:"debug"`
	SampleRate       float64 `mapstructure:"sample_rate"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// IsDevelopment returns true if running in development mode
func (c Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c Config) IsProduction() bool {
	return c.Server.Env == "production"
}
