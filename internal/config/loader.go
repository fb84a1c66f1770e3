package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/spanquery")

	// Ignore error if config file not found
	_ = v.ReadInConfig()

	cfg := fromViper(v)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	var cfg Config

	// Server
	cfg.Server.Host = v.GetString("server_host")
	cfg.Server.Port = v.GetInt("server_port")
	cfg.Server.Env = v.GetString("server_env")
	cfg.Server.RateLimitPerMinute = v.GetInt("server_rate_limit_per_minute")

	// PostgreSQL
	cfg.Postgres.Host = v.GetString("postgres_host")
	cfg.Postgres.Port = v.GetInt("postgres_port")
	cfg.Postgres.User = v.GetString("postgres_user")
	cfg.Postgres.Password = v.GetString("postgres_password")
	cfg.Postgres.Database = v.GetString("postgres_db")
	cfg.Postgres.SSLMode = v.GetString("postgres_ssl_mode")
	cfg.Postgres.MaxConns = int32(v.GetInt("postgres_max_conns"))
	cfg.Postgres.MinConns = int32(v.GetInt("postgres_min_conns"))

	// ClickHouse
	cfg.ClickHouse.Host = v.GetString("clickhouse_host")
	cfg.ClickHouse.Port = v.GetInt("clickhouse_port")
	cfg.ClickHouse.User = v.GetString("clickhouse_user")
	cfg.ClickHouse.Password = v.GetString("clickhouse_password")
	cfg.ClickHouse.Database = v.GetString("clickhouse_db")
	cfg.ClickHouse.MaxExecutionSeconds = v.GetInt("clickhouse_max_execution_seconds")

	// Redis
	cfg.Redis.Host = v.GetString("redis_host")
	cfg.Redis.Port = v.GetInt("redis_port")
	cfg.Redis.Password = v.GetString("redis_password")
	cfg.Redis.DB = v.GetInt("redis_db")

	// Worker
	cfg.Worker.Concurrency = v.GetInt("worker_concurrency")
	cfg.Worker.QueueCritical = v.GetString("worker_queue_critical")
	cfg.Worker.QueueDefault = v.GetString("worker_queue_default")
	cfg.Worker.QueueLow = v.GetString("worker_queue_low")
	cfg.Worker.BackfillEnabled = v.GetBool("backfill_worker_enabled")
	cfg.Worker.BackfillCron = v.GetString("backfill_worker_cron")
	cfg.Worker.BackfillBatch = v.GetInt("backfill_worker_batch")

	// Logging
	cfg.Log.Level = v.GetString("log_level")
	cfg.Log.Format = v.GetString("log_format")

	// Query engine
	cfg.Query.DefaultWindowDays = v.GetInt("query_default_window_days")
	cfg.Query.MaxPageSize = v.GetInt("query_max_page_size")
	cfg.Query.OverfetchBatchSize = v.GetInt("query_overfetch_batch_size")
	cfg.Query.OverfetchMaxRounds = v.GetInt("query_overfetch_max_rounds")

	// Feature flags
	cfg.Flags.CacheTTLSeconds = v.GetInt("flags_cache_ttl_seconds")

	// Sentry
	cfg.Sentry.Enabled = v.GetBool("sentry_enabled")
	cfg.Sentry.DSN = v.GetString("sentry_dsn")
	cfg.Sentry.Environment = v.GetString("sentry_environment")
	cfg.Sentry.Release = v.GetString("sentry_release")
	cfg.Sentry.Debug = v.GetBool("sentry_debug")
	cfg.Sentry.SampleRate = v.GetFloat64("sentry_sample_rate")
	cfg.Sentry.TracesSampleRate = v.GetFloat64("sentry_traces_sample_rate")

	return &cfg
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8080)
	v.SetDefault("server_env", "development")
	v.SetDefault("server_rate_limit_per_minute", 600)

	// PostgreSQL defaults
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "spanquery")
	v.SetDefault("postgres_password", "spanquery")
	v.SetDefault("postgres_db", "spanquery")
	v.SetDefault("postgres_ssl_mode", "disable")
	v.SetDefault("postgres_max_conns", 25)
	v.SetDefault("postgres_min_conns", 5)

	// ClickHouse defaults
	v.SetDefault("clickhouse_host", "localhost")
	v.SetDefault("clickhouse_port", 9000)
	v.SetDefault("clickhouse_user", "spanquery")
	v.SetDefault("clickhouse_password", "spanquery")
	v.SetDefault("clickhouse_db", "spanquery")
	v.SetDefault("clickhouse_max_execution_seconds", 60)

	// Redis defaults
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	// Worker defaults
	v.SetDefault("worker_concurrency", 10)
	v.SetDefault("worker_queue_critical", "critical")
	v.SetDefault("worker_queue_default", "default")
	v.SetDefault("worker_queue_low", "low")
	v.SetDefault("backfill_worker_enabled", true)
	v.SetDefault("backfill_worker_cron", "*/5 * * * *")
	v.SetDefault("backfill_worker_batch", 500)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// Query engine defaults
	v.SetDefault("query_default_window_days", 30)
	v.SetDefault("query_max_page_size", 200)
	v.SetDefault("query_overfetch_batch_size", 100)
	v.SetDefault("query_overfetch_max_rounds", 10)

	// Feature flag defaults
	v.SetDefault("flags_cache_ttl_seconds", 30)

	// Sentry defaults
	v.SetDefault("sentry_enabled", false)
	v.SetDefault("sentry_sample_rate", 1.0)
	v.SetDefault("sentry_traces_sample_rate", 0.1)
}

func validate(cfg *Config) error {
	if cfg.Query.DefaultWindowDays <= 0 {
		return fmt.Errorf("query_default_window_days must be positive")
	}
	if cfg.Query.MaxPageSize <= 0 {
		return fmt.Errorf("query_max_page_size must be positive")
	}
	if cfg.Query.OverfetchBatchSize <= 0 {
		return fmt.Errorf("query_overfetch_batch_size must be positive")
	}
	if cfg.Query.OverfetchMaxRounds <= 0 {
		return fmt.Errorf("query_overfetch_max_rounds must be positive")
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server_rate_limit_per_minute must not be negative")
	}
	if cfg.Flags.CacheTTLSeconds < 0 {
		return fmt.Errorf("flags_cache_ttl_seconds must not be negative")
	}
	return nil
}
