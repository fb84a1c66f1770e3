package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/spanquery/spanquery/internal/config"
	"github.com/spanquery/spanquery/internal/pkg/database"
)

// getTestDB returns a database connection for integration tests.
// Returns nil if the database is not available (skips tests).
func getTestDB(t *testing.T) *database.PostgresDB {
	if os.Getenv("POSTGRES_TEST_HOST") == "" {
		t.Skip("Skipping integration test: POSTGRES_TEST_HOST not set")
		return nil
	}

	cfg := config.PostgresConfig{
		Host:     os.Getenv("POSTGRES_TEST_HOST"),
		Port:     5432,
		User:     os.Getenv("POSTGRES_TEST_USER"),
		Password: os.Getenv("POSTGRES_TEST_PASS"),
		Database: os.Getenv("POSTGRES_TEST_DB"),
		SSLMode:  "disable",
		MaxConns: 5,
		MinConns: 1,
	}

	if cfg.Database == "" {
		cfg.Database = "test_spanquery"
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}

	db, err := database.NewPostgres(context.Background(), cfg, false)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to PostgreSQL: %v", err)
		return nil
	}

	return db
}

// cleanupSpans removes test spans from the database
func cleanupSpans(t *testing.T, db *database.PostgresDB, workspaceID int64) {
	ctx := context.Background()
	_, _ = db.Pool.Exec(ctx, "DELETE FROM spans WHERE workspace_id = $1", workspaceID)
	_, _ = db.Pool.Exec(ctx, "DELETE FROM evaluation_results WHERE workspace_id = $1", workspaceID)
}
