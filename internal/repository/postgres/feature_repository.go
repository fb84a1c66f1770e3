package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spanquery/spanquery/internal/pkg/database"
)

// FeatureRepository reads per-workspace feature flags from PostgreSQL
type FeatureRepository struct {
	db *database.PostgresDB
}

// NewFeatureRepository creates a new feature repository
func NewFeatureRepository(db *database.PostgresDB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

// IsEnabled reports whether a flag is on for a workspace. Flags without a
// workspace row are off.
func (r *FeatureRepository) IsEnabled(ctx context.Context, workspaceID int64, flag string) (bool, error) {
	query := `
		SELECT wf.enabled
		FROM workspace_features wf
		JOIN features f ON f.id = wf.feature_id
		WHERE wf.workspace_id = $1 AND f.name = $2
	`

	var enabled bool
	err := r.db.Pool.QueryRow(database.WithOperation(ctx, "features.is_enabled"), query, workspaceID, flag).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get feature flag: %w", err)
	}

	return enabled, nil
}
