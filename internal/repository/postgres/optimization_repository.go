package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/database"
)

// OptimizationRepository handles optimization data operations in PostgreSQL
type OptimizationRepository struct {
	db *database.PostgresDB
}

// NewOptimizationRepository creates a new optimization repository
func NewOptimizationRepository(db *database.PostgresDB) *OptimizationRepository {
	return &OptimizationRepository{db: db}
}

// ListByWorkspace retrieves the live optimizations of a workspace
func (r *OptimizationRepository) ListByWorkspace(ctx context.Context, workspaceID int64) ([]domain.Optimization, error) {
	query := `
		SELECT id, workspace_id, baseline_experiment_uuid, optimized_experiment_uuid
		FROM optimizations
		WHERE workspace_id = $1 AND deleted_at IS NULL
	`

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "optimizations.list"), query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list optimizations: %w", err)
	}
	defer rows.Close()

	var optimizations []domain.Optimization
	for rows.Next() {
		var o domain.Optimization
		if err := rows.Scan(&o.ID, &o.WorkspaceID, &o.BaselineExperimentUUID, &o.OptimizedExperimentUUID); err != nil {
			return nil, fmt.Errorf("failed to scan optimization: %w", err)
		}
		optimizations = append(optimizations, o)
	}

	return optimizations, rows.Err()
}

// ListOptimizationExperimentUUIDs returns the distinct experiments backing
// the workspace's optimizations
func (r *OptimizationRepository) ListOptimizationExperimentUUIDs(ctx context.Context, workspaceID int64) ([]uuid.UUID, error) {
	optimizations, err := r.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for i := range optimizations {
		for _, u := range optimizations[i].ExperimentUUIDs() {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}

	return out, nil
}
