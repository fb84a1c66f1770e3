package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/domain"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/pkg/logger"
)

// CommitRepository defines commit repository operations
type CommitRepository interface {
	GetByUUID(ctx context.Context, workspaceID int64, commitUUID uuid.UUID) (*domain.Commit, error)
	// GetAncestry returns the commit followed by its ancestors, most recent first
	GetAncestry(ctx context.Context, commit *domain.Commit) ([]domain.Commit, error)
}

// CommitHistoryResolver resolves the version lineage that scopes queries
type CommitHistoryResolver struct {
	repo   CommitRepository
	logger *zap.Logger
}

// NewCommitHistoryResolver creates a new resolver
func NewCommitHistoryResolver(repo CommitRepository, log *zap.Logger) *CommitHistoryResolver {
	if log == nil {
		log = logger.Log
	}
	return &CommitHistoryResolver{repo: repo, logger: log}
}

// Resolve returns the ancestry of a commit. A commit that cannot be
// resolved yields an empty history, which callers treat as an empty scope.
func (r *CommitHistoryResolver) Resolve(ctx context.Context, workspaceID int64, commitUUID uuid.UUID) (*domain.CommitHistory, error) {
	commit, err := r.repo.GetByUUID(ctx, workspaceID, commitUUID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			logger.WithWorkspace(r.logger, workspaceID).Debug("commit not resolvable, scope is empty",
				zap.String("commit_uuid", commitUUID.String()),
			)
			return &domain.CommitHistory{}, nil
		}
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	if commit.DeletedAt != nil {
		return &domain.CommitHistory{}, nil
	}

	commits, err := r.repo.GetAncestry(ctx, commit)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit ancestry: %w", err)
	}

	return &domain.CommitHistory{Commits: commits}, nil
}
