package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/database"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
)

const commitColumns = `c.id, c.uuid, c.project_id, c.merged_at, c.deleted_at`

// CommitRepository handles commit data operations in PostgreSQL
type CommitRepository struct {
	db *database.PostgresDB
}

// NewCommitRepository creates a new commit repository
func NewCommitRepository(db *database.PostgresDB) *CommitRepository {
	return &CommitRepository{db: db}
}

func scanCommit(row pgx.Row) (domain.Commit, error) {
	var c domain.Commit
	err := row.Scan(&c.ID, &c.UUID, &c.ProjectID, &c.MergedAt, &c.DeletedAt)
	return c, err
}

func collectCommits(rows pgx.Rows) ([]domain.Commit, error) {
	defer rows.Close()

	var commits []domain.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// GetByUUID retrieves a live commit of the workspace
func (r *CommitRepository) GetByUUID(ctx context.Context, workspaceID int64, commitUUID uuid.UUID) (*domain.Commit, error) {
	query := `
		SELECT ` + commitColumns + `
		FROM commits c
		JOIN projects p ON p.id = c.project_id
		WHERE p.workspace_id = $1 AND c.uuid = $2 AND c.deleted_at IS NULL
	`

	commit, err := scanCommit(r.db.Pool.QueryRow(database.WithOperation(ctx, "commits.get"), query, workspaceID, commitUUID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("commit")
		}
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	return &commit, nil
}

// GetAncestry returns the commit followed by its ancestors, most recent
// first. A merged commit's ancestry is every merged commit of the project up
// to its merge; a draft sits on top of every merged commit.
func (r *CommitRepository) GetAncestry(ctx context.Context, commit *domain.Commit) ([]domain.Commit, error) {
	a := &args{}
	conditions := []string{
		"c.project_id = " + a.bind(commit.ProjectID),
		"c.merged_at IS NOT NULL",
		"c.deleted_at IS NULL",
	}
	if commit.MergedAt != nil {
		conditions = append(conditions, "c.merged_at <= "+a.bind(*commit.MergedAt))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM commits c
		WHERE %s
		ORDER BY c.merged_at DESC, c.id DESC
	`, commitColumns, where(conditions))

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "commits.ancestry"), query, a.values...)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit ancestry: %w", err)
	}

	merged, err := collectCommits(rows)
	if err != nil {
		return nil, err
	}

	if commit.IsDraft() {
		return append([]domain.Commit{*commit}, merged...), nil
	}
	return merged, nil
}

// GetCommitsByIDs retrieves commits by id, deleted ones included
func (r *CommitRepository) GetCommitsByIDs(ctx context.Context, ids []int64) ([]domain.Commit, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + commitColumns + ` FROM commits c WHERE c.id = ANY($1)`

	rows, err := r.db.Pool.Query(database.WithOperation(ctx, "commits.by_ids"), query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get commits: %w", err)
	}

	return collectCommits(rows)
}
