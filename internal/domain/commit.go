package domain

import (
	"time"

	"github.com/google/uuid"
)

// Commit is a version pointer of a project. Drafts have no MergedAt.
type Commit struct {
	ID        int64      `json:"id"`
	UUID      uuid.UUID  `json:"uuid"`
	ProjectID int64      `json:"projectId"`
	MergedAt  *time.Time `json:"mergedAt,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// IsDraft reports whether the commit is unmerged
func (c *Commit) IsDraft() bool {
	return c.MergedAt == nil
}

// CommitHistory is a commit followed by its ancestry, most recent first.
// An empty history means the scope resolves to nothing.
type CommitHistory struct {
	Commits []Commit `json:"commits"`
}

// IsEmpty reports whether the history has no commits
func (h *CommitHistory) IsEmpty() bool {
	return h == nil || len(h.Commits) == 0
}

// IDs returns the commit ids in history order
func (h *CommitHistory) IDs() []int64 {
	if h == nil {
		return nil
	}
	ids := make([]int64, len(h.Commits))
	for i, c := range h.Commits {
		ids[i] = c.ID
	}
	return ids
}

// UUIDs returns the commit uuids in history order
func (h *CommitHistory) UUIDs() []uuid.UUID {
	if h == nil {
		return nil
	}
	uuids := make([]uuid.UUID, len(h.Commits))
	for i, c := range h.Commits {
		uuids[i] = c.UUID
	}
	return uuids
}
