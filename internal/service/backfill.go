package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/domain"
	"github.com/spanquery/spanquery/internal/pkg/logger"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// backfillPositionKey stores where the previous run stopped
const backfillPositionKey = "backfill:spans:position"

// BackfillRepository defines the reads and writes of the denormalization
// backfill
type BackfillRepository interface {
	// ListSpansToBackfill returns spans that have a document log but miss a
	// denormalized column, ascending by (startedAt, spanId, traceId) and
	// strictly after the given position
	ListSpansToBackfill(ctx context.Context, after *pagination.Cursor, limit int) ([]domain.Span, error)
	GetDocumentLogs(ctx context.Context, uuids []uuid.UUID) ([]domain.DocumentLog, error)
	GetCommitsByIDs(ctx context.Context, ids []int64) ([]domain.Commit, error)
	GetExperimentUUIDs(ctx context.Context, ids []int64) (map[int64]uuid.UUID, error)
	UpdateSpanDenormalization(ctx context.Context, update domain.SpanDenormalization) error
}

// BackfillPositionStore persists the scan position between runs
type BackfillPositionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// BackfillResult summarizes one backfill run. Wrapped is set when the run
// reached the newest candidate, so the next run starts over at the oldest.
type BackfillResult struct {
	Scanned int  `json:"scanned"`
	Updated int  `json:"updated"`
	Skipped int  `json:"skipped"`
	Wrapped bool `json:"wrapped"`
}

// backfillArena memoizes lookups for the duration of one run. It is created
// per run and passed down, so runs never share state.
type backfillArena struct {
	logs        map[uuid.UUID]domain.DocumentLog
	commits     map[int64]domain.Commit
	experiments map[int64]uuid.UUID
}

func newBackfillArena() *backfillArena {
	return &backfillArena{
		logs:        make(map[uuid.UUID]domain.DocumentLog),
		commits:     make(map[int64]domain.Commit),
		experiments: make(map[int64]uuid.UUID),
	}
}

// BackfillService fills the denormalized span columns from document logs.
// Runs walk the candidates oldest first and resume where the previous run
// stopped, so spans that cannot be resolved yet never block newer ones.
// They are retried once the walk wraps around.
type BackfillService struct {
	repo      BackfillRepository
	positions BackfillPositionStore
	logger    *zap.Logger
}

// NewBackfillService creates a new backfill service
func NewBackfillService(repo BackfillRepository, positions BackfillPositionStore, log *zap.Logger) *BackfillService {
	if log == nil {
		log = logger.Log
	}
	return &BackfillService{repo: repo, positions: positions, logger: log}
}

// Run backfills up to batch spans
func (s *BackfillService) Run(ctx context.Context, batch int) (*BackfillResult, error) {
	after := s.loadPosition(ctx)

	spans, err := s.repo.ListSpansToBackfill(ctx, after, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to list spans to backfill: %w", err)
	}

	result := &BackfillResult{Scanned: len(spans), Wrapped: len(spans) < batch}
	if len(spans) == 0 {
		if after != nil {
			s.savePosition(ctx, nil)
		}
		return result, nil
	}

	arena := newBackfillArena()
	if err := s.loadLogs(ctx, arena, spans); err != nil {
		return nil, err
	}
	if err := s.loadCommits(ctx, arena); err != nil {
		return nil, err
	}
	if err := s.loadExperiments(ctx, arena); err != nil {
		return nil, err
	}

	for i := range spans {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		update, ok := denormalize(arena, &spans[i])
		if !ok {
			result.Skipped++
			continue
		}
		if err := s.repo.UpdateSpanDenormalization(ctx, update); err != nil {
			return result, fmt.Errorf("failed to update span %s: %w", update.Key, err)
		}
		result.Updated++
	}

	var next *pagination.Cursor
	if !result.Wrapped {
		last := spans[len(spans)-1]
		c := pagination.SpanCursor(last.StartedAt, last.ID, last.TraceID)
		next = &c
	}
	s.savePosition(ctx, next)

	s.logger.Info("span backfill finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Bool("wrapped", result.Wrapped),
	)
	return result, nil
}

// loadPosition returns the stored position. An unreadable position restarts
// the walk at the oldest candidate.
func (s *BackfillService) loadPosition(ctx context.Context) *pagination.Cursor {
	if s.positions == nil {
		return nil
	}
	raw, ok, err := s.positions.Get(ctx, backfillPositionKey)
	if err != nil {
		s.logger.Warn("failed to read backfill position", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	after, err := pagination.DecodeShape(raw, pagination.ShapeSpan)
	if err != nil {
		s.logger.Warn("discarding invalid backfill position", zap.Error(err))
		return nil
	}
	return after
}

func (s *BackfillService) savePosition(ctx context.Context, next *pagination.Cursor) {
	if s.positions == nil {
		return
	}
	value := ""
	if next != nil {
		value = next.Encode()
	}
	if err := s.positions.Set(ctx, backfillPositionKey, value); err != nil {
		s.logger.Warn("failed to store backfill position", zap.Error(err))
	}
}

func (s *BackfillService) loadLogs(ctx context.Context, arena *backfillArena, spans []domain.Span) error {
	var missing []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, sp := range spans {
		if sp.DocumentLogUUID == nil || seen[*sp.DocumentLogUUID] {
			continue
		}
		seen[*sp.DocumentLogUUID] = true
		if _, ok := arena.logs[*sp.DocumentLogUUID]; !ok {
			missing = append(missing, *sp.DocumentLogUUID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	logs, err := s.repo.GetDocumentLogs(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to get document logs: %w", err)
	}
	for _, l := range logs {
		arena.logs[l.UUID] = l
	}
	return nil
}

func (s *BackfillService) loadCommits(ctx context.Context, arena *backfillArena) error {
	var missing []int64
	seen := make(map[int64]bool)
	for _, l := range arena.logs {
		if seen[l.CommitID] {
			continue
		}
		seen[l.CommitID] = true
		if _, ok := arena.commits[l.CommitID]; !ok {
			missing = append(missing, l.CommitID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	commits, err := s.repo.GetCommitsByIDs(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to get commits: %w", err)
	}
	for _, c := range commits {
		arena.commits[c.ID] = c
	}
	return nil
}

func (s *BackfillService) loadExperiments(ctx context.Context, arena *backfillArena) error {
	var missing []int64
	seen := make(map[int64]bool)
	for _, l := range arena.logs {
		if l.ExperimentID == nil || seen[*l.ExperimentID] {
			continue
		}
		seen[*l.ExperimentID] = true
		if _, ok := arena.experiments[*l.ExperimentID]; !ok {
			missing = append(missing, *l.ExperimentID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	experiments, err := s.repo.GetExperimentUUIDs(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to get experiments: %w", err)
	}
	for id, u := range experiments {
		arena.experiments[id] = u
	}
	return nil
}

// denormalize builds the update for a span from the arena. Spans whose log
// or commit cannot be resolved are skipped until the walk wraps around.
func denormalize(arena *backfillArena, span *domain.Span) (domain.SpanDenormalization, bool) {
	if span.DocumentLogUUID == nil {
		return domain.SpanDenormalization{}, false
	}
	log, ok := arena.logs[*span.DocumentLogUUID]
	if !ok {
		return domain.SpanDenormalization{}, false
	}
	commit, ok := arena.commits[log.CommitID]
	if !ok {
		return domain.SpanDenormalization{}, false
	}

	update := domain.SpanDenormalization{
		Key:          span.Key(),
		ProjectID:    commit.ProjectID,
		DocumentUUID: log.DocumentUUID,
		CommitUUID:   commit.UUID,
	}
	if log.ExperimentID != nil {
		if exp, ok := arena.experiments[*log.ExperimentID]; ok {
			update.ExperimentUUID = &exp
		}
	}
	return update, true
}
