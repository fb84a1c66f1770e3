package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spanquery/spanquery/internal/domain"
	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
)

// latestWins keeps the first non-null value per field while rows are
// visited most recent first.
type latestWins struct {
	source         *domain.SpanSource
	commitUUID     *uuid.UUID
	experimentUUID *uuid.UUID
	documentUUID   *uuid.UUID
	logUUID        *uuid.UUID
}

func (l *latestWins) observe(source *domain.SpanSource, commit, experiment, document, log *uuid.UUID) {
	if l.source == nil && source != nil {
		v := *source
		l.source = &v
	}
	if l.commitUUID == nil && commit != nil {
		v := *commit
		l.commitUUID = &v
	}
	if l.experimentUUID == nil && experiment != nil {
		v := *experiment
		l.experimentUUID = &v
	}
	if l.documentUUID == nil && document != nil {
		v := *document
		l.documentUUID = &v
	}
	if l.logUUID == nil && log != nil {
		v := *log
		l.logUUID = &v
	}
}

func spanDurationMs(s *domain.Span) int64 {
	if s.DurationMs > 0 {
		return s.DurationMs
	}
	if s.EndedAt.After(s.StartedAt) {
		return s.EndedAt.Sub(s.StartedAt).Milliseconds()
	}
	return 0
}

// AggregateTraces folds spans into one rollup per trace, most recently
// started trace first. Tokens and cost sum over every span; duration sums
// over main spans only.
func AggregateTraces(spans []domain.Span) []domain.TraceRollup {
	byTrace := make(map[string][]*domain.Span)
	var order []string
	for i := range spans {
		s := &spans[i]
		if _, ok := byTrace[s.TraceID]; !ok {
			order = append(order, s.TraceID)
		}
		byTrace[s.TraceID] = append(byTrace[s.TraceID], s)
	}

	rollups := make([]domain.TraceRollup, 0, len(order))
	for _, traceID := range order {
		members := byTrace[traceID]
		sort.SliceStable(members, func(i, j int) bool {
			if !members[i].StartedAt.Equal(members[j].StartedAt) {
				return members[i].StartedAt.After(members[j].StartedAt)
			}
			return members[i].ID > members[j].ID
		})

		r := domain.TraceRollup{TraceID: traceID}
		var latest latestWins
		for i, s := range members {
			r.SpanCount++
			r.TotalTokens += s.Tokens
			r.TotalCost += s.Cost
			if s.IsMain() {
				r.MainSpanCount++
				r.TotalDurationMs += spanDurationMs(s)
			}
			if i == 0 || s.StartedAt.Before(r.StartedAt) {
				r.StartedAt = s.StartedAt
			}
			if s.EndedAt.After(r.EndedAt) {
				r.EndedAt = s.EndedAt
			}
			latest.observe(s.Source, s.CommitUUID, s.ExperimentUUID, s.DocumentUUID, s.DocumentLogUUID)
		}
		r.Source = latest.source
		r.CommitUUID = latest.commitUUID
		r.ExperimentUUID = latest.experimentUUID
		r.DocumentUUID = latest.documentUUID
		r.DocumentLogUUID = latest.logUUID

		rollups = append(rollups, r)
	}

	sortRollups(rollups)
	return rollups
}

func sortRollups(rollups []domain.TraceRollup) {
	sort.SliceStable(rollups, func(i, j int) bool {
		if !rollups[i].StartedAt.Equal(rollups[j].StartedAt) {
			return rollups[i].StartedAt.After(rollups[j].StartedAt)
		}
		return rollups[i].TraceID > rollups[j].TraceID
	})
}

// AggregateConversation folds trace rollups into a conversation. Latest-wins
// fields come from the most recently started trace where the field is set.
func AggregateConversation(documentLogUUID uuid.UUID, rollups []domain.TraceRollup) domain.Conversation {
	traces := append([]domain.TraceRollup(nil), rollups...)
	sortRollups(traces)

	c := domain.Conversation{DocumentLogUUID: documentLogUUID, Traces: traces}
	var latest latestWins
	for i := range traces {
		r := &traces[i]
		c.TraceCount++
		c.SpanCount += r.SpanCount
		c.TotalTokens += r.TotalTokens
		c.TotalCost += r.TotalCost
		c.TotalDurationMs += r.TotalDurationMs
		if i == 0 || r.StartedAt.Before(c.StartedAt) {
			c.StartedAt = r.StartedAt
		}
		if r.EndedAt.After(c.EndedAt) {
			c.EndedAt = r.EndedAt
		}
		latest.observe(r.Source, r.CommitUUID, r.ExperimentUUID, r.DocumentUUID, nil)
	}
	c.Source = latest.source
	c.CommitUUID = latest.commitUUID
	c.ExperimentUUID = latest.experimentUUID
	c.DocumentUUID = latest.documentUUID

	if c.Traces == nil {
		c.Traces = []domain.TraceRollup{}
	}
	return c
}

// conversationsFor loads and aggregates the conversations of several log
// identities in two round-trips. Identities with no spans are omitted.
func conversationsFor(ctx context.Context, backend SpanQueryBackend, workspaceID int64, logUUIDs []uuid.UUID, documentUUID *uuid.UUID) (map[uuid.UUID]domain.Conversation, error) {
	out := make(map[uuid.UUID]domain.Conversation, len(logUUIDs))
	if len(logUUIDs) == 0 {
		return out, nil
	}

	tracesByLog, err := backend.TraceIDsByLogUUIDs(ctx, workspaceID, logUUIDs, documentUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation traces: %w", err)
	}

	var traceIDs []string
	logByTrace := make(map[string]uuid.UUID)
	for _, logUUID := range logUUIDs {
		for _, traceID := range tracesByLog[logUUID] {
			if _, seen := logByTrace[traceID]; seen {
				continue
			}
			logByTrace[traceID] = logUUID
			traceIDs = append(traceIDs, traceID)
		}
	}
	if len(traceIDs) == 0 {
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spans, err := backend.SpansByTraceIDs(ctx, workspaceID, traceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation spans: %w", err)
	}

	rollupsByLog := make(map[uuid.UUID][]domain.TraceRollup)
	for _, r := range AggregateTraces(spans) {
		logUUID, ok := logByTrace[r.TraceID]
		if !ok {
			continue
		}
		rollupsByLog[logUUID] = append(rollupsByLog[logUUID], r)
	}

	for logUUID, rollups := range rollupsByLog {
		out[logUUID] = AggregateConversation(logUUID, rollups)
	}
	return out, nil
}

// fetchConversation aggregates one conversation, or reports NotFound when no
// span matches the log identity and document filter.
func fetchConversation(ctx context.Context, backend SpanQueryBackend, log *zap.Logger, workspaceID int64, documentLogUUID uuid.UUID, documentUUID *uuid.UUID) (*domain.Conversation, error) {
	convs, err := conversationsFor(ctx, backend, workspaceID, []uuid.UUID{documentLogUUID}, documentUUID)
	if err != nil {
		return nil, err
	}

	conv, ok := convs[documentLogUUID]
	if !ok {
		log.Debug("conversation not found", zap.String("document_log_uuid", documentLogUUID.String()))
		return nil, apperrors.NotFound("conversation")
	}
	return &conv, nil
}
