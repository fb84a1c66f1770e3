package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spanquery/spanquery/internal/pkg/logger"
	"github.com/spanquery/spanquery/internal/pkg/metrics"
)

// Feature flags that route reads to the analytical backend
const (
	FlagAnalyticalSpans             = "analytical-spans"
	FlagAnalyticalEvaluationResults = "analytical-evaluation-results"
)

// FeatureFlagService resolves per-workspace feature flags
type FeatureFlagService interface {
	IsEnabled(ctx context.Context, workspaceID int64, flag string) (bool, error)
}

// BackendSelector routes each call to the relational or analytical backend
type BackendSelector struct {
	flags      FeatureFlagService
	relational BackendPair
	analytical BackendPair
	logger     *zap.Logger
}

// NewBackendSelector creates a selector. An unconfigured analytical pair
// routes everything to the relational backend.
func NewBackendSelector(flags FeatureFlagService, relational, analytical BackendPair, log *zap.Logger) *BackendSelector {
	if log == nil {
		log = logger.Log
	}
	return &BackendSelector{
		flags:      flags,
		relational: relational,
		analytical: analytical,
		logger:     log,
	}
}

// IsAnalyticalSpansEnabled reports the span flag. Lookup failures read as
// disabled.
func (s *BackendSelector) IsAnalyticalSpansEnabled(ctx context.Context, workspaceID int64) bool {
	return s.isEnabled(ctx, workspaceID, FlagAnalyticalSpans)
}

// IsAnalyticalEvaluationResultsEnabled reports the evaluation result flag.
// Lookup failures read as disabled.
func (s *BackendSelector) IsAnalyticalEvaluationResultsEnabled(ctx context.Context, workspaceID int64) bool {
	return s.isEnabled(ctx, workspaceID, FlagAnalyticalEvaluationResults)
}

func (s *BackendSelector) isEnabled(ctx context.Context, workspaceID int64, flag string) bool {
	if s.flags == nil {
		return false
	}
	enabled, err := s.flags.IsEnabled(ctx, workspaceID, flag)
	if err != nil {
		metrics.RecordFlagLookupFailure(flag)
		logger.WithWorkspace(s.logger, workspaceID).Warn("feature flag lookup failed, using relational backend",
			zap.String("flag", flag),
			zap.Error(err),
		)
		return false
	}
	return enabled
}

// Select resolves the backend pair for a call. The flags a call needs are
// read concurrently. A call needing both capabilities is analytical only
// when both flags are on; the pair is never mixed.
func (s *BackendSelector) Select(ctx context.Context, workspaceID int64, need Capability) Backends {
	relational := Backends{Kind: BackendRelational, BackendPair: s.relational}
	if !s.analytical.configured() {
		return relational
	}

	var spansOn, resultsOn bool
	g, gctx := errgroup.WithContext(ctx)
	if need&NeedSpans != 0 {
		g.Go(func() error {
			spansOn = s.IsAnalyticalSpansEnabled(gctx, workspaceID)
			return nil
		})
	}
	if need&NeedResults != 0 {
		g.Go(func() error {
			resultsOn = s.IsAnalyticalEvaluationResultsEnabled(gctx, workspaceID)
			return nil
		})
	}
	_ = g.Wait()

	analytical := true
	if need&NeedSpans != 0 && !spansOn {
		analytical = false
	}
	if need&NeedResults != 0 && !resultsOn {
		analytical = false
	}

	if analytical {
		return Backends{Kind: BackendAnalytical, BackendPair: s.analytical}
	}
	return relational
}
