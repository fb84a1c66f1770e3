package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spanquery/spanquery/internal/pkg/logger"
)

// FlagCache is the read-through cache used by CachedFeatureFlags
type FlagCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CachedFeatureFlags caches flag lookups and coalesces concurrent misses
// for the same workspace and flag into one source lookup. Source errors
// are returned uncached.
type CachedFeatureFlags struct {
	source FeatureFlagService
	cache  FlagCache
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachedFeatureFlags wraps source with cache
func NewCachedFeatureFlags(source FeatureFlagService, cache FlagCache, log *zap.Logger) *CachedFeatureFlags {
	if log == nil {
		log = logger.Log
	}
	return &CachedFeatureFlags{source: source, cache: cache, logger: log}
}

func flagCacheKey(workspaceID int64, flag string) string {
	return fmt.Sprintf("feature:%d:%s", workspaceID, flag)
}

// IsEnabled implements FeatureFlagService
func (f *CachedFeatureFlags) IsEnabled(ctx context.Context, workspaceID int64, flag string) (bool, error) {
	key := flagCacheKey(workspaceID, flag)

	if f.cache != nil {
		cached, ok, err := f.cache.Get(ctx, key)
		if err != nil {
			f.logger.Debug("flag cache read failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			if enabled, perr := strconv.ParseBool(cached); perr == nil {
				return enabled, nil
			}
		}
	}

	// The flight is shared, so one caller's cancellation must not fail the rest.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		enabled, err := f.source.IsEnabled(flightCtx, workspaceID, flag)
		if err != nil {
			return false, err
		}
		if f.cache != nil {
			if err := f.cache.Set(flightCtx, key, strconv.FormatBool(enabled)); err != nil {
				f.logger.Debug("flag cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return enabled, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
