package service

import (
	"context"

	"github.com/spanquery/spanquery/internal/pkg/metrics"
	"github.com/spanquery/spanquery/internal/pkg/pagination"
)

// loopConfig bounds the over-fetch loop
type loopConfig struct {
	BatchSize int
	MaxRounds int
}

// keyed is a surviving item together with the key of the candidate it was
// resolved from. Pages continue from candidate keys.
type keyed[T any] struct {
	item T
	key  pagination.Cursor
}

// candidateLoop describes one over-fetch listing. fetch returns candidates
// strictly below after in descending key order. resolve maps a batch to its
// surviving items, preserving candidate order.
type candidateLoop[C, T any] struct {
	operation string
	fetch     func(ctx context.Context, after *pagination.Cursor, n int) ([]C, error)
	keyOf     func(C) pagination.Cursor
	resolve   func(ctx context.Context, batch []C) ([]keyed[T], error)
}

// collect fetches candidate batches until limit+1 items survive, the
// backend returns a short batch, or MaxRounds is reached. Cancellation is
// checked between round-trips.
//
// When the round bound stops the loop early the page continues from the
// last examined candidate, so nothing is skipped.
func collect[C, T any](ctx context.Context, cfg loopConfig, loop candidateLoop[C, T], after *pagination.Cursor, limit int) (pagination.Page[T], error) {
	batchSize := cfg.BatchSize
	if batchSize < limit+1 {
		batchSize = limit + 1
	}
	maxRounds := cfg.MaxRounds
	if maxRounds < 1 {
		maxRounds = 1
	}

	var survivors []keyed[T]
	cursor := after
	exhausted := false
	rounds := 0

	for rounds < maxRounds {
		if err := ctx.Err(); err != nil {
			return pagination.Page[T]{}, err
		}

		batch, err := loop.fetch(ctx, cursor, batchSize)
		if err != nil {
			return pagination.Page[T]{}, err
		}
		rounds++

		if len(batch) == 0 {
			exhausted = true
			break
		}

		kept, err := loop.resolve(ctx, batch)
		if err != nil {
			return pagination.Page[T]{}, err
		}
		survivors = append(survivors, kept...)

		last := loop.keyOf(batch[len(batch)-1])
		cursor = &last

		if len(batch) < batchSize {
			exhausted = true
			break
		}
		if len(survivors) > limit {
			break
		}
	}

	metrics.RecordOverfetchRounds(loop.operation, rounds)

	if len(survivors) > limit {
		items := make([]T, limit)
		for i := range items {
			items[i] = survivors[i].item
		}
		next := survivors[limit-1].key
		return pagination.Page[T]{Items: items, Next: &next, HasMore: true}, nil
	}

	items := make([]T, len(survivors))
	for i, s := range survivors {
		items[i] = s.item
	}
	page := pagination.Page[T]{Items: items}
	if !exhausted && cursor != nil {
		page.Next = cursor
		page.HasMore = true
	}
	return page, nil
}
