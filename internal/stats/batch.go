package stats

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchResult reports batch recomputation progress.
type BatchResult struct {
	Total     int
	Processed int
	Failed    int
	Elapsed   time.Duration
}

// RecomputeBatch invalidates and recomputes PlayerStatistics for each
// player id, parallelized across a bounded errgroup, sharing this Engine's
// cache so repeated lookups within the batch are absorbed.
func (e *Engine) RecomputeBatch(ctx context.Context, playerIDs []string, concurrency int) BatchResult {
	if concurrency <= 0 {
		concurrency = 4
	}
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var processed, failed int64
	for _, id := range playerIDs {
		id := id
		g.Go(func() error {
			e.invalidate(tagForPlayer(id))
			if _, err := e.PlayerStatistics(ctx, id); err != nil {
				atomic.AddInt64(&failed, 1)
				return nil
			}
			atomic.AddInt64(&processed, 1)
			return nil
		})
	}
	_ = g.Wait()

	return BatchResult{
		Total:     len(playerIDs),
		Processed: int(processed),
		Failed:    int(failed),
		Elapsed:   time.Since(start),
	}
}
