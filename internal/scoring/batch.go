package scoring

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const defaultBatchWorkers = 4

// BatchScore scores independent texts concurrently. Results keep input order.
// The first error cancels remaining work and is returned.
func BatchScore(ctx context.Context, scorer Scorer, texts []string, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = defaultBatchWorkers
	}

	results := make([]*Result, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, text := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := scorer.Score(ctx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
