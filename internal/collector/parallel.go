package collector

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEach calls fn for every item with at most limit calls in flight. fn
// owns its failures. Once ctx is done no further items are started; the
// calls already running see the cancelled context and forEach waits for
// them before returning ctx.Err().
func forEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for _, it := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(gctx, it)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}
