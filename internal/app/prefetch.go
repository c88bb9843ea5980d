package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/five82/shelf/internal/query"
)

// HomeKeys are the queries the home page shows.
func HomeKeys() []query.Key {
	return []query.Key{query.LatestBooks(), query.FeaturedBook(), query.AllBooks()}
}

// PrefetchHome loads the home page queries concurrently so the first screen
// renders from the cache.
func PrefetchHome(ctx context.Context, cache *query.Cache, loader query.Loader) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range HomeKeys() {
		key := key
		g.Go(func() error {
			if _, err := loader.Fetch(gctx, cache, key); err != nil {
				return fmt.Errorf("prefetch %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}
