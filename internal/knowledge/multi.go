package knowledge

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Multi merges several sources. Sources are loaded concurrently and their
// entries concatenated in argument order. Any failing source fails the load.
func Multi(sources ...Source) Source {
	return SourceFunc(func(ctx context.Context) ([]Entry, error) {
		results := make([][]Entry, len(sources))
		g, gctx := errgroup.WithContext(ctx)
		for i, src := range sources {
			g.Go(func() error {
				entries, err := src.Load(gctx)
				if err != nil {
					return fmt.Errorf("knowledge: source %d: %w", i, err)
				}
				results[i] = entries
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var merged []Entry
		for _, r := range results {
			merged = append(merged, r...)
		}
		return merged, nil
	})
}
