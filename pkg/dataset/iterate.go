package dataset

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Iterate calls fn with every example of src in index order. With workers > 0
// up to workers examples are loaded ahead concurrently. The first error from
// loading or from fn stops the iteration.
func Iterate(ctx context.Context, src Source, workers int, fn func(*Example) error) error {
	n := src.Len()

	if workers <= 0 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			ex, err := src.Get(i)
			if err != nil {
				return err
			}
			if err := fn(ex); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	slots := make([]chan *Example, n)
	for i := range slots {
		slots[i] = make(chan *Example, 1)
	}
	window := make(chan struct{}, workers)

	// Loaders, at most workers examples ahead of fn
	g.Go(func() error {
		for i := 0; i < n; i++ {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			g.Go(func() error {
				ex, err := src.Get(i)
				if err != nil {
					return err
				}
				slots[i] <- ex
				return nil
			})
		}
		return nil
	})

	g.Go(func() error {
		for i := 0; i < n; i++ {
			select {
			case ex := <-slots[i]:
				<-window
				if err := fn(ex); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}
