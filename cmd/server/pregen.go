package main

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"voxelparallax.ai/internal/sim/mathx"
)

type areaGenerator interface {
	GenerateParallaxArea(x, z int) bool
}

// pregenerate fills the parallax of every chunk within radius chunks of the
// origin, ring by ring, and returns how many chunks it generated.
func pregenerate(ctx context.Context, g areaGenerator, radius, workers int) (int, error) {
	var n atomic.Int64
	for r := 0; r <= radius; r++ {
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(workers)
		for cx := -r; cx <= r; cx++ {
			for cz := -r; cz <= r; cz++ {
				if max(mathx.AbsInt(cx), mathx.AbsInt(cz)) != r {
					continue
				}
				cx, cz := cx, cz
				eg.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					if g.GenerateParallaxArea(cx*mathx.ChunkSize, cz*mathx.ChunkSize) {
						n.Add(1)
					}
					return nil
				})
			}
		}
		if err := eg.Wait(); err != nil {
			return int(n.Load()), err
		}
	}
	return int(n.Load()), nil
}
