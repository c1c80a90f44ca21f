package parallax

import (
	"context"
	"sort"
	"sync/atomic"

	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/object"
)

// maxCell is a lock-free running maximum.
type maxCell struct {
	v atomic.Int64
}

func (c *maxCell) Observe(v int) {
	n := int64(v)
	for {
		cur := c.v.Load()
		if n <= cur || c.v.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (c *maxCell) Load() int { return int(c.v.Load()) }

// ChunkRadius converts a block extent into the odd chunk radius that covers
// it: ceil((max(m,16)+16)/16), bumped to the next odd number.
func ChunkRadius(m int) int {
	m = max(m, 16)
	r := (m + 16 + 15) / 16
	if r%2 == 0 {
		r++
	}
	return r
}

// ComputeParallaxSize recomputes the parallax size for the active
// configuration without installing it.
func (e *Engine) ComputeParallaxSize(ctx context.Context) (int, error) {
	res, err := e.computeSize(ctx, e.current())
	return res.Size, err
}

// reachableObjects lists every object id referenced by a reachable biome.
func reachableObjects(biomes []*dimension.Biome) []string {
	seen := map[string]bool{}
	for _, b := range biomes {
		for _, o := range b.Objects {
			for _, id := range o.Place {
				seen[id] = true
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) computeSize(ctx context.Context, st *state) (SizeEntry, error) {
	var maxX, maxZ maxCell
	var failures atomic.Int64

	ids := reachableObjects(st.complex.Biomes())
	loader := e.data.ObjectLoader()
	ex := e.pool.Burst(len(ids))
	for _, id := range ids {
		id := id
		ex.Queue(func() {
			path, err := loader.FindFile(id)
			if err == nil {
				var sz object.Size
				if sz, err = object.SampleSize(path); err == nil {
					maxX.Observe(sz.X)
					maxZ.Observe(sz.Z)
					return
				}
			}
			failures.Add(1)
			e.metrics.ProbeFailures.Inc()
			e.logger.Printf("parallax: size probe %s: %v", id, err)
		})
	}
	waitErr := ex.CompleteContext(ctx)

	observe := func(deps []dimension.DepositGenerator, text []dimension.TextPlacement) {
		for _, d := range deps {
			maxX.Observe(d.MaxDimension())
			maxZ.Observe(d.MaxDimension())
		}
		for _, t := range text {
			maxX.Observe(t.MaxDimension())
			maxZ.Observe(t.MaxDimension())
		}
	}
	observe(st.dim.Deposits, st.dim.Text)
	for _, r := range st.complex.Regions() {
		observe(r.Deposits, r.Text)
	}
	for _, b := range st.complex.Biomes() {
		observe(b.Deposits, b.Text)
	}

	size := max(ChunkRadius(maxX.Load()), ChunkRadius(maxZ.Load()))
	return SizeEntry{
		Session:       e.session.ID,
		Dimension:     st.dim.Name,
		Seed:          e.seed,
		Size:          size,
		MaxX:          maxX.Load(),
		MaxZ:          maxZ.Load(),
		Objects:       len(ids),
		ProbeFailures: int(failures.Load()),
	}, waitErr
}
