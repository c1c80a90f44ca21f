// Package parallax places objects around generated chunks and answers
// terrain queries about the result.
//
// Generation is keyed by chunk. GenerateParallaxArea fills every layer in a
// square window around a chunk, then marks the chunk itself done. Each layer
// is generated at most once per Session no matter how many callers race for
// it, and its content depends only on the world seed and the chunk.
package parallax

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"sync/atomic"

	"voxelparallax.ai/internal/sim/burst"
	"voxelparallax.ai/internal/sim/data"
	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/object"
	"voxelparallax.ai/internal/sim/rng"
	"voxelparallax.ai/internal/sim/terrain"
)

// ObjectPlacer materializes one object reference at (x, z). r is the
// rotation stream for that position.
type ObjectPlacer interface {
	Place(ref string, x, z int, p object.Placer, rule dimension.ObjectPlacement, r *rng.RNG) (bool, error)
}

type Options struct {
	Dimension *dimension.Dimension
	Seed      int64
	Data      data.Provider

	// Optional. World, when set, receives every parallax block as well as
	// the session store and answers reads the store cannot.
	Placer    ObjectPlacer
	World     WorldAccessor
	Session   *Session
	Pool      *burst.MultiBurst
	Recorders []Recorder
	Metrics   *Metrics
	Logger    *log.Logger
}

// state is everything derived from one configuration load.
type state struct {
	dim      *dimension.Dimension
	complex  *terrain.Complex
	nonSolid map[string]bool
	size     int
}

type Engine struct {
	seed      int64
	data      data.Provider
	placer    ObjectPlacer
	world     WorldAccessor
	session   *Session
	pool      *burst.MultiBurst
	recorders []Recorder
	metrics   *Metrics
	logger    *log.Logger

	state atomic.Pointer[state]
}

// New builds an engine and computes its initial parallax size.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Dimension == nil {
		return nil, errors.New("parallax: nil dimension")
	}
	if opts.Data == nil {
		return nil, errors.New("parallax: nil data provider")
	}
	e := &Engine{
		seed:      opts.Seed,
		data:      opts.Data,
		placer:    opts.Placer,
		world:     opts.World,
		session:   opts.Session,
		pool:      opts.Pool,
		recorders: slices.Clone(opts.Recorders),
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if e.placer == nil {
		e.placer = object.Materializer{Loader: opts.Data.ObjectLoader()}
	}
	if e.session == nil {
		e.session = NewSession()
	}
	if e.pool == nil {
		e.pool = burst.New(0)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard, "", 0)
	}
	if err := e.Reload(ctx, opts.Dimension); err != nil {
		return nil, err
	}
	return e, nil
}

// resetter is implemented by providers that memoize pack documents.
type resetter interface{ Reset() }

// Reload switches to a new dimension configuration and recomputes the
// parallax size for it. Cached regions, biomes and objects of the provider
// are dropped first so edits on disk are picked up. The session, and so
// every marker already set, is kept. On error the previous configuration
// stays active.
func (e *Engine) Reload(ctx context.Context, dim *dimension.Dimension) error {
	if dim == nil {
		return errors.New("parallax: nil dimension")
	}
	if r, ok := e.data.(resetter); ok {
		r.Reset()
	}
	cx, err := terrain.Build(dim, e.seed, e.data, e.logger)
	if err != nil {
		return fmt.Errorf("parallax: build terrain for %s: %w", dim.Name, err)
	}
	st := &state{dim: dim, complex: cx, nonSolid: map[string]bool{}}
	for _, b := range dim.NonSolid {
		st.nonSolid[b] = true
	}
	res, err := e.computeSize(ctx, st)
	if err != nil {
		return fmt.Errorf("parallax: size for %s: %w", dim.Name, err)
	}
	st.size = res.Size
	e.state.Store(st)
	e.metrics.Size.Set(float64(res.Size))
	e.record(func(r Recorder) error { return r.RecordSize(res) })
	e.logger.Printf("parallax: dimension %s seed %d size %d (objects=%d probe_failures=%d)", dim.Name, e.seed, res.Size, res.Objects, res.ProbeFailures)
	return nil
}

func (e *Engine) current() *state { return e.state.Load() }

func (e *Engine) Seed() int64                     { return e.seed }
func (e *Engine) Session() *Session               { return e.session }
func (e *Engine) Dimension() *dimension.Dimension { return e.current().dim }
func (e *Engine) Complex() *terrain.Complex       { return e.current().complex }

// ParallaxSize is the radius, in chunks, of the window GenerateParallaxArea
// fills. It is odd and at least 3.
func (e *Engine) ParallaxSize() int { return e.current().size }

func (e *Engine) FluidHeight() int { return e.current().dim.FluidHeight }

func (e *Engine) GetHighest(x, z int, ignoreFluid bool) int {
	return e.current().complex.Highest(x, z, ignoreFluid)
}

func (e *Engine) IsUnderwater(x, z int) bool {
	return e.GetHighest(x, z, true) <= e.FluidHeight()
}

// IsSolid reports whether (x, y, z) holds a solid parallax block, or lies at
// or below the terrain surface when nothing was placed there.
func (e *Engine) IsSolid(x, y, z int) bool {
	st := e.current()
	if b, ok := e.getBlock(x, y, z); ok {
		return !st.nonSolid[b]
	}
	return y <= st.complex.Highest(x, z, true)
}

func (e *Engine) getBlock(x, y, z int) (string, bool) {
	if b, ok := e.session.Store.GetBlockAt(x, y, z); ok {
		return b, true
	}
	if e.world != nil {
		return e.world.GetBlockAt(x, y, z)
	}
	return "", false
}

// Get returns the block at (x, y, z), or "" when nothing is known there.
func (e *Engine) Get(x, y, z int) string {
	b, _ := e.getBlock(x, y, z)
	return b
}

func (e *Engine) Set(x, y, z int, block string) {
	e.session.Store.SetBlockAt(x, y, z, block)
	if e.world != nil {
		e.world.SetBlockAt(x, y, z, block)
	}
}

func (e *Engine) BiomeAt(x, z int) *dimension.Biome {
	return e.current().complex.BiomeAt(float64(x), float64(z))
}

// InsertParallax hands every parallax block of chunk (cx, cz) to fn in a
// stable order. It reports whether the chunk had any.
func (e *Engine) InsertParallax(cx, cz int, fn func(x, y, z int, block string)) bool {
	ch := e.session.Store.Chunk(cx, cz)
	if ch == nil {
		return false
	}
	ch.Each(fn)
	return ch.Len() > 0
}

func (e *Engine) record(fn func(Recorder) error) {
	for _, r := range e.recorders {
		if err := fn(r); err != nil {
			e.logger.Printf("parallax: record: %v", err)
		}
	}
}

var _ object.Placer = (*Engine)(nil)
