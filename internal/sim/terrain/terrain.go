// Package terrain compiles a dimension's stream specs into the named
// terrain-property streams generation reads: height, region and biome.
package terrain

import (
	"fmt"
	"log"
	"math"

	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/imagemap"
	"voxelparallax.ai/internal/sim/mathx"
	"voxelparallax.ai/internal/sim/stream"
)

// Source is the part of a data pack terrain needs.
type Source interface {
	ImageLoader() imagemap.Loader
	RegionLoader() dimension.RegionLoader
	BiomeLoader() dimension.BiomeLoader
}

type regionBiomes struct {
	land, sea, shore stream.Stream[*dimension.Biome]
}

// Complex is the compiled stream set of one dimension. It is immutable and
// safe for concurrent reads.
type Complex struct {
	Height      stream.Stream[float64]
	HeightFluid stream.Stream[float64]
	Region      stream.Stream[*dimension.Region]
	TrueBiome   stream.Stream[*dimension.Biome]
	Named       map[string]stream.Stream[float64]

	fluidHeight int
	shoreHeight int
	regions     []*dimension.Region
	biomes      []*dimension.Biome
	biomeIndex  map[*dimension.Biome]int
	perRegion   map[*dimension.Region]regionBiomes
}

func Build(dim *dimension.Dimension, worldSeed int64, src Source, logger *log.Logger) (*Complex, error) {
	seed := worldSeed + dim.SeedOffset
	c := NewCompiler(seed, dim.Streams, src.ImageLoader(), logger)
	named, err := c.Named()
	if err != nil {
		return nil, err
	}
	height, err := c.Compile(dim.Height)
	if err != nil {
		return nil, fmt.Errorf("height: %w", err)
	}
	regionStyle, err := c.Compile(dim.RegionStyle)
	if err != nil {
		return nil, fmt.Errorf("region_style: %w", err)
	}

	cx := &Complex{
		Height:      height,
		Named:       named,
		fluidHeight: dim.FluidHeight,
		shoreHeight: dim.ShoreHeight,
		biomeIndex:  map[*dimension.Biome]int{},
		perRegion:   map[*dimension.Region]regionBiomes{},
	}
	fluid := float64(dim.FluidHeight)
	cx.HeightFluid = stream.Func(func(x, z float64) float64 {
		return math.Max(height.Get2(x, z), fluid)
	})

	for _, id := range dim.Regions {
		r, err := src.RegionLoader().Load(id)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", id, err)
		}
		cx.regions = append(cx.regions, r)
		style, err := c.Compile(r.BiomeStyle)
		if err != nil {
			return nil, fmt.Errorf("region %s: biome_style: %w", id, err)
		}
		var rb regionBiomes
		for _, list := range []struct {
			ids []string
			out *stream.Stream[*dimension.Biome]
		}{{r.LandBiomes, &rb.land}, {r.SeaBiomes, &rb.sea}, {r.ShoreBiomes, &rb.shore}} {
			if len(list.ids) == 0 {
				continue
			}
			bs, err := cx.loadBiomes(src.BiomeLoader(), list.ids)
			if err != nil {
				return nil, fmt.Errorf("region %s: %w", id, err)
			}
			if *list.out, err = stream.Select(style, bs); err != nil {
				return nil, fmt.Errorf("region %s: %w", id, err)
			}
		}
		cx.perRegion[r] = rb
	}
	if cx.Region, err = stream.Select(regionStyle, cx.regions); err != nil {
		return nil, fmt.Errorf("regions: %w", err)
	}
	cx.TrueBiome = biomeStream{cx}

	// Children are never selected by a stream but still count as reachable.
	for i := 0; i < len(cx.biomes); i++ {
		if _, err := cx.loadBiomes(src.BiomeLoader(), cx.biomes[i].Children); err != nil {
			return nil, fmt.Errorf("biome %s: children: %w", cx.biomes[i].Name, err)
		}
	}
	return cx, nil
}

// loadBiomes loads ids and registers any biome not seen yet.
func (c *Complex) loadBiomes(l dimension.BiomeLoader, ids []string) ([]*dimension.Biome, error) {
	out := make([]*dimension.Biome, 0, len(ids))
	for _, id := range ids {
		b, err := l.Load(id)
		if err != nil {
			return nil, fmt.Errorf("biome %s: %w", id, err)
		}
		if _, ok := c.biomeIndex[b]; !ok {
			c.biomeIndex[b] = len(c.biomes)
			c.biomes = append(c.biomes, b)
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Complex) FluidHeight() int { return c.fluidHeight }

// Regions lists the dimension's regions in configuration order.
func (c *Complex) Regions() []*dimension.Region { return c.regions }

// Biomes lists every reachable biome once, children included.
func (c *Complex) Biomes() []*dimension.Biome { return c.biomes }

// Highest is the rounded terrain height at (x, z). Unless ignoreFluid is
// set, fluid counts as the surface.
func (c *Complex) Highest(x, z int, ignoreFluid bool) int {
	s := c.HeightFluid
	if ignoreFluid {
		s = c.Height
	}
	return int(math.Round(s.Get2(float64(x), float64(z))))
}

func (c *Complex) BiomeAt(x, z float64) *dimension.Biome {
	r := c.Region.Get2(x, z)
	rb := c.perRegion[r]
	h := c.Height.Get2(x, z)
	fluid := float64(c.fluidHeight)
	switch {
	case h < fluid && rb.sea != nil:
		return rb.sea.Get2(x, z)
	case h < fluid+float64(c.shoreHeight) && h >= fluid && rb.shore != nil:
		return rb.shore.Get2(x, z)
	}
	return rb.land.Get2(x, z)
}

type biomeStream struct {
	c *Complex
}

func (s biomeStream) Get2(x, z float64) *dimension.Biome    { return s.c.BiomeAt(x, z) }
func (s biomeStream) Get3(x, _, z float64) *dimension.Biome { return s.c.BiomeAt(x, z) }

func (s biomeStream) ToDouble(b *dimension.Biome) float64 {
	return float64(s.c.biomeIndex[b])
}

func (s biomeStream) FromDouble(d float64) *dimension.Biome {
	i := mathx.ClampInt(int(math.Round(d)), 0, len(s.c.biomes)-1)
	return s.c.biomes[i]
}
