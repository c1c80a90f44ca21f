// Package dimension holds the read-only configuration tree a generation
// session works from: dimension -> regions -> biomes -> placements.
package dimension

import (
	"fmt"
	"unicode/utf8"

	"voxelparallax.ai/internal/sim/imagemap"
	"voxelparallax.ai/internal/sim/interp"
	"voxelparallax.ai/internal/sim/stream"
)

type DimensionLoader interface {
	Load(id string) (*Dimension, error)
}

type RegionLoader interface {
	Load(id string) (*Region, error)
}

type BiomeLoader interface {
	Load(id string) (*Biome, error)
}

// glyphWidth is the column count of one rendered character, spacing included.
const glyphWidth = 6

type Dimension struct {
	Name        string `yaml:"name"`
	SeedOffset  int64  `yaml:"seed_offset"`
	FluidHeight int    `yaml:"fluid_height"`
	ShoreHeight int    `yaml:"shore_height"`

	Regions     []string              `yaml:"regions"`
	RegionStyle StreamSpec            `yaml:"region_style"`
	Height      StreamSpec            `yaml:"height"`
	Streams     map[string]StreamSpec `yaml:"streams,omitempty"`

	Deposits []DepositGenerator `yaml:"deposits,omitempty"`
	Text     []TextPlacement    `yaml:"text,omitempty"`

	// Blocks that do not count as solid ground. Defaults to air and fluids.
	NonSolid []string `yaml:"non_solid,omitempty"`
}

type Region struct {
	Name        string     `yaml:"name"`
	LandBiomes  []string   `yaml:"land_biomes"`
	SeaBiomes   []string   `yaml:"sea_biomes,omitempty"`
	ShoreBiomes []string   `yaml:"shore_biomes,omitempty"`
	BiomeStyle  StreamSpec `yaml:"biome_style"`

	Deposits []DepositGenerator `yaml:"deposits,omitempty"`
	Text     []TextPlacement    `yaml:"text,omitempty"`
}

// AllBiomes lists every biome id the region references directly.
func (r *Region) AllBiomes() []string {
	out := make([]string, 0, len(r.LandBiomes)+len(r.SeaBiomes)+len(r.ShoreBiomes))
	out = append(out, r.LandBiomes...)
	out = append(out, r.SeaBiomes...)
	out = append(out, r.ShoreBiomes...)
	return out
}

type Biome struct {
	Name     string             `yaml:"name"`
	Children []string           `yaml:"children,omitempty"`
	Objects  []ObjectPlacement  `yaml:"objects,omitempty"`
	Deposits []DepositGenerator `yaml:"deposits,omitempty"`
	Text     []TextPlacement    `yaml:"text,omitempty"`
}

func (b *Biome) SurfaceObjects() []ObjectPlacement {
	out := make([]ObjectPlacement, 0, len(b.Objects))
	for _, o := range b.Objects {
		if !o.Underwater {
			out = append(out, o)
		}
	}
	return out
}

func (b *Biome) UnderwaterObjects() []ObjectPlacement {
	var out []ObjectPlacement
	for _, o := range b.Objects {
		if o.Underwater {
			out = append(out, o)
		}
	}
	return out
}

type ObjectPlacement struct {
	Place      []string `yaml:"place"`
	Chance     float64  `yaml:"chance"`
	Density    int      `yaml:"density"`
	Underwater bool     `yaml:"underwater,omitempty"`
	Rotate     bool     `yaml:"rotate,omitempty"`
}

type DepositGenerator struct {
	Block     string `yaml:"block"`
	MinSize   int    `yaml:"min_size"`
	MaxSize   int    `yaml:"max_size"`
	MinHeight int    `yaml:"min_height"`
	MaxHeight int    `yaml:"max_height"`
	PerChunk  int    `yaml:"per_chunk"`
}

// MaxDimension is the widest horizontal extent of one clump, in blocks.
func (d DepositGenerator) MaxDimension() int { return d.MaxSize }

type TextPlacement struct {
	Text  string `yaml:"text"`
	Scale int    `yaml:"scale"`
	Block string `yaml:"block"`
}

// MaxDimension is the rendered width of the text, in blocks.
func (t TextPlacement) MaxDimension() int {
	s := t.Scale
	if s < 1 {
		s = 1
	}
	return glyphWidth * s * utf8.RuneCountInString(t.Text)
}

// StreamSpec describes one node of a terrain-property stream graph.
// Which fields apply depends on Op; terrain.Compiler checks them.
type StreamSpec struct {
	Op     string       `yaml:"op"`
	Inputs []StreamSpec `yaml:"inputs,omitempty"`

	Value  float64              `yaml:"value,omitempty"`
	Ref    string               `yaml:"ref,omitempty"`
	Perlin *stream.PerlinConfig `yaml:"perlin,omitempty"`
	Image  *imagemap.Map        `yaml:"image,omitempty"`

	Shift uint    `yaml:"shift,omitempty"`
	DX    float64 `yaml:"dx,omitempty"`
	DZ    float64 `yaml:"dz,omitempty"`

	Min    float64 `yaml:"min,omitempty"`
	Max    float64 `yaml:"max,omitempty"`
	InMin  float64 `yaml:"in_min,omitempty"`
	InMax  float64 `yaml:"in_max,omitempty"`
	OutMin float64 `yaml:"out_min,omitempty"`
	OutMax float64 `yaml:"out_max,omitempty"`

	Interpolation interp.Method `yaml:"interpolation,omitempty"`
	Scale         float64       `yaml:"scale,omitempty"`
}

// NormalizedNoise is perlin noise of the given zoom and seed fitted to [0, 1].
func NormalizedNoise(zoom float64, seed int64) StreamSpec {
	return StreamSpec{
		Op:     "clamp",
		Min:    0,
		Max:    1,
		Inputs: []StreamSpec{{
			Op:    "fit",
			InMin: -1, InMax: 1, OutMin: 0, OutMax: 1,
			Inputs: []StreamSpec{{Op: "perlin", Perlin: &stream.PerlinConfig{Seed: seed, Zoom: zoom}}},
		}},
	}
}

var defaultNonSolid = []string{"AIR", "CAVE_AIR", "VOID_AIR", "WATER", "LAVA"}

func (d *Dimension) Normalize() {
	if d.RegionStyle.Op == "" {
		d.RegionStyle = NormalizedNoise(512, 7)
	}
	if d.Height.Op == "" {
		d.Height = StreamSpec{Op: "add", Inputs: []StreamSpec{
			{Op: "constant", Value: 64},
			{Op: "scale", Value: 24, Inputs: []StreamSpec{{Op: "perlin", Perlin: &stream.PerlinConfig{Zoom: 200}}}},
		}}
	}
	if d.ShoreHeight <= 0 {
		d.ShoreHeight = 2
	}
	if len(d.NonSolid) == 0 {
		d.NonSolid = append([]string(nil), defaultNonSolid...)
	}
}

func (d *Dimension) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("dimension: missing name")
	}
	if len(d.Regions) == 0 {
		return fmt.Errorf("dimension %s: no regions", d.Name)
	}
	for i, dep := range d.Deposits {
		if err := dep.validate(); err != nil {
			return fmt.Errorf("dimension %s: deposit %d: %w", d.Name, i, err)
		}
	}
	return nil
}

func (r *Region) Normalize() {
	if r.BiomeStyle.Op == "" {
		r.BiomeStyle = NormalizedNoise(128, 13)
	}
}

func (r *Region) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("region: missing name")
	}
	if len(r.LandBiomes) == 0 {
		return fmt.Errorf("region %s: no land_biomes", r.Name)
	}
	for i, dep := range r.Deposits {
		if err := dep.validate(); err != nil {
			return fmt.Errorf("region %s: deposit %d: %w", r.Name, i, err)
		}
	}
	return nil
}

func (b *Biome) Normalize() {
	for i := range b.Objects {
		if b.Objects[i].Density <= 0 {
			b.Objects[i].Density = 1
		}
	}
}

func (b *Biome) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("biome: missing name")
	}
	for i, o := range b.Objects {
		if len(o.Place) == 0 {
			return fmt.Errorf("biome %s: object %d: empty place list", b.Name, i)
		}
		if o.Chance < 0 || o.Chance > 1 {
			return fmt.Errorf("biome %s: object %d: chance %v outside [0,1]", b.Name, i, o.Chance)
		}
	}
	for i, dep := range b.Deposits {
		if err := dep.validate(); err != nil {
			return fmt.Errorf("biome %s: deposit %d: %w", b.Name, i, err)
		}
	}
	return nil
}

func (d DepositGenerator) validate() error {
	if d.MinSize > d.MaxSize {
		return fmt.Errorf("min_size %d > max_size %d", d.MinSize, d.MaxSize)
	}
	if d.MinHeight > d.MaxHeight {
		return fmt.Errorf("min_height %d > max_height %d", d.MinHeight, d.MaxHeight)
	}
	return nil
}
