// Package imagemap turns a raster image into a noise source in [0, 1].
package imagemap

import (
	"fmt"
	"io"
	"log"
	"math"
	"sync"

	"gopkg.in/yaml.v3"

	"voxelparallax.ai/internal/sim/interp"
	"voxelparallax.ai/internal/sim/mathx"
)

// NullValue is returned for every coordinate when the image cannot be loaded.
const NullValue = 0.0

type Loader interface {
	Load(id string) (*Image, error)
}

// Map is the configuration of an image-backed noise source.
type Map struct {
	Image string `yaml:"image" json:"image"`
	// Blocks per pixel. Reading x=13 at scale 32 still reads pixel 0.
	CoordinateScale float64       `yaml:"coordinate_scale" json:"coordinate_scale"`
	Interpolation   interp.Method `yaml:"interpolation" json:"interpolation"`
	Channel         Channel       `yaml:"channel" json:"channel"`
	Inverted        bool          `yaml:"inverted" json:"inverted"`
	Tiled           bool          `yaml:"tiled" json:"tiled"`
	// Centered moves (0, 0) to the middle of the image.
	Centered bool `yaml:"centered" json:"centered"`
}

func Defaults() Map {
	return Map{
		CoordinateScale: 32,
		Interpolation:   interp.BilinearStarcast6,
		Channel:         CompositeAddHSB,
		Centered:        true,
	}
}

// UnmarshalYAML decodes on top of Defaults so omitted keys keep their
// default values.
func (m *Map) UnmarshalYAML(n *yaml.Node) error {
	type raw Map
	r := raw(Defaults())
	if err := n.Decode(&r); err != nil {
		return err
	}
	*m = Map(r)
	return nil
}

func (m Map) Validate() error {
	if m.Image == "" {
		return fmt.Errorf("imagemap: missing image")
	}
	if m.CoordinateScale < 1 {
		return fmt.Errorf("imagemap: coordinate_scale %v < 1", m.CoordinateScale)
	}
	if !m.Interpolation.Valid() {
		return fmt.Errorf("imagemap: %w: %d", interp.ErrUnknownMethod, int(m.Interpolation))
	}
	if !m.Channel.Valid() {
		return fmt.Errorf("imagemap: %w: %d", ErrUnknownChannel, int(m.Channel))
	}
	return nil
}

// Sampler evaluates a Map. The image is loaded on first use, exactly once,
// and shared by all later callers. Sampler implements stream.Stream[float64].
type Sampler struct {
	m       Map
	acquire func() *Image
}

func NewSampler(m Map, loader Loader, logger *log.Logger) (*Sampler, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Sampler{m: m}
	s.acquire = sync.OnceValue(func() *Image {
		img, err := loader.Load(m.Image)
		if err != nil || img == nil {
			logger.Printf("imagemap: null image for %q: %v", m.Image, err)
			return nil
		}
		return img
	})
	return s, nil
}

func (s *Sampler) Config() Map { return s.m }

// Noise returns the sampled value at block coordinate (x, z).
func (s *Sampler) Noise(x, z float64) float64 {
	img := s.acquire()
	if img == nil {
		return NullValue
	}
	raw := func(xx, zz float64) float64 { return s.raw(img, xx, zz) }
	if s.m.CoordinateScale > 1 {
		return interp.Noise(s.m.Interpolation, x, z, s.m.CoordinateScale, raw)
	}
	return raw(x, z)
}

// raw applies scale, center, tile, extract and invert, in that order.
func (s *Sampler) raw(img *Image, x, z float64) float64 {
	scale := s.m.CoordinateScale
	w := float64(img.Width())
	h := float64(img.Height())
	x /= scale
	z /= scale
	if s.m.Centered {
		x += (w / 2) * scale
		z += (h / 2) * scale
	}
	if s.m.Tiled {
		x = mathx.FloorMod(x, w)
		z = mathx.FloorMod(z, h)
	}
	v := img.Value(s.m.Channel, int(math.Floor(x)), int(math.Floor(z)))
	if s.m.Inverted {
		return 1 - v
	}
	return v
}

func (s *Sampler) Get2(x, z float64) float64    { return s.Noise(x, z) }
func (s *Sampler) Get3(x, _, z float64) float64 { return s.Noise(x, z) }
func (s *Sampler) ToDouble(v float64) float64   { return v }
func (s *Sampler) FromDouble(d float64) float64 { return d }
