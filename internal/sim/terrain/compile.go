package terrain

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/imagemap"
	"voxelparallax.ai/internal/sim/stream"
)

var (
	ErrUnknownOp  = errors.New("terrain: unknown stream op")
	ErrUnknownRef = errors.New("terrain: unknown stream ref")
	ErrCycle      = errors.New("terrain: stream reference cycle")
)

type slotState uint8

const (
	unvisited slotState = iota
	visiting
	done
)

type slot struct {
	name  string
	spec  dimension.StreamSpec
	state slotState
	out   stream.Stream[float64]
}

// Compiler turns StreamSpec trees into streams. Named streams live in an
// arena indexed by name and are compiled once, on first reference.
type Compiler struct {
	seed   int64
	images imagemap.Loader
	logger *log.Logger

	slots []slot
	index map[string]int
}

func NewCompiler(seed int64, named map[string]dimension.StreamSpec, images imagemap.Loader, logger *log.Logger) *Compiler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	names := make([]string, 0, len(named))
	for n := range named {
		names = append(names, n)
	}
	sort.Strings(names)
	c := &Compiler{seed: seed, images: images, logger: logger, index: make(map[string]int, len(names))}
	for i, n := range names {
		c.slots = append(c.slots, slot{name: n, spec: named[n]})
		c.index[n] = i
	}
	return c
}

// Named compiles every named stream, reporting the first error.
func (c *Compiler) Named() (map[string]stream.Stream[float64], error) {
	out := make(map[string]stream.Stream[float64], len(c.slots))
	for i := range c.slots {
		s, err := c.resolve(i)
		if err != nil {
			return nil, err
		}
		out[c.slots[i].name] = s
	}
	return out, nil
}

func (c *Compiler) resolve(i int) (stream.Stream[float64], error) {
	sl := &c.slots[i]
	switch sl.state {
	case done:
		return sl.out, nil
	case visiting:
		return nil, fmt.Errorf("%w at %q", ErrCycle, sl.name)
	}
	sl.state = visiting
	s, err := c.Compile(sl.spec)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", sl.name, err)
	}
	// c.slots is never resized after construction, so sl is still valid.
	sl.out = s
	sl.state = done
	return s, nil
}

func (c *Compiler) inputs(s dimension.StreamSpec) ([]stream.Stream[float64], error) {
	out := make([]stream.Stream[float64], 0, len(s.Inputs))
	for i, in := range s.Inputs {
		v, err := c.Compile(in)
		if err != nil {
			return nil, fmt.Errorf("%s input %d: %w", s.Op, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Compiler) single(s dimension.StreamSpec) (stream.Stream[float64], error) {
	if len(s.Inputs) != 1 {
		return nil, fmt.Errorf("%s: want 1 input, have %d", s.Op, len(s.Inputs))
	}
	in, err := c.inputs(s)
	if err != nil {
		return nil, err
	}
	return in[0], nil
}

// Compile builds the stream for one spec node.
func (c *Compiler) Compile(s dimension.StreamSpec) (stream.Stream[float64], error) {
	switch s.Op {
	case "constant":
		return stream.Constant(s.Value), nil
	case "perlin":
		var cfg stream.PerlinConfig
		if s.Perlin != nil {
			cfg = *s.Perlin
		}
		cfg.Seed += c.seed
		return stream.Perlin(cfg), nil
	case "image":
		if s.Image == nil {
			return nil, fmt.Errorf("image: missing image config")
		}
		return imagemap.NewSampler(*s.Image, c.images, c.logger)
	case "ref":
		i, ok := c.index[s.Ref]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRef, s.Ref)
		}
		return c.resolve(i)
	case "add", "multiply", "max", "min":
		in, err := c.inputs(s)
		if err != nil {
			return nil, err
		}
		var combine func(...stream.Stream[float64]) (stream.Stream[float64], error)
		switch s.Op {
		case "add":
			combine = stream.Add[float64]
		case "multiply":
			combine = stream.Multiply[float64]
		case "max":
			combine = stream.Max[float64]
		default:
			combine = stream.Min[float64]
		}
		out, err := combine(in...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Op, err)
		}
		return out, nil
	}

	if !unaryOps[s.Op] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, s.Op)
	}
	in, err := c.single(s)
	if err != nil {
		return nil, err
	}
	switch s.Op {
	case "scale":
		return stream.Scale(in, s.Value), nil
	case "offset":
		return stream.Offset(in, s.DX, s.DZ), nil
	case "zoom":
		if s.Value <= 0 {
			return nil, fmt.Errorf("zoom: factor %v must be positive", s.Value)
		}
		return stream.Zoom(in, s.Value), nil
	case "shift":
		return stream.BitShiftRight(in, s.Shift), nil
	case "clamp":
		if s.Min > s.Max {
			return nil, fmt.Errorf("clamp: min %v > max %v", s.Min, s.Max)
		}
		return stream.Clamp(in, s.Min, s.Max), nil
	case "fit":
		if s.InMin == s.InMax {
			return nil, fmt.Errorf("fit: empty input range")
		}
		return stream.Fit(in, s.InMin, s.InMax, s.OutMin, s.OutMax), nil
	case "interpolate":
		return stream.Interpolated(in, s.Interpolation, s.Scale)
	default: // "cache"
		return stream.Cached(in), nil
	}
}

var unaryOps = map[string]bool{
	"scale": true, "offset": true, "zoom": true, "shift": true,
	"clamp": true, "fit": true, "interpolate": true, "cache": true,
}
