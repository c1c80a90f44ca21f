// Package stream composes lazily evaluated, coordinate-addressable functions.
//
// A Stream is immutable once built. Wrappers hold their upstream sources by
// value and never mutate them, so a finished graph may be read from any
// number of goroutines.
package stream

import (
	"errors"
	"math"

	perlin "github.com/aquilax/go-perlin"

	"voxelparallax.ai/internal/sim/interp"
	"voxelparallax.ai/internal/sim/mathx"
)

var ErrNoInputs = errors.New("stream: combinator needs at least one input")

type Stream[T any] interface {
	Get2(x, z float64) T
	Get3(x, y, z float64) T

	// ToDouble and FromDouble let numeric combinators work over any element
	// type. Categorical streams map values to and from their index.
	ToDouble(v T) float64
	FromDouble(d float64) T
}

// scalar provides identity conversions for float64 streams.
type scalar struct{}

func (scalar) ToDouble(v float64) float64   { return v }
func (scalar) FromDouble(d float64) float64 { return d }

// wrap forwards conversions to the upstream source.
type wrap[T any] struct {
	src Stream[T]
}

func (w wrap[T]) ToDouble(v T) float64   { return w.src.ToDouble(v) }
func (w wrap[T]) FromDouble(d float64) T { return w.src.FromDouble(d) }

type constant struct {
	scalar
	v float64
}

func Constant(v float64) Stream[float64] { return constant{v: v} }

func (c constant) Get2(float64, float64) float64          { return c.v }
func (c constant) Get3(float64, float64, float64) float64 { return c.v }

type fn2 struct {
	scalar
	f func(x, z float64) float64
}

// Func adapts a 2-D function. Get3 ignores y.
func Func(f func(x, z float64) float64) Stream[float64] { return fn2{f: f} }

func (s fn2) Get2(x, z float64) float64    { return s.f(x, z) }
func (s fn2) Get3(x, _, z float64) float64 { return s.f(x, z) }

type fn3 struct {
	scalar
	f func(x, y, z float64) float64
}

// Func3 adapts a 3-D function. Get2 samples the y=0 plane.
func Func3(f func(x, y, z float64) float64) Stream[float64] { return fn3{f: f} }

func (s fn3) Get2(x, z float64) float64    { return s.f(x, 0, z) }
func (s fn3) Get3(x, y, z float64) float64 { return s.f(x, y, z) }

type PerlinConfig struct {
	Seed    int64   `yaml:"seed"`
	Zoom    float64 `yaml:"zoom"`
	Alpha   float64 `yaml:"alpha"`
	Beta    float64 `yaml:"beta"`
	Octaves int     `yaml:"octaves"`
}

func (c *PerlinConfig) Normalize() {
	if c.Zoom <= 0 {
		c.Zoom = 1
	}
	if c.Alpha == 0 {
		c.Alpha = 2
	}
	if c.Beta == 0 {
		c.Beta = 2
	}
	if c.Octaves <= 0 {
		c.Octaves = 3
	}
}

type perlinStream struct {
	scalar
	p    *perlin.Perlin
	zoom float64
}

// Perlin returns raw gradient noise, roughly in [-1, 1].
func Perlin(cfg PerlinConfig) Stream[float64] {
	cfg.Normalize()
	return perlinStream{
		p:    perlin.NewPerlin(cfg.Alpha, cfg.Beta, int32(cfg.Octaves), cfg.Seed),
		zoom: cfg.Zoom,
	}
}

func (s perlinStream) Get2(x, z float64) float64 {
	return s.p.Noise2D(x/s.zoom, z/s.zoom)
}

func (s perlinStream) Get3(x, y, z float64) float64 {
	return s.p.Noise3D(x/s.zoom, y/s.zoom, z/s.zoom)
}

type bitShift[T any] struct {
	wrap[T]
	n uint
}

// BitShiftRight truncates coordinates to integers and shifts them right by n
// before delegating. Shifts are arithmetic; n == 0 returns src unchanged.
func BitShiftRight[T any](src Stream[T], n uint) Stream[T] {
	if n == 0 {
		return src
	}
	return bitShift[T]{wrap: wrap[T]{src: src}, n: n}
}

func (s bitShift[T]) Get2(x, z float64) T {
	return s.src.Get2(float64(mathx.ShiftRight(x, s.n)), float64(mathx.ShiftRight(z, s.n)))
}

func (s bitShift[T]) Get3(x, y, z float64) T {
	return s.src.Get3(
		float64(mathx.ShiftRight(x, s.n)),
		float64(mathx.ShiftRight(y, s.n)),
		float64(mathx.ShiftRight(z, s.n)),
	)
}

type zoom[T any] struct {
	wrap[T]
	f float64
}

// Zoom divides coordinates by f, stretching features by that factor.
func Zoom[T any](src Stream[T], f float64) Stream[T] {
	if f == 1 || f == 0 {
		return src
	}
	return zoom[T]{wrap: wrap[T]{src: src}, f: f}
}

func (s zoom[T]) Get2(x, z float64) T    { return s.src.Get2(x/s.f, z/s.f) }
func (s zoom[T]) Get3(x, y, z float64) T { return s.src.Get3(x/s.f, y/s.f, z/s.f) }

type offset[T any] struct {
	wrap[T]
	dx, dz float64
}

func Offset[T any](src Stream[T], dx, dz float64) Stream[T] {
	return offset[T]{wrap: wrap[T]{src: src}, dx: dx, dz: dz}
}

func (s offset[T]) Get2(x, z float64) T    { return s.src.Get2(x+s.dx, z+s.dz) }
func (s offset[T]) Get3(x, y, z float64) T { return s.src.Get3(x+s.dx, y, z+s.dz) }

type mapped[T any] struct {
	wrap[T]
	f func(float64) float64
}

func (s mapped[T]) Get2(x, z float64) T {
	return s.FromDouble(s.f(s.ToDouble(s.src.Get2(x, z))))
}

func (s mapped[T]) Get3(x, y, z float64) T {
	return s.FromDouble(s.f(s.ToDouble(s.src.Get3(x, y, z))))
}

func Scale[T any](src Stream[T], k float64) Stream[T] {
	return mapped[T]{wrap: wrap[T]{src: src}, f: func(v float64) float64 { return v * k }}
}

func Clamp[T any](src Stream[T], lo, hi float64) Stream[T] {
	return mapped[T]{wrap: wrap[T]{src: src}, f: func(v float64) float64 { return mathx.Clamp(v, lo, hi) }}
}

// Fit linearly maps [inMin, inMax] onto [outMin, outMax]. Values outside the
// input range extrapolate.
func Fit[T any](src Stream[T], inMin, inMax, outMin, outMax float64) Stream[T] {
	span := inMax - inMin
	return mapped[T]{wrap: wrap[T]{src: src}, f: func(v float64) float64 {
		if span == 0 {
			return outMin
		}
		return outMin + (v-inMin)/span*(outMax-outMin)
	}}
}

type combine[T any] struct {
	wrap[T]
	srcs []Stream[T]
	op   func(acc, v float64) float64
}

func newCombine[T any](op func(acc, v float64) float64, srcs []Stream[T]) (Stream[T], error) {
	if len(srcs) == 0 {
		return nil, ErrNoInputs
	}
	cp := make([]Stream[T], len(srcs))
	copy(cp, srcs)
	return combine[T]{wrap: wrap[T]{src: cp[0]}, srcs: cp, op: op}, nil
}

func (s combine[T]) Get2(x, z float64) T {
	acc := s.srcs[0].ToDouble(s.srcs[0].Get2(x, z))
	for _, src := range s.srcs[1:] {
		acc = s.op(acc, src.ToDouble(src.Get2(x, z)))
	}
	return s.FromDouble(acc)
}

func (s combine[T]) Get3(x, y, z float64) T {
	acc := s.srcs[0].ToDouble(s.srcs[0].Get3(x, y, z))
	for _, src := range s.srcs[1:] {
		acc = s.op(acc, src.ToDouble(src.Get3(x, y, z)))
	}
	return s.FromDouble(acc)
}

// The result of an N-ary combinator converts back through the first input.

func Add[T any](srcs ...Stream[T]) (Stream[T], error) {
	return newCombine(func(a, b float64) float64 { return a + b }, srcs)
}

func Multiply[T any](srcs ...Stream[T]) (Stream[T], error) {
	return newCombine(func(a, b float64) float64 { return a * b }, srcs)
}

func Max[T any](srcs ...Stream[T]) (Stream[T], error) {
	return newCombine(math.Max, srcs)
}

func Min[T any](srcs ...Stream[T]) (Stream[T], error) {
	return newCombine(math.Min, srcs)
}

type interpolated[T any] struct {
	wrap[T]
	m     interp.Method
	scale float64
}

// Interpolated samples src on a lattice of the given scale and blends
// between lattice points. The blend is computed on ToDouble values and
// converted back with FromDouble.
func Interpolated[T any](src Stream[T], m interp.Method, scale float64) (Stream[T], error) {
	if !m.Valid() {
		return nil, interp.ErrUnknownMethod
	}
	return interpolated[T]{wrap: wrap[T]{src: src}, m: m, scale: scale}, nil
}

func (s interpolated[T]) Get2(x, z float64) T {
	v := interp.Noise(s.m, x, z, s.scale, func(xx, zz float64) float64 {
		return s.src.ToDouble(s.src.Get2(xx, zz))
	})
	return s.src.FromDouble(v)
}

func (s interpolated[T]) Get3(x, y, z float64) T {
	v := interp.Noise(s.m, x, z, s.scale, func(xx, zz float64) float64 {
		return s.src.ToDouble(s.src.Get3(xx, y, zz))
	})
	return s.src.FromDouble(v)
}

type selectStream[T comparable] struct {
	src     Stream[float64]
	choices []T
	index   map[T]int
}

// Select picks choices[floor(v*len)] for a source value v in [0, 1].
// ToDouble and FromDouble work in index space.
func Select[T comparable](src Stream[float64], choices []T) (Stream[T], error) {
	if len(choices) == 0 {
		return nil, ErrNoInputs
	}
	cp := make([]T, len(choices))
	copy(cp, choices)
	idx := make(map[T]int, len(cp))
	for i, c := range cp {
		if _, ok := idx[c]; !ok {
			idx[c] = i
		}
	}
	return selectStream[T]{src: src, choices: cp, index: idx}, nil
}

func (s selectStream[T]) pick(v float64) T {
	i := int(math.Floor(v * float64(len(s.choices))))
	return s.choices[mathx.ClampInt(i, 0, len(s.choices)-1)]
}

func (s selectStream[T]) Get2(x, z float64) T    { return s.pick(s.src.Get2(x, z)) }
func (s selectStream[T]) Get3(x, y, z float64) T { return s.pick(s.src.Get3(x, y, z)) }

func (s selectStream[T]) ToDouble(v T) float64 {
	return float64(s.index[v])
}

func (s selectStream[T]) FromDouble(d float64) T {
	i := int(math.Round(d))
	return s.choices[mathx.ClampInt(i, 0, len(s.choices)-1)]
}
