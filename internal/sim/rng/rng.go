// Package rng derives reproducible random streams from a world seed and a
// coordinate. Nothing here keeps global state: the same inputs always give
// the same sequence regardless of call order.
package rng

import (
	"math"
	"math/bits"

	"voxelparallax.ai/internal/sim/mathx"
)

// Purpose scopes a derived stream so that two consumers at the same
// coordinate do not share draws.
type Purpose uint64

const (
	PurposeParallax Purpose = iota + 1
	PurposeUnderwater
	PurposeObjectRotation
)

const golden = 0x9e3779b97f4a7c15

// RNG is a splitmix64 generator. It is not safe for concurrent use; derive
// one per call site instead of sharing.
type RNG struct {
	state uint64
}

func New(seed int64) *RNG {
	return &RNG{state: uint64(seed)}
}

// Derive returns the generator for (worldSeed, x, z, purpose):
//
//	state = Mix64(Key(x,z) ^ Mix64(worldSeed + purpose*golden))
func Derive(worldSeed int64, x, z int, purpose Purpose) *RNG {
	salt := mathx.Mix64(uint64(worldSeed) + uint64(purpose)*golden)
	s := mathx.Mix64(mathx.Key(x, z) ^ salt)
	return New(int64(s))
}

func (r *RNG) Uint64() uint64 {
	r.state += golden
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a value in [0, 1).
func (r *RNG) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// Chance always consumes exactly one draw.
func (r *RNG) Chance(p float64) bool {
	v := r.Float64()
	if math.IsNaN(p) {
		return false
	}
	return v < p
}

// Intn returns a value in [0, n). n <= 0 returns 0 without drawing.
func (r *RNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	// Lemire's multiply-shift; the bias for n << 2^32 is negligible here.
	hi, _ := bits.Mul64(r.Uint64(), uint64(n))
	return int(hi)
}

// Between returns a value in [lo, hi). hi <= lo returns lo.
func (r *RNG) Between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo)
}
