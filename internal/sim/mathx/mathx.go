package mathx

import "math"

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// FloorMod is Mod for float coordinates; the result is in [0, b).
func FloorMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Mix64 is the splitmix64 finalizer.
func Mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Key packs a coordinate pair into one word: x in the high half, z in the low half.
func Key(x, z int) uint64 {
	return uint64(uint32(int32(x)))<<32 | uint64(uint32(int32(z)))
}

// ShiftRight truncates v toward zero and then shifts arithmetically, so
// negative coordinates keep their sign (-3 >> 4 == -1).
func ShiftRight(v float64, n uint) int {
	return int(v) >> n
}

// ChunkOf returns the chunk index of a block coordinate.
func ChunkOf(v int) int {
	return v >> 4
}

// ChunkSize is the horizontal edge length of a chunk in blocks.
const ChunkSize = 16
