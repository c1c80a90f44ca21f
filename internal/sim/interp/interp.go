// Package interp blends values between lattice samples of a 2-D function.
//
// Lattice points sit at multiples of scale. Fractional positions are always
// decomposed with floor, so negative coordinates blend the same way as
// positive ones and there is no seam at zero.
package interp

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Sampler is the function being interpolated.
type Sampler func(x, z float64) float64

type Method int

const (
	None Method = iota
	Bilinear
	Bicubic
	Hermite
	Starcast3
	Starcast6
	Starcast9
	Starcast12
	BilinearStarcast3
	BilinearStarcast6
	BilinearStarcast9
	BilinearStarcast12
	BicubicStarcast3
	BicubicStarcast6
	BicubicStarcast9
	BicubicStarcast12
	HermiteStarcast3
	HermiteStarcast6
	HermiteStarcast9
	HermiteStarcast12
)

var ErrUnknownMethod = errors.New("unknown interpolation method")

var methodNames = [...]string{
	None:               "NONE",
	Bilinear:           "BILINEAR",
	Bicubic:            "BICUBIC",
	Hermite:            "HERMITE",
	Starcast3:          "STARCAST_3",
	Starcast6:          "STARCAST_6",
	Starcast9:          "STARCAST_9",
	Starcast12:         "STARCAST_12",
	BilinearStarcast3:  "BILINEAR_STARCAST_3",
	BilinearStarcast6:  "BILINEAR_STARCAST_6",
	BilinearStarcast9:  "BILINEAR_STARCAST_9",
	BilinearStarcast12: "BILINEAR_STARCAST_12",
	BicubicStarcast3:   "BICUBIC_STARCAST_3",
	BicubicStarcast6:   "BICUBIC_STARCAST_6",
	BicubicStarcast9:   "BICUBIC_STARCAST_9",
	BicubicStarcast12:  "BICUBIC_STARCAST_12",
	HermiteStarcast3:   "HERMITE_STARCAST_3",
	HermiteStarcast6:   "HERMITE_STARCAST_6",
	HermiteStarcast9:   "HERMITE_STARCAST_9",
	HermiteStarcast12:  "HERMITE_STARCAST_12",
}

func (m Method) Valid() bool {
	return m >= None && int(m) < len(methodNames)
}

func (m Method) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

func ParseMethod(s string) (Method, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range methodNames {
		if n == s {
			return Method(i), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, int(m))
	}
	return []byte(methodNames[m]), nil
}

func (m *Method) UnmarshalText(b []byte) error {
	v, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Rays is the number of starcast rays, 0 for plain methods.
func (m Method) Rays() int {
	switch m {
	case Starcast3, BilinearStarcast3, BicubicStarcast3, HermiteStarcast3:
		return 3
	case Starcast6, BilinearStarcast6, BicubicStarcast6, HermiteStarcast6:
		return 6
	case Starcast9, BilinearStarcast9, BicubicStarcast9, HermiteStarcast9:
		return 9
	case Starcast12, BilinearStarcast12, BicubicStarcast12, HermiteStarcast12:
		return 12
	}
	return 0
}

// Base is the lattice method applied at each ray endpoint.
func (m Method) Base() Method {
	switch {
	case m >= Starcast3 && m <= Starcast12:
		return None
	case m >= BilinearStarcast3 && m <= BilinearStarcast12:
		return Bilinear
	case m >= BicubicStarcast3 && m <= BicubicStarcast12:
		return Bicubic
	case m >= HermiteStarcast3 && m <= HermiteStarcast12:
		return Hermite
	}
	return m
}

// Noise samples f on the lattice of spacing scale and blends per m.
// A scale of 1 or less samples f directly.
func Noise(m Method, x, z, scale float64, f Sampler) float64 {
	if scale <= 1 {
		return f(x, z)
	}
	if rays := m.Rays(); rays > 0 {
		base := m.Base()
		if base == None {
			return starcast(x, z, scale, rays, f)
		}
		return starcast(x, z, scale, rays, func(xx, zz float64) float64 {
			return lattice(base, xx, zz, scale, f)
		})
	}
	return lattice(m, x, z, scale, f)
}

func lattice(m Method, x, z, scale float64, f Sampler) float64 {
	switch m {
	case Bilinear:
		return bilinear(x, z, scale, f)
	case Bicubic:
		return bicubic(x, z, scale, f, cubic)
	case Hermite:
		return bicubic(x, z, scale, f, hermite)
	default:
		return nearest(x, z, scale, f)
	}
}

func floorLattice(v, scale float64) (origin, frac float64) {
	origin = math.Floor(v/scale) * scale
	return origin, (v - origin) / scale
}

func nearest(x, z, scale float64, f Sampler) float64 {
	x1, _ := floorLattice(x, scale)
	z1, _ := floorLattice(z, scale)
	return f(x1, z1)
}

func bilinear(x, z, scale float64, f Sampler) float64 {
	x1, px := floorLattice(x, scale)
	z1, pz := floorLattice(z, scale)
	x2 := x1 + scale
	z2 := z1 + scale
	return blerp(f(x1, z1), f(x2, z1), f(x1, z2), f(x2, z2), px, pz)
}

func bicubic(x, z, scale float64, f Sampler, curve func(p0, p1, p2, p3, t float64) float64) float64 {
	x1, px := floorLattice(x, scale)
	z1, pz := floorLattice(z, scale)
	var rows [4]float64
	for j := 0; j < 4; j++ {
		zz := z1 + float64(j-1)*scale
		rows[j] = curve(
			f(x1-scale, zz),
			f(x1, zz),
			f(x1+scale, zz),
			f(x1+2*scale, zz),
			px,
		)
	}
	return curve(rows[0], rows[1], rows[2], rows[3], pz)
}

// starcast averages rays samples on a ring of radius rad around (x, z).
func starcast(x, z, rad float64, rays int, f Sampler) float64 {
	v := 0.0
	for i := 0; i < rays; i++ {
		a := float64(i) * (2 * math.Pi / float64(rays))
		sin, cos := math.Sincos(a)
		cx := x + (rad*cos - rad*sin)
		cz := z + (rad*sin + rad*cos)
		v += f(cx, cz)
	}
	return v / float64(rays)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func blerp(a00, a10, a01, a11, tx, tz float64) float64 {
	return lerp(lerp(a00, a10, tx), lerp(a01, a11, tx), tz)
}

func cubic(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	a0 := p3 - p2 - p0 + p1
	a1 := p0 - p1 - a0
	a2 := p2 - p0
	return a0*t*t2 + a1*t2 + a2*t + p1
}

// hermite with zero tension and bias.
func hermite(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	m0 := (p1-p0)/2 + (p2-p1)/2
	m1 := (p2-p1)/2 + (p3-p2)/2
	a0 := 2*t3 - 3*t2 + 1
	a1 := t3 - 2*t2 + t
	a2 := t3 - t2
	a3 := -2*t3 + 3*t2
	return a0*p1 + a1*m0 + a2*m1 + a3*p2
}
