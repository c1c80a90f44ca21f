// Package object reads placeable block structures and stamps them into a
// Placer.
//
// On disk an object is a JSON document, optionally zstd-compressed when the
// file name ends in .zst:
//
//	{"id": "trees/oak", "aabb": [[-2,0,-2],[2,7,2]], "blocks": [{"pos": [0,0,0], "block": "OAK_LOG"}]}
package object

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/rng"
)

var ErrEmpty = errors.New("object: no blocks")

type Loader interface {
	// FindFile resolves an object id to the file that holds it.
	FindFile(id string) (string, error)
	Load(id string) (*Object, error)
}

type Object struct {
	ID     string    `json:"id"`
	AABB   [2][3]int `json:"aabb"`
	Blocks []Block   `json:"blocks"`
}

type Block struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

// Size is the bounding-box extent of an object, in blocks.
type Size struct {
	X, Y, Z int
}

func (s Size) MaxHorizontal() int { return max(s.X, s.Z) }

func (o *Object) Size() Size {
	return Size{
		X: o.AABB[1][0] - o.AABB[0][0] + 1,
		Y: o.AABB[1][1] - o.AABB[0][1] + 1,
		Z: o.AABB[1][2] - o.AABB[0][2] + 1,
	}
}

func (o *Object) Validate() error {
	if len(o.Blocks) == 0 {
		return fmt.Errorf("%s: %w", o.ID, ErrEmpty)
	}
	for i := 0; i < 3; i++ {
		if o.AABB[0][i] > o.AABB[1][i] {
			return fmt.Errorf("%s: inverted aabb on axis %d", o.ID, i)
		}
	}
	for i, b := range o.Blocks {
		if b.Block == "" {
			return fmt.Errorf("%s: block %d: empty material", o.ID, i)
		}
		for a := 0; a < 3; a++ {
			if b.Pos[a] < o.AABB[0][a] || b.Pos[a] > o.AABB[1][a] {
				return fmt.Errorf("%s: block %d outside aabb", o.ID, i)
			}
		}
	}
	return nil
}

func openReader(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return bufio.NewReader(f), func() { _ = f.Close() }, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return dec, func() { dec.Close(); _ = f.Close() }, nil
}

// ReadFile decodes and validates the object stored at path.
func ReadFile(path string) (*Object, error) {
	r, closeFn, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	var o Object
	if err := json.NewDecoder(r).Decode(&o); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// SampleSize reads only what it needs to report the object's extent.
func SampleSize(path string) (Size, error) {
	r, closeFn, err := openReader(path)
	if err != nil {
		return Size{}, err
	}
	defer closeFn()
	var hdr struct {
		ID   string    `json:"id"`
		AABB [2][3]int `json:"aabb"`
	}
	if err := json.NewDecoder(r).Decode(&hdr); err != nil {
		return Size{}, fmt.Errorf("decode %s: %w", path, err)
	}
	o := Object{ID: hdr.ID, AABB: hdr.AABB}
	return o.Size(), nil
}

// WriteFile stores o at path, zstd-compressed when path ends in .zst.
func WriteFile(path string, o *Object) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = f
	var enc *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return err
		}
		w = enc
	}
	if err := json.NewEncoder(w).Encode(o); err != nil {
		_ = f.Close()
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}

// Placer is the block sink objects are stamped into.
type Placer interface {
	Get(x, y, z int) string
	Set(x, y, z int, block string)
	GetHighest(x, z int, ignoreFluid bool) int
	IsSolid(x, y, z int) bool
	IsUnderwater(x, z int) bool
	FluidHeight() int
}

// Place stamps o with its footprint centered on (x, z). Surface rules rest
// the object on the first block above ground and skip submerged columns;
// underwater rules rest it on the sea floor and skip dry columns. r only
// picks the rotation. It reports whether anything was written.
func (o *Object) Place(x, z int, p Placer, rule dimension.ObjectPlacement, r *rng.RNG) bool {
	if p.IsUnderwater(x, z) != rule.Underwater {
		return false
	}
	rot := 0
	if rule.Rotate {
		rot = r.Intn(4)
	}
	y := p.GetHighest(x, z, true) + 1
	cx := (o.AABB[0][0] + o.AABB[1][0]) / 2
	cz := (o.AABB[0][2] + o.AABB[1][2]) / 2
	for _, b := range o.Blocks {
		dx, dz := rotate(b.Pos[0]-cx, b.Pos[2]-cz, rot)
		p.Set(x+dx, y+b.Pos[1]-o.AABB[0][1], z+dz, b.Block)
	}
	return true
}

// rotate turns (dx, dz) by rot quarter turns clockwise.
func rotate(dx, dz, rot int) (int, int) {
	switch rot & 3 {
	case 1:
		return -dz, dx
	case 2:
		return -dx, -dz
	case 3:
		return dz, -dx
	default:
		return dx, dz
	}
}

// Materializer resolves object ids through a Loader and places them.
type Materializer struct {
	Loader Loader
}

func (m Materializer) Place(id string, x, z int, p Placer, rule dimension.ObjectPlacement, r *rng.RNG) (bool, error) {
	o, err := m.Loader.Load(id)
	if err != nil {
		return false, fmt.Errorf("load object %q: %w", id, err)
	}
	return o.Place(x, z, p, rule, r), nil
}
