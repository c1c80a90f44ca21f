package object

import (
	"errors"
	"path/filepath"
	"testing"

	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/rng"
)

type pos struct{ x, y, z int }

type flatWorld struct {
	ground int
	fluid  int
	blocks map[pos]string
}

func newFlatWorld(ground, fluid int) *flatWorld {
	return &flatWorld{ground: ground, fluid: fluid, blocks: map[pos]string{}}
}

func (w *flatWorld) Get(x, y, z int) string          { return w.blocks[pos{x, y, z}] }
func (w *flatWorld) Set(x, y, z int, b string)       { w.blocks[pos{x, y, z}] = b }
func (w *flatWorld) GetHighest(x, z int, _ bool) int { return w.ground }
func (w *flatWorld) IsSolid(x, y, z int) bool        { return y <= w.ground }
func (w *flatWorld) IsUnderwater(x, z int) bool      { return w.ground <= w.fluid }
func (w *flatWorld) FluidHeight() int                { return w.fluid }

func pillar() *Object {
	return &Object{
		ID:   "pillar",
		AABB: [2][3]int{{0, 0, 0}, {2, 1, 0}},
		Blocks: []Block{
			{Pos: [3]int{0, 0, 0}, Block: "STONE"},
			{Pos: [3]int{1, 1, 0}, Block: "GLASS"},
			{Pos: [3]int{2, 0, 0}, Block: "STONE"},
		},
	}
}

func TestSizeAndValidate(t *testing.T) {
	o := pillar()
	if err := o.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := o.Size(); got != (Size{X: 3, Y: 2, Z: 1}) {
		t.Fatalf("size=%+v", got)
	}
	if got := o.Size().MaxHorizontal(); got != 3 {
		t.Fatalf("max horizontal=%d want 3", got)
	}
	empty := &Object{ID: "e"}
	if err := empty.Validate(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	outside := pillar()
	outside.Blocks[0].Pos = [3]int{5, 0, 0}
	if err := outside.Validate(); err == nil {
		t.Fatalf("expected out-of-aabb error")
	}
}

func TestWriteReadRoundTripPlainAndZstd(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"p.json", "p.json.zst"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(path, pillar()); err != nil {
			t.Fatalf("%s: write: %v", name, err)
		}
		o, err := ReadFile(path)
		if err != nil {
			t.Fatalf("%s: read: %v", name, err)
		}
		if len(o.Blocks) != 3 || o.Blocks[1].Block != "GLASS" {
			t.Fatalf("%s: blocks=%+v", name, o.Blocks)
		}
		sz, err := SampleSize(path)
		if err != nil {
			t.Fatalf("%s: sample size: %v", name, err)
		}
		if sz != (Size{X: 3, Y: 2, Z: 1}) {
			t.Fatalf("%s: sampled size=%+v", name, sz)
		}
	}
}

func TestSampleSizeMissingFile(t *testing.T) {
	if _, err := SampleSize(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPlaceCentersOnGround(t *testing.T) {
	w := newFlatWorld(70, 62)
	if !pillar().Place(100, 50, w, dimension.ObjectPlacement{}, rng.New(1)) {
		t.Fatalf("expected placement")
	}
	// Center column (x=1) lands on 100; base row rests at ground+1.
	if got := w.Get(99, 71, 50); got != "STONE" {
		t.Fatalf("left stone=%q", got)
	}
	if got := w.Get(100, 72, 50); got != "GLASS" {
		t.Fatalf("glass=%q", got)
	}
	if got := w.Get(101, 71, 50); got != "STONE" {
		t.Fatalf("right stone=%q", got)
	}
	if len(w.blocks) != 3 {
		t.Fatalf("wrote %d blocks want 3", len(w.blocks))
	}
}

func TestPlaceRespectsWaterMode(t *testing.T) {
	dry := newFlatWorld(70, 62)
	wet := newFlatWorld(50, 62)
	under := dimension.ObjectPlacement{Underwater: true}
	if pillar().Place(0, 0, dry, under, rng.New(1)) {
		t.Fatalf("underwater rule placed on dry land")
	}
	if pillar().Place(0, 0, wet, dimension.ObjectPlacement{}, rng.New(1)) {
		t.Fatalf("surface rule placed underwater")
	}
	if !pillar().Place(0, 0, wet, under, rng.New(1)) {
		t.Fatalf("underwater rule skipped wet column")
	}
	if got := wet.Get(0, 52, 0); got != "GLASS" {
		t.Fatalf("seafloor glass=%q", got)
	}
}

func TestRotate(t *testing.T) {
	cases := []struct{ rot, dx, dz, wx, wz int }{
		{0, 1, 2, 1, 2},
		{1, 1, 2, -2, 1},
		{2, 1, 2, -1, -2},
		{3, 1, 2, 2, -1},
		{4, 1, 2, 1, 2},
	}
	for _, tc := range cases {
		x, z := rotate(tc.dx, tc.dz, tc.rot)
		if x != tc.wx || z != tc.wz {
			t.Fatalf("rotate(%d,%d,%d)=(%d,%d) want (%d,%d)", tc.dx, tc.dz, tc.rot, x, z, tc.wx, tc.wz)
		}
	}
}

type mapLoader map[string]*Object

func (m mapLoader) FindFile(id string) (string, error) { return id + ".json", nil }
func (m mapLoader) Load(id string) (*Object, error) {
	o, ok := m[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return o, nil
}

func TestMaterializer(t *testing.T) {
	m := Materializer{Loader: mapLoader{"pillar": pillar()}}
	w := newFlatWorld(70, 62)
	ok, err := m.Place("pillar", 0, 0, w, dimension.ObjectPlacement{Rotate: true}, rng.New(9))
	if err != nil || !ok {
		t.Fatalf("place: ok=%v err=%v", ok, err)
	}
	if len(w.blocks) != 3 {
		t.Fatalf("wrote %d blocks", len(w.blocks))
	}
	if _, err := m.Place("missing", 0, 0, w, dimension.ObjectPlacement{}, rng.New(9)); err == nil {
		t.Fatalf("expected load error")
	}
}
