package main

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	persistlog "voxelparallax.ai/internal/persistence/log"
	"voxelparallax.ai/internal/sim/data"
	"voxelparallax.ai/internal/sim/parallax"
	"voxelparallax.ai/internal/sim/terrain"
)

func writeAdminPack(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"dimensions/overworld.yaml": "fluid_height: 62\nregions: [temperate]\nheight: {op: constant, value: 70}\nstreams:\n  ridge: {op: constant, value: 0.25}\n",
		"regions/temperate.yaml":    "land_biomes: [plains]\n",
		"biomes/plains.yaml":        "objects:\n  - place: [wide]\n    chance: 0.5\n",
		"objects/wide.json":         `{"aabb":[[0,0,0],[39,0,3]],"blocks":[{"pos":[0,0,0],"block":"STONE"}]}`,
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestReadPlacements_Filters(t *testing.T) {
	dir := t.TempDir()
	gl := persistlog.NewGenerationLogger(dir)
	entries := []parallax.PlacementEntry{
		{X: 1, Z: 1, Object: "tree", Placed: true},
		{X: 40, Z: 2, Object: "tree", Placed: true},
		{X: 3, Z: 5, Object: "rock", Error: "missing"},
		{X: -8, Z: 4, Object: "rock", Placed: true},
	}
	for _, e := range entries {
		if err := gl.RecordPlacement(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := gl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	pdir := filepath.Join(dir, "placements")
	all, err := readPlacements(pdir, trailFilter{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("entries=%d want=4", len(all))
	}

	min, max, err := parseArea("10,10:0,0")
	if err != nil {
		t.Fatalf("parse area: %v", err)
	}
	inArea, err := readPlacements(pdir, trailFilter{Area: &[2][2]int{min, max}})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(inArea) != 2 || inArea[0].X != 1 || inArea[1].X != 3 {
		t.Fatalf("area filter mismatch: %+v", inArea)
	}

	failed, err := readPlacements(pdir, trailFilter{FailedOnly: true})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(failed) != 1 || failed[0].Error != "missing" {
		t.Fatalf("failed filter mismatch: %+v", failed)
	}

	sum := summarize(all)
	if len(sum) != 2 || sum[0].Object != "rock" || sum[0].Failed != 1 || sum[1].Placed != 2 {
		t.Fatalf("summary mismatch: %+v", sum)
	}
}

func TestParseArea(t *testing.T) {
	if _, _, err := parseArea("1,2"); err == nil {
		t.Fatalf("expected error for missing corner")
	}
	if _, _, err := parseArea("1,2:3"); err == nil {
		t.Fatalf("expected error for short corner")
	}
	min, max, err := parseArea(" 5,-2 : -1,7 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if min != [2]int{-1, -2} || max != [2]int{5, 7} {
		t.Fatalf("min=%v max=%v", min, max)
	}
}

func TestComputeSize(t *testing.T) {
	root := writeAdminPack(t)
	e, err := computeSize(root, "overworld", 7, 2, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if e.Dimension != "overworld" || e.Seed != 7 {
		t.Fatalf("entry mismatch: %+v", e)
	}
	if e.Size != 5 || e.MaxX != 40 || e.Objects != 1 {
		t.Fatalf("size mismatch: %+v", e)
	}
	if _, err := computeSize(root, "nether", 7, 2, nil); err == nil {
		t.Fatalf("expected missing dimension error")
	}
}

func TestSampleComplex(t *testing.T) {
	root := writeAdminPack(t)
	pack, err := data.Open(root)
	if err != nil {
		t.Fatal(err)
	}
	dim, err := pack.DimensionLoader().Load("overworld")
	if err != nil {
		t.Fatal(err)
	}
	cx, err := terrain.Build(dim, 7, pack, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	area := sampleArea{X: -4, Z: 8, W: 3, H: 2, Step: 4}
	grid, err := sampleComplex(cx, "height", area)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(grid) != 2 || len(grid[0]) != 3 || grid[1][2] != 70 {
		t.Fatalf("height grid=%v", grid)
	}
	ridge, err := sampleComplex(cx, "ridge", area)
	if err != nil {
		t.Fatalf("sample named: %v", err)
	}
	if ridge[0][0] != 0.25 {
		t.Fatalf("ridge=%v", ridge)
	}
	if _, err := sampleComplex(cx, "nope", area); err == nil {
		t.Fatalf("expected unknown stream error")
	}

	var buf bytes.Buffer
	printGrid(&buf, [][]float64{{1, 0.5}, {0, 2}})
	if got := buf.String(); got != "1.000\t0.500\n0.000\t2.000\n" {
		t.Fatalf("printGrid=%q", got)
	}
}

func TestPreviewImage(t *testing.T) {
	img := previewImage([][]float64{{0, 1}, {0.5, 1}})
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 2 {
		t.Fatalf("bounds=%v", b)
	}
	lo := img.RGBAAt(0, 0)
	hi := img.RGBAAt(1, 0)
	if lo == hi {
		t.Fatalf("expected distinct colors for range ends")
	}
	if hi != img.RGBAAt(1, 1) {
		t.Fatalf("equal values should share a color")
	}

	flat := previewImage([][]float64{{3, 3}})
	if flat.RGBAAt(0, 0) != flat.RGBAAt(1, 0) {
		t.Fatalf("flat grid should be uniform")
	}

	p := filepath.Join(t.TempDir(), "out.png")
	if err := writePreview(p, [][]float64{{0, 1}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil || !strings.HasPrefix(string(b), "\x89PNG") {
		t.Fatalf("png read err=%v", err)
	}
}
