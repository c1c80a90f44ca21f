package parallax

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"voxelparallax.ai/internal/sim/burst"
	"voxelparallax.ai/internal/sim/data"
	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/object"
	"voxelparallax.ai/internal/sim/rng"
)

type attempt struct {
	Ref  string
	X, Z int
}

type recordingPlacer struct {
	mu       sync.Mutex
	attempts []attempt
}

func (p *recordingPlacer) Place(ref string, x, z int, _ object.Placer, _ dimension.ObjectPlacement, _ *rng.RNG) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, attempt{ref, x, z})
	return true, nil
}

func (p *recordingPlacer) snapshot() []attempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]attempt(nil), p.attempts...)
}

type memRecorder struct {
	mu         sync.Mutex
	placements []PlacementEntry
	layers     []LayerEntry
	sizes      []SizeEntry
}

func (r *memRecorder) RecordPlacement(e PlacementEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placements = append(r.placements, e)
	return nil
}

func (r *memRecorder) RecordLayer(e LayerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(r.layers, e)
	return nil
}

func (r *memRecorder) RecordSize(e SizeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sizes = append(r.sizes, e)
	return nil
}

type packFiles map[string]string

func writePack(t *testing.T, files packFiles, objects map[string]*object.Object) *data.Pack {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for id, o := range objects {
		p := filepath.Join(root, "objects", filepath.FromSlash(id)+".json")
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := object.WriteFile(p, o); err != nil {
			t.Fatal(err)
		}
	}
	pack, err := data.Open(root)
	if err != nil {
		t.Fatal(err)
	}
	return pack
}

func box(width, depth int) *object.Object {
	return &object.Object{
		AABB:   [2][3]int{{0, 0, 0}, {width - 1, 0, depth - 1}},
		Blocks: []object.Block{{Pos: [3]int{0, 0, 0}, Block: "STONE"}},
	}
}

func basicFiles(biome string) packFiles {
	return packFiles{
		"dimensions/overworld.yaml": "fluid_height: 62\nregions: [temperate]\nheight: {op: constant, value: 70}\n",
		"regions/temperate.yaml":    "land_biomes: [plains]\n",
		"biomes/plains.yaml":        biome,
	}
}

type fixture struct {
	engine   *Engine
	placer   *recordingPlacer
	recorder *memRecorder
}

func newFixture(t *testing.T, pack *data.Pack, seed int64, usePlacer bool) fixture {
	t.Helper()
	dim, err := pack.DimensionLoader().Load("overworld")
	if err != nil {
		t.Fatalf("dimension: %v", err)
	}
	f := fixture{placer: &recordingPlacer{}, recorder: &memRecorder{}}
	opts := Options{
		Dimension: dim,
		Seed:      seed,
		Data:      pack,
		Pool:      burst.New(4),
		Recorders: []Recorder{f.recorder},
	}
	if usePlacer {
		opts.Placer = f.placer
	}
	f.engine, err = New(context.Background(), opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return f
}

const rockRule = "objects: [{place: [rock], chance: 1.0, density: 3}]\n"

func TestSeed42ChunkZeroScenario(t *testing.T) {
	var runs [][]attempt
	for run := 0; run < 2; run++ {
		pack := writePack(t, basicFiles(rockRule), map[string]*object.Object{"rock": box(3, 3)})
		f := newFixture(t, pack, 42, true)
		if !f.engine.GenerateParallaxLayer(0, 0) {
			t.Fatalf("run %d: layer not generated", run)
		}
		got := f.placer.snapshot()
		if len(got) != 3 {
			t.Fatalf("run %d: attempts=%d want 3", run, len(got))
		}
		for _, a := range got {
			if a.Ref != "rock" || a.X < 0 || a.X >= 16 || a.Z < 0 || a.Z >= 16 {
				t.Fatalf("run %d: attempt out of footprint: %+v", run, a)
			}
		}
		runs = append(runs, got)
	}
	if !reflect.DeepEqual(runs[0], runs[1]) {
		t.Fatalf("runs differ: %v vs %v", runs[0], runs[1])
	}
}

func TestLayerIsIdempotent(t *testing.T) {
	pack := writePack(t, basicFiles(rockRule), map[string]*object.Object{"rock": box(3, 3)})
	f := newFixture(t, pack, 7, true)
	if !f.engine.GenerateParallaxLayer(37, -5) {
		t.Fatalf("first call did not generate")
	}
	// Any block inside the same chunk maps to the same layer.
	if f.engine.GenerateParallaxLayer(40, -1) {
		t.Fatalf("second call generated again")
	}
	if got := len(f.placer.snapshot()); got != 3 {
		t.Fatalf("attempts=%d want 3", got)
	}
	for _, a := range f.placer.snapshot() {
		if a.X < 32 || a.X >= 48 || a.Z < -16 || a.Z >= 0 {
			t.Fatalf("attempt outside chunk (2,-1): %+v", a)
		}
	}
	if st := f.engine.Session().Markers.State(2, -1); st != LayerGenerated {
		t.Fatalf("state=%s want LAYER_GENERATED", st)
	}
}

func TestLayerDependsOnlyOnSeedAndChunk(t *testing.T) {
	pack := writePack(t, basicFiles(rockRule), map[string]*object.Object{"rock": box(3, 3)})
	a := newFixture(t, pack, 99, true)
	b := newFixture(t, pack, 99, true)
	// Different call orders, same per-chunk output.
	a.engine.GenerateParallaxLayer(0, 0)
	a.engine.GenerateParallaxLayer(16, 0)
	b.engine.GenerateParallaxLayer(16, 0)
	b.engine.GenerateParallaxLayer(0, 0)
	byChunk := func(as []attempt) map[ChunkKey][]attempt {
		out := map[ChunkKey][]attempt{}
		for _, at := range as {
			k := KeyOf(at.X, at.Z)
			out[k] = append(out[k], at)
		}
		return out
	}
	if !reflect.DeepEqual(byChunk(a.placer.snapshot()), byChunk(b.placer.snapshot())) {
		t.Fatalf("layer output depends on call order")
	}
	c := newFixture(t, pack, 100, true)
	c.engine.GenerateParallaxLayer(0, 0)
	if reflect.DeepEqual(byChunk(a.placer.snapshot())[ChunkKey{}], c.placer.snapshot()) {
		t.Fatalf("different seeds produced identical placements")
	}
}

func TestConcurrentAreaGeneratesEachLayerOnce(t *testing.T) {
	pack := writePack(t, basicFiles(rockRule), map[string]*object.Object{"rock": box(3, 3)})
	f := newFixture(t, pack, 5, true)
	size := f.engine.ParallaxSize()
	s := (size + 1) / 2
	window := (2*s + 1) * (2*s + 1)

	var wg sync.WaitGroup
	var claimed sync.Map
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.engine.GenerateParallaxArea(8, 8) {
				claimed.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	n := 0
	claimed.Range(func(_, _ any) bool { n++; return true })
	if n != 1 {
		t.Fatalf("area claimed by %d callers want 1", n)
	}
	if got := len(f.recorder.layers); got != window {
		t.Fatalf("layers=%d want %d", got, window)
	}
	if got := len(f.placer.snapshot()); got != 3*window {
		t.Fatalf("attempts=%d want %d", got, 3*window)
	}
	m := f.engine.Session().Markers
	if m.State(0, 0) != ParallaxGenerated {
		t.Fatalf("origin not parallax-generated")
	}
	if m.State(s, -s) != LayerGenerated || m.State(s+1, 0) != Unvisited {
		t.Fatalf("window edge states wrong: %s %s", m.State(s, -s), m.State(s+1, 0))
	}
	if f.engine.GenerateParallaxArea(0, 0) {
		t.Fatalf("area regenerated")
	}
	if got := len(f.recorder.layers); got != window {
		t.Fatalf("regeneration added layers: %d", got)
	}
}

func TestMarkersAreMonotonic(t *testing.T) {
	var m Markers
	var wg sync.WaitGroup
	var wins sync.Map
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if m.ClaimLayer(3, 4) {
				wins.Store(i, true)
			}
			if !m.IsLayerGenerated(3, 4) {
				t.Errorf("flag observed false after claim attempt")
			}
		}(i)
	}
	wg.Wait()
	n := 0
	wins.Range(func(_, _ any) bool { n++; return true })
	if n != 1 {
		t.Fatalf("layer claimed %d times", n)
	}
	if m.ClaimLayer(3, 4) || m.State(3, 4) != LayerGenerated {
		t.Fatalf("flag reverted")
	}
	if m.IsParallaxGenerated(9, 9) || m.Len() != 1 {
		t.Fatalf("read created a marker: len=%d", m.Len())
	}
}

func TestBadObjectIsSkipped(t *testing.T) {
	biome := "objects:\n" +
		"  - {place: [missing], chance: 1.0, density: 2}\n" +
		"  - {place: [rock], chance: 1.0, density: 1}\n"
	pack := writePack(t, basicFiles(biome), map[string]*object.Object{"rock": box(1, 1)})
	f := newFixture(t, pack, 1, false)
	if !f.engine.GenerateParallaxLayer(0, 0) {
		t.Fatalf("layer not generated")
	}
	if len(f.recorder.layers) != 1 {
		t.Fatalf("layers=%d", len(f.recorder.layers))
	}
	l := f.recorder.layers[0]
	if l.Attempts != 3 || l.Failed != 2 || l.Placed != 1 {
		t.Fatalf("layer summary=%+v", l)
	}
	// The rock landed on the surface, one above height 70.
	var blocks int
	f.engine.InsertParallax(0, 0, func(x, y, z int, b string) {
		blocks++
		if y != 71 || b != "STONE" {
			t.Fatalf("unexpected block %s at %d,%d,%d", b, x, y, z)
		}
		if !f.engine.IsSolid(x, y, z) {
			t.Fatalf("placed stone not solid")
		}
	})
	if blocks != 1 {
		t.Fatalf("inserted %d blocks want 1", blocks)
	}
	var withErr int
	for _, p := range f.recorder.placements {
		if p.Error != "" {
			withErr++
		}
	}
	if withErr != 2 {
		t.Fatalf("placements with error=%d want 2", withErr)
	}
}

func TestFailedLoadKeepsLaterPlacements(t *testing.T) {
	biome := "objects:\n" +
		"  - {place: [tall], chance: 1.0, density: 2, rotate: true}\n" +
		"  - {place: [rock], chance: 1.0, density: 3, rotate: true}\n"
	rocks := func(objects map[string]*object.Object) []attempt {
		pack := writePack(t, basicFiles(biome), objects)
		f := newFixture(t, pack, 11, false)
		f.engine.GenerateParallaxLayer(0, 0)
		var out []attempt
		for _, p := range f.recorder.placements {
			if p.Object == "rock" {
				out = append(out, attempt{p.Object, p.X, p.Z})
			}
		}
		return out
	}
	with := rocks(map[string]*object.Object{"rock": box(1, 1), "tall": box(3, 3)})
	without := rocks(map[string]*object.Object{"rock": box(1, 1)})
	if len(with) != 3 || !reflect.DeepEqual(with, without) {
		t.Fatalf("rock placements moved: with=%v without=%v", with, without)
	}
}

func TestEmptyPlaceListIsSkipped(t *testing.T) {
	pack := writePack(t, basicFiles(rockRule), map[string]*object.Object{"rock": box(1, 1)})
	f := newFixture(t, pack, 1, true)
	var sum LayerEntry
	f.engine.placeRule(&sum, 0, 0, dimension.ObjectPlacement{Chance: 1, Density: 4}, rng.New(1))
	if sum.Attempts != 0 || len(f.placer.snapshot()) != 0 {
		t.Fatalf("empty rule attempted placements: %+v", sum)
	}
}

func TestUnderwaterPlacements(t *testing.T) {
	files := packFiles{
		"dimensions/overworld.yaml": "fluid_height: 62\nregions: [coast]\nheight: {op: constant, value: 40}\n",
		"regions/coast.yaml":        "land_biomes: [plains]\nsea_biomes: [ocean]\n",
		"biomes/plains.yaml":        rockRule,
		"biomes/ocean.yaml": "objects:\n" +
			"  - {place: [kelp], chance: 1.0, density: 2, underwater: true}\n" +
			"  - {place: [rock], chance: 1.0, density: 1}\n",
	}
	pack := writePack(t, files, map[string]*object.Object{"rock": box(1, 1), "kelp": box(1, 1)})
	f := newFixture(t, pack, 3, false)
	if !f.engine.IsUnderwater(5, 5) {
		t.Fatalf("column not underwater")
	}
	if got := f.engine.GetHighest(5, 5, false); got != 62 {
		t.Fatalf("highest with fluid=%d want 62", got)
	}
	f.engine.GenerateParallaxLayer(0, 0)
	var placedKelp, skippedRock int
	for _, p := range f.recorder.placements {
		switch {
		case p.Object == "kelp" && p.Placed && p.Underwater:
			placedKelp++
		case p.Object == "rock" && !p.Placed:
			skippedRock++
		}
	}
	if placedKelp != 2 || skippedRock != 1 {
		t.Fatalf("kelp=%d skippedRock=%d placements=%+v", placedKelp, skippedRock, f.recorder.placements)
	}
	if f.recorder.layers[0].Biome != "ocean" {
		t.Fatalf("biome=%s want ocean", f.recorder.layers[0].Biome)
	}
}

func TestSizeAggregation(t *testing.T) {
	cases := []struct {
		name    string
		biome   string
		objects map[string]*object.Object
		dimText string
		want    int
	}{
		{"no placements", "objects: []\n", nil, "", 3},
		{"small object", rockRule, map[string]*object.Object{"rock": box(3, 3)}, "", 3},
		{"wide object", rockRule, map[string]*object.Object{"rock": box(40, 2)}, "", 5},
		{"deep object", rockRule, map[string]*object.Object{"rock": box(2, 70)}, "", 7},
		{"missing object", rockRule, nil, "", 3},
		{"text", "objects: []\n", nil, "text: [{text: HELLO, scale: 2}]\n", 5},
		{"biome deposit", "deposits: [{block: ORE, max_size: 33}]\n", nil, "", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			files := basicFiles(tc.biome)
			files["dimensions/overworld.yaml"] += tc.dimText
			pack := writePack(t, files, tc.objects)
			f := newFixture(t, pack, 1, true)
			got := f.engine.ParallaxSize()
			if got != tc.want {
				t.Fatalf("size=%d want %d", got, tc.want)
			}
			if got%2 != 1 || got < 1 {
				t.Fatalf("size %d not odd and positive", got)
			}
			again, err := f.engine.ComputeParallaxSize(context.Background())
			if err != nil || again != got {
				t.Fatalf("recompute=%d err=%v", again, err)
			}
			if len(f.recorder.sizes) != 1 || f.recorder.sizes[0].Size != got {
				t.Fatalf("size records=%+v", f.recorder.sizes)
			}
		})
	}
}

func TestSizeProbeFailureIsCounted(t *testing.T) {
	biome := "objects: [{place: [rock, ghost], chance: 0.5}]\n"
	pack := writePack(t, basicFiles(biome), map[string]*object.Object{"rock": box(40, 1)})
	f := newFixture(t, pack, 1, true)
	if got := f.engine.ParallaxSize(); got != 5 {
		t.Fatalf("size=%d want 5", got)
	}
	if got := f.recorder.sizes[0].ProbeFailures; got != 1 {
		t.Fatalf("probe failures=%d want 1", got)
	}
}

func TestReloadRecomputesSize(t *testing.T) {
	pack := writePack(t, basicFiles(rockRule), map[string]*object.Object{"rock": box(3, 3)})
	f := newFixture(t, pack, 1, true)
	if f.engine.ParallaxSize() != 3 {
		t.Fatalf("initial size=%d", f.engine.ParallaxSize())
	}
	dim := *f.engine.Dimension()
	dim.Text = []dimension.TextPlacement{{Text: "WIDE TEXT", Scale: 3}}
	if err := f.engine.Reload(context.Background(), &dim); err != nil {
		t.Fatalf("reload: %v", err)
	}
	// 6*3*9 = 162 blocks -> ceil(178/16) = 12 -> 13.
	if got := f.engine.ParallaxSize(); got != 13 {
		t.Fatalf("size after reload=%d want 13", got)
	}
	bad := dim
	bad.Regions = []string{"nowhere"}
	if err := f.engine.Reload(context.Background(), &bad); err == nil {
		t.Fatalf("expected reload error")
	}
	if f.engine.ParallaxSize() != 13 {
		t.Fatalf("failed reload replaced the configuration")
	}
}

func TestReloadReadsEditedBiome(t *testing.T) {
	pack := writePack(t, basicFiles(rockRule), map[string]*object.Object{
		"rock":  box(3, 3),
		"tower": box(90, 90),
	})
	f := newFixture(t, pack, 1, true)
	if got := f.engine.ParallaxSize(); got != 3 {
		t.Fatalf("initial size=%d want 3", got)
	}
	biome := filepath.Join(pack.Root(), "biomes", "plains.yaml")
	if err := os.WriteFile(biome, []byte("objects: [{place: [tower], chance: 1.0, density: 1}]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(pack.Root(), "dimensions", "overworld.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	dim, err := dimension.DecodeDimension("overworld", raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := f.engine.Reload(context.Background(), dim); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got, want := f.engine.ParallaxSize(), ChunkRadius(90); got != want {
		t.Fatalf("size after reload=%d want %d", got, want)
	}
	if got := f.recorder.sizes[len(f.recorder.sizes)-1].MaxX; got != 90 {
		t.Fatalf("recorded max_x=%d want 90", got)
	}
}

func TestChunkRadius(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 3}, {16, 3}, {17, 3}, {32, 3}, {33, 5}, {48, 5}, {49, 5}, {64, 5}, {65, 7},
	}
	for _, tc := range cases {
		if got := ChunkRadius(tc.in); got != tc.want {
			t.Fatalf("ChunkRadius(%d)=%d want %d", tc.in, got, tc.want)
		}
	}
}

func TestMaxCellConcurrent(t *testing.T) {
	var c maxCell
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			c.Observe(v)
		}(i)
	}
	wg.Wait()
	if c.Load() != 199 {
		t.Fatalf("max=%d want 199", c.Load())
	}
}

func TestMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Layers.Inc()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	if !names["parallax_layers_generated_total"] {
		t.Fatalf("layers metric not registered: %v", names)
	}
}

func TestStoreDigestIgnoresWriteOrder(t *testing.T) {
	a, b := NewStore(), NewStore()
	for i := 0; i < 10; i++ {
		a.SetBlockAt(i, 60+i, -i, fmt.Sprintf("B%d", i))
	}
	for i := 9; i >= 0; i-- {
		b.SetBlockAt(i, 60+i, -i, fmt.Sprintf("B%d", i))
	}
	for _, k := range a.LoadedChunkKeys() {
		if a.Chunk(k.CX, k.CZ).Digest() != b.Chunk(k.CX, k.CZ).Digest() {
			t.Fatalf("digest differs for %+v", k)
		}
	}
	if got, ok := a.GetBlockAt(-0, 60, 0); !ok || got != "B0" {
		t.Fatalf("get=%q ok=%v", got, ok)
	}
	if _, ok := a.GetBlockAt(100, 0, 100); ok {
		t.Fatalf("unexpected block")
	}
	keys := a.LoadedChunkKeys()
	if len(keys) != 2 || keys[0] != (ChunkKey{CX: 0, CZ: -1}) {
		t.Fatalf("keys=%v", keys)
	}
}
