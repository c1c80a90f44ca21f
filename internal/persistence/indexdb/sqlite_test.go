package indexdb

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"voxelparallax.ai/internal/sim/parallax"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqLayer}

	_ = s.RecordPlacement(parallax.PlacementEntry{Object: "tree"})
	_ = s.RecordLayer(parallax.LayerEntry{CX: 1})
	_ = s.RecordSize(parallax.SizeEntry{Size: 3})

	st := s.Stats()
	if st.DropPlacementTotal != 1 {
		t.Fatalf("DropPlacementTotal=%d want=1", st.DropPlacementTotal)
	}
	if st.DropLayerTotal != 1 {
		t.Fatalf("DropLayerTotal=%d want=1", st.DropLayerTotal)
	}
	if st.DropSizeTotal != 1 {
		t.Fatalf("DropSizeTotal=%d want=1", st.DropSizeTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_RecordAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "gen.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.RecordSize(parallax.SizeEntry{Session: "s1", Dimension: "overworld", Seed: 42, Size: 5, MaxX: 40, MaxZ: 12, Objects: 3})
	_ = s.RecordPlacement(parallax.PlacementEntry{Session: "s1", Seed: 42, CX: 0, CZ: 0, X: 3, Z: 9, Biome: "plains", Object: "tree", Placed: true})
	_ = s.RecordPlacement(parallax.PlacementEntry{Session: "s1", Seed: 42, CX: 1, CZ: 0, X: 20, Z: 2, Biome: "plains", Object: "rock", Error: "missing"})
	_ = s.RecordPlacement(parallax.PlacementEntry{Session: "s1", Seed: 42, CX: 1, CZ: 0, X: 21, Z: 4, Biome: "plains", Object: "tree", Underwater: true, Placed: true})
	_ = s.RecordLayer(parallax.LayerEntry{Session: "s1", CX: 1, CZ: 0, Biome: "plains", Attempts: 2, Placed: 1, Failed: 1})
	_ = s.RecordLayer(parallax.LayerEntry{Session: "s1", CX: 0, CZ: 0, Biome: "plains", Attempts: 1, Placed: 1})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	all, err := Placements(ctx, s.DB(), PlacementFilter{})
	if err != nil {
		t.Fatalf("placements: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("placements=%d want=3", len(all))
	}
	if all[0].Object != "tree" || !all[0].Underwater || all[0].X != 21 {
		t.Fatalf("newest placement mismatch: %+v", all[0])
	}

	failed, err := Placements(ctx, s.DB(), PlacementFilter{Failed: true})
	if err != nil {
		t.Fatalf("failed placements: %v", err)
	}
	if len(failed) != 1 || failed[0].Error != "missing" || failed[0].Placed {
		t.Fatalf("failed placements mismatch: %+v", failed)
	}

	chunk := [2]int{1, 0}
	trees, err := Placements(ctx, s.DB(), PlacementFilter{Object: "tree", Chunk: &chunk})
	if err != nil {
		t.Fatalf("chunk placements: %v", err)
	}
	if len(trees) != 1 || trees[0].CX != 1 {
		t.Fatalf("chunk placements mismatch: %+v", trees)
	}

	layers, err := Layers(ctx, s.DB(), "s1", 0)
	if err != nil {
		t.Fatalf("layers: %v", err)
	}
	if len(layers) != 2 || layers[0].CX != 0 || layers[1].Failed != 1 {
		t.Fatalf("layers mismatch: %+v", layers)
	}

	sizes, err := Sizes(ctx, s.DB(), 0)
	if err != nil {
		t.Fatalf("sizes: %v", err)
	}
	if len(sizes) != 1 || sizes[0].Size != 5 || sizes[0].MaxX != 40 || sizes[0].Dimension != "overworld" {
		t.Fatalf("sizes mismatch: %+v", sizes)
	}

	if err := s.SetMeta(ctx, "pack_digest", "abc"); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	if v, err := s.Meta(ctx, "pack_digest"); err != nil || v != "abc" {
		t.Fatalf("meta=%q err=%v", v, err)
	}
	if st := s.Stats(); st.WriteErrorTotal != 0 {
		t.Fatalf("write errors=%d", st.WriteErrorTotal)
	}
}

func TestSQLiteIndex_LayerUpsert(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "gen.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.RecordLayer(parallax.LayerEntry{Session: "s", CX: 2, CZ: 3, Biome: "a", Attempts: 1})
	_ = s.RecordLayer(parallax.LayerEntry{Session: "s", CX: 2, CZ: 3, Biome: "a", Attempts: 4})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	layers, err := Layers(ctx, s.DB(), "", 10)
	if err != nil {
		t.Fatalf("layers: %v", err)
	}
	if len(layers) != 1 || layers[0].Attempts != 4 {
		t.Fatalf("layers mismatch: %+v", layers)
	}
}

func TestSQLiteIndex_ClosedIgnoresRecords(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "gen.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = s.RecordLayer(parallax.LayerEntry{})
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestSQLiteIndex_CloseWhileRecording(t *testing.T) {
	s, err := openSQLite(filepath.Join(t.TempDir(), "gen.sqlite"), 16)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	start := make(chan struct{})
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 2000; i++ {
				_ = s.RecordPlacement(parallax.PlacementEntry{X: i, Z: p})
				if i%100 == 0 {
					_ = s.Flush(context.Background())
				}
			}
		}()
	}
	close(start)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
}
