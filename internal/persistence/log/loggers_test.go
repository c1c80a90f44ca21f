package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelparallax.ai/internal/sim/parallax"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if w.Lines() != 2 {
		t.Fatalf("lines=%d want 2", w.Lines())
	}
	a := readLines(t, filepath.Join(dir, "x-2026-03-01-10.jsonl.zst"))
	b := readLines(t, filepath.Join(dir, "x-2026-03-01-11.jsonl.zst"))
	if len(a) != 1 || len(b) != 1 || a[0] != `{"n":1}` || b[0] != `{"n":2}` {
		t.Fatalf("a=%v b=%v", a, b)
	}
}

func TestGenerationLoggerWritesTrail(t *testing.T) {
	dir := t.TempDir()
	l := NewGenerationLogger(dir)
	for i := 0; i < 3; i++ {
		if err := l.RecordPlacement(parallax.PlacementEntry{Session: "s", X: i, Object: "rock", Placed: true}); err != nil {
			t.Fatalf("placement: %v", err)
		}
	}
	if err := l.RecordLayer(parallax.LayerEntry{Session: "s", Attempts: 3, Placed: 3}); err != nil {
		t.Fatalf("layer: %v", err)
	}
	if err := l.RecordSize(parallax.SizeEntry{Session: "s", Size: 5}); err != nil {
		t.Fatalf("size: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "placements", "placements-*.jsonl.zst"))
	if len(files) != 1 {
		t.Fatalf("placement files=%v", files)
	}
	lines := readLines(t, files[0])
	if len(lines) != 3 {
		t.Fatalf("placement lines=%d want 3", len(lines))
	}
	var e parallax.PlacementEntry
	if err := json.Unmarshal([]byte(lines[2]), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.X != 2 || e.Object != "rock" || !e.Placed {
		t.Fatalf("entry=%+v", e)
	}
	sizes, _ := filepath.Glob(filepath.Join(dir, "sizes", "sizes-*.jsonl.zst"))
	if len(sizes) != 1 || len(readLines(t, sizes[0])) != 1 {
		t.Fatalf("size files=%v", sizes)
	}
}
