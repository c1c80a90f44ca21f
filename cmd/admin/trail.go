package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxelparallax.ai/internal/sim/parallax"
)

func trailCmd(args []string) {
	fs := flag.NewFlagSet("trail", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dimID := fs.String("dimension", "", "dimension name (required)")
	area := fs.String("area", "", "block area filter: x1,z1:x2,z2 (optional)")
	object := fs.String("object", "", "object filter (optional)")
	failed := fs.Bool("failed", false, "only failed placements")
	summary := fs.Bool("summary", false, "print per-object counts instead of entries")
	_ = fs.Parse(args)

	if strings.TrimSpace(*dimID) == "" {
		fmt.Fprintln(os.Stderr, "missing -dimension")
		os.Exit(2)
	}
	f := trailFilter{Object: strings.TrimSpace(*object), FailedOnly: *failed}
	if strings.TrimSpace(*area) != "" {
		min, max, err := parseArea(*area)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -area:", err)
			os.Exit(2)
		}
		f.Area = &[2][2]int{min, max}
	}

	dir := filepath.Join(*dataDir, "dimensions", *dimID, "logs", "placements")
	recs, err := readPlacements(dir, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read trail:", err)
		os.Exit(1)
	}
	if !*summary {
		for _, r := range recs {
			printJSON(r)
		}
		return
	}
	for _, s := range summarize(recs) {
		printJSON(s)
	}
}

type trailFilter struct {
	Object     string
	FailedOnly bool
	Area       *[2][2]int
}

func (f trailFilter) match(e parallax.PlacementEntry) bool {
	if f.Object != "" && e.Object != f.Object {
		return false
	}
	if f.FailedOnly && e.Placed {
		return false
	}
	if f.Area != nil {
		min, max := f.Area[0], f.Area[1]
		if e.X < min[0] || e.X > max[0] || e.Z < min[1] || e.Z > max[1] {
			return false
		}
	}
	return true
}

// readPlacements reads every hourly placement file under dir in file order.
func readPlacements(dir string, f trailFilter) ([]parallax.PlacementEntry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "placements-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]parallax.PlacementEntry, 0, 1024)
	for _, name := range names {
		if err := scanFile(filepath.Join(dir, name), func(line []byte) error {
			var e parallax.PlacementEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if f.match(e) {
				out = append(out, e)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanFile(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return sc.Err()
}

type objectSummary struct {
	Object   string `json:"object"`
	Attempts int    `json:"attempts"`
	Placed   int    `json:"placed"`
	Failed   int    `json:"failed"`
}

func summarize(recs []parallax.PlacementEntry) []objectSummary {
	by := map[string]*objectSummary{}
	for _, r := range recs {
		s := by[r.Object]
		if s == nil {
			s = &objectSummary{Object: r.Object}
			by[r.Object] = s
		}
		s.Attempts++
		if r.Placed {
			s.Placed++
		} else {
			s.Failed++
		}
	}
	out := make([]objectSummary, 0, len(by))
	for _, s := range by {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Object < out[j].Object })
	return out
}

func parseArea(s string) (min, max [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,z1:x2,z2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 2; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec2(s string) ([2]int, error) {
	var v [2]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected x,z")
	}
	for i := 0; i < 2; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
