package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"

	"voxelparallax.ai/internal/sim/burst"
	"voxelparallax.ai/internal/sim/data"
	"voxelparallax.ai/internal/sim/imagemap"
	"voxelparallax.ai/internal/sim/parallax"
	"voxelparallax.ai/internal/sim/stream"
	"voxelparallax.ai/internal/sim/terrain"
)

// sizeRecorder keeps the last size computation and drops everything else.
type sizeRecorder struct {
	mu   sync.Mutex
	last parallax.SizeEntry
}

func (r *sizeRecorder) RecordPlacement(parallax.PlacementEntry) error { return nil }
func (r *sizeRecorder) RecordLayer(parallax.LayerEntry) error         { return nil }

func (r *sizeRecorder) RecordSize(e parallax.SizeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = e
	return nil
}

func sizeCmd(args []string) {
	fs := flag.NewFlagSet("size", flag.ExitOnError)
	packDir := fs.String("pack", "./pack", "world data pack directory")
	dimID := fs.String("dimension", "overworld", "dimension id")
	seed := fs.Int64("seed", 1337, "world seed")
	workers := fs.Int("workers", 0, "size-probe worker pool size (0 = GOMAXPROCS)")
	verbose := fs.Bool("v", false, "log probe failures")
	_ = fs.Parse(args)

	entry, err := computeSize(*packDir, *dimID, *seed, *workers, cliLogger(*verbose))
	if err != nil {
		fmt.Fprintln(os.Stderr, "size:", err)
		os.Exit(1)
	}
	printJSON(entry)
}

func computeSize(packDir, dimID string, seed int64, workers int, logger *log.Logger) (parallax.SizeEntry, error) {
	pack, err := data.Open(packDir)
	if err != nil {
		return parallax.SizeEntry{}, err
	}
	dim, err := pack.DimensionLoader().Load(dimID)
	if err != nil {
		return parallax.SizeEntry{}, err
	}
	rec := &sizeRecorder{}
	if _, err := parallax.New(context.Background(), parallax.Options{
		Dimension: dim,
		Seed:      seed,
		Data:      pack,
		Pool:      burst.New(workers),
		Recorders: []parallax.Recorder{rec},
		Logger:    logger,
	}); err != nil {
		return parallax.SizeEntry{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.last, nil
}

type sampleArea struct {
	X, Z, W, H, Step int
}

func sampleCmd(args []string) {
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	packDir := fs.String("pack", "./pack", "world data pack directory")
	dimID := fs.String("dimension", "overworld", "dimension id (stream sampling)")
	seed := fs.Int64("seed", 1337, "world seed")
	streamName := fs.String("stream", "height", "stream: height|height_fluid|region|biome|<named stream>")
	imageID := fs.String("image", "", "sample an image map with default settings instead of a stream")
	x := fs.Int("x", 0, "first block x")
	z := fs.Int("z", 0, "first block z")
	w := fs.Int("w", 16, "columns")
	h := fs.Int("h", 16, "rows")
	step := fs.Int("step", 1, "blocks between samples")
	pngOut := fs.String("png", "", "write a preview png instead of printing values")
	verbose := fs.Bool("v", false, "log loader problems")
	_ = fs.Parse(args)

	area := sampleArea{X: *x, Z: *z, W: *w, H: *h, Step: *step}
	if area.W <= 0 || area.H <= 0 || area.Step <= 0 {
		fmt.Fprintln(os.Stderr, "-w, -h and -step must be positive")
		os.Exit(2)
	}
	pack, err := data.Open(*packDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open pack:", err)
		os.Exit(1)
	}
	logger := cliLogger(*verbose)

	var grid [][]float64
	if id := strings.TrimSpace(*imageID); id != "" {
		m := imagemap.Defaults()
		m.Image = id
		s, err := imagemap.NewSampler(m, pack.ImageLoader(), logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "image map:", err)
			os.Exit(2)
		}
		grid = sampleGrid[float64](s, area)
	} else {
		dim, err := pack.DimensionLoader().Load(*dimID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load dimension:", err)
			os.Exit(1)
		}
		cx, err := terrain.Build(dim, *seed, pack, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "build terrain:", err)
			os.Exit(1)
		}
		grid, err = sampleComplex(cx, *streamName, area)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	if p := strings.TrimSpace(*pngOut); p != "" {
		if err := writePreview(p, grid); err != nil {
			fmt.Fprintln(os.Stderr, "write png:", err)
			os.Exit(1)
		}
		return
	}
	printGrid(os.Stdout, grid)
}

func sampleComplex(cx *terrain.Complex, name string, area sampleArea) ([][]float64, error) {
	switch name {
	case "height":
		return sampleGrid(cx.Height, area), nil
	case "height_fluid":
		return sampleGrid(cx.HeightFluid, area), nil
	case "region":
		return sampleGrid(cx.Region, area), nil
	case "biome":
		return sampleGrid(cx.TrueBiome, area), nil
	}
	if s, ok := cx.Named[name]; ok {
		return sampleGrid(s, area), nil
	}
	return nil, fmt.Errorf("unknown stream %q", name)
}

// sampleGrid evaluates s on a row-major grid. Categorical streams yield
// their value index.
func sampleGrid[T any](s stream.Stream[T], a sampleArea) [][]float64 {
	grid := make([][]float64, a.H)
	for j := range grid {
		row := make([]float64, a.W)
		for i := range row {
			x := float64(a.X + i*a.Step)
			z := float64(a.Z + j*a.Step)
			row[i] = s.ToDouble(s.Get2(x, z))
		}
		grid[j] = row
	}
	return grid
}

func printGrid(w io.Writer, grid [][]float64) {
	for _, row := range grid {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = strconv.FormatFloat(v, 'f', 3, 64)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

var (
	previewLow  = colorful.Color{R: 0.05, G: 0.10, B: 0.30}
	previewHigh = colorful.Color{R: 1.00, G: 0.97, B: 0.85}
)

// previewImage maps the grid range onto a Lab blend between two colors.
func previewImage(grid [][]float64) *image.RGBA {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range grid {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	h := len(grid)
	w := 0
	if h > 0 {
		w = len(grid[0])
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y, row := range grid {
		for x, v := range row {
			t := 0.0
			if hi > lo {
				t = (v - lo) / (hi - lo)
			}
			img.Set(x, y, previewLow.BlendLab(previewHigh, t).Clamped())
		}
	}
	return img
}

func writePreview(path string, grid [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, previewImage(grid)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func cliLogger(verbose bool) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "[admin] ", log.LstdFlags)
}
