package parallax

import (
	"time"

	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/mathx"
	"voxelparallax.ai/internal/sim/rng"
)

// GenerateParallaxArea generates every layer within ParallaxSize/2 chunks
// (rounded up) of the chunk holding block (x, z) and then marks that chunk
// parallax-generated. It reports false, without doing any work, when the
// chunk was already marked.
func (e *Engine) GenerateParallaxArea(x, z int) bool {
	cx, cz := mathx.ChunkOf(x), mathx.ChunkOf(z)
	if e.session.Markers.IsParallaxGenerated(cx, cz) {
		return false
	}
	s := (e.ParallaxSize() + 1) / 2
	for i := -s; i <= s; i++ {
		for j := -s; j <= s; j++ {
			e.generateLayer(cx+i, cz+j)
		}
	}
	if !e.session.Markers.ClaimParallax(cx, cz) {
		return false
	}
	e.metrics.Areas.Inc()
	return true
}

// GenerateParallaxLayer places the objects of the chunk holding block
// (x, z). Only the first call for a chunk does anything; it reports whether
// this call was that one.
func (e *Engine) GenerateParallaxLayer(x, z int) bool {
	return e.generateLayer(mathx.ChunkOf(x), mathx.ChunkOf(z))
}

func (e *Engine) generateLayer(cx, cz int) bool {
	if !e.session.Markers.ClaimLayer(cx, cz) {
		return false
	}
	start := time.Now()
	st := e.current()
	ox, oz := cx<<4, cz<<4

	biome := st.complex.BiomeAt(float64(ox+8), float64(oz+8))
	sum := LayerEntry{Session: e.session.ID, CX: cx, CZ: cz, Biome: biome.Name}

	r := rng.Derive(e.seed, ox, oz, rng.PurposeParallax)
	for _, rule := range biome.SurfaceObjects() {
		e.placeRule(&sum, ox, oz, rule, r)
	}
	if e.IsUnderwater(ox+8, oz+8) {
		uw := rng.Derive(e.seed, ox, oz, rng.PurposeUnderwater)
		for _, rule := range biome.UnderwaterObjects() {
			e.placeRule(&sum, ox, oz, rule, uw)
		}
	}

	elapsed := time.Since(start)
	sum.Millis = float64(elapsed.Microseconds()) / 1000
	e.metrics.Layers.Inc()
	e.metrics.LayerSeconds.Observe(elapsed.Seconds())
	e.record(func(rec Recorder) error { return rec.RecordLayer(sum) })
	return true
}

// placeRule draws the rule's chance once and, on success, attempts Density
// placements inside the 16x16 footprint at (ox, oz). A failing object is
// logged and skipped. Rotation comes from its own stream per position so a
// failed load never shifts the draws of later placements.
func (e *Engine) placeRule(sum *LayerEntry, ox, oz int, rule dimension.ObjectPlacement, r *rng.RNG) {
	if !r.Chance(rule.Chance) || len(rule.Place) == 0 {
		return
	}
	for i := 0; i < rule.Density; i++ {
		ref := rule.Place[r.Intn(len(rule.Place))]
		x := r.Between(ox, ox+16)
		z := r.Between(oz, oz+16)
		rot := rng.Derive(e.seed, x, z, rng.PurposeObjectRotation)
		placed, err := e.placer.Place(ref, x, z, e, rule, rot)

		entry := PlacementEntry{
			Session:    e.session.ID,
			Seed:       e.seed,
			CX:         ox >> 4,
			CZ:         oz >> 4,
			X:          x,
			Z:          z,
			Biome:      sum.Biome,
			Object:     ref,
			Underwater: rule.Underwater,
			Placed:     placed,
		}
		sum.Attempts++
		switch {
		case err != nil:
			sum.Failed++
			entry.Error = err.Error()
			e.metrics.Placements.WithLabelValues("failed").Inc()
			e.logger.Printf("parallax: place %s at %d,%d: %v", ref, x, z, err)
		case placed:
			sum.Placed++
			e.metrics.Placements.WithLabelValues("placed").Inc()
		default:
			e.metrics.Placements.WithLabelValues("skipped").Inc()
		}
		e.record(func(rec Recorder) error { return rec.RecordPlacement(entry) })
	}
}
