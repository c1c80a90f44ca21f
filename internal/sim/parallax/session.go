package parallax

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type ChunkState int

const (
	Unvisited ChunkState = iota
	LayerGenerated
	ParallaxGenerated
)

func (s ChunkState) String() string {
	switch s {
	case LayerGenerated:
		return "LAYER_GENERATED"
	case ParallaxGenerated:
		return "PARALLAX_GENERATED"
	default:
		return "UNVISITED"
	}
}

type marker struct {
	layer    atomic.Bool
	parallax atomic.Bool
}

// Markers is the per-session generation marker grid. Each flag flips from
// false to true at most once and never back.
type Markers struct {
	m sync.Map // ChunkKey -> *marker
	n atomic.Int64
}

func (m *Markers) get(k ChunkKey) *marker {
	if v, ok := m.m.Load(k); ok {
		return v.(*marker)
	}
	v, loaded := m.m.LoadOrStore(k, &marker{})
	if !loaded {
		m.n.Add(1)
	}
	return v.(*marker)
}

func (m *Markers) peek(k ChunkKey) *marker {
	if v, ok := m.m.Load(k); ok {
		return v.(*marker)
	}
	return nil
}

// ClaimLayer sets the layer flag of chunk (cx, cz) and reports whether this
// call was the one that set it.
func (m *Markers) ClaimLayer(cx, cz int) bool {
	return m.get(ChunkKey{CX: cx, CZ: cz}).layer.CompareAndSwap(false, true)
}

// ClaimParallax is ClaimLayer for the parallax flag.
func (m *Markers) ClaimParallax(cx, cz int) bool {
	return m.get(ChunkKey{CX: cx, CZ: cz}).parallax.CompareAndSwap(false, true)
}

func (m *Markers) IsLayerGenerated(cx, cz int) bool {
	mk := m.peek(ChunkKey{CX: cx, CZ: cz})
	return mk != nil && mk.layer.Load()
}

func (m *Markers) IsParallaxGenerated(cx, cz int) bool {
	mk := m.peek(ChunkKey{CX: cx, CZ: cz})
	return mk != nil && mk.parallax.Load()
}

func (m *Markers) State(cx, cz int) ChunkState {
	switch {
	case m.IsParallaxGenerated(cx, cz):
		return ParallaxGenerated
	case m.IsLayerGenerated(cx, cz):
		return LayerGenerated
	default:
		return Unvisited
	}
}

// Len is the number of chunks with a marker entry.
func (m *Markers) Len() int { return int(m.n.Load()) }

// Session owns everything one generation run mutates: the marker grid and
// the parallax block store.
type Session struct {
	ID      string
	Started time.Time

	Markers *Markers
	Store   *Store
}

func NewSession() *Session {
	return &Session{
		ID:      uuid.NewString(),
		Started: time.Now().UTC(),
		Markers: &Markers{},
		Store:   NewStore(),
	}
}
