package parallax

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"

	"voxelparallax.ai/internal/sim/mathx"
)

// WorldAccessor reads and writes single blocks in world coordinates.
type WorldAccessor interface {
	GetBlockAt(x, y, z int) (string, bool)
	SetBlockAt(x, y, z int, block string)
}

type ChunkKey struct {
	CX int
	CZ int
}

func KeyOf(x, z int) ChunkKey {
	return ChunkKey{CX: mathx.ChunkOf(x), CZ: mathx.ChunkOf(z)}
}

type localPos struct {
	X, Y, Z int
}

// Chunk holds the parallax blocks written into one 16x16 column. Only
// written positions are stored.
type Chunk struct {
	CX, CZ int

	mu     sync.RWMutex
	blocks map[localPos]string
	dirty  bool
	hash   [32]byte
}

func newChunk(cx, cz int) *Chunk {
	return &Chunk{CX: cx, CZ: cz, blocks: map[localPos]string{}}
}

func (c *Chunk) Get(lx, y, lz int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blocks[localPos{lx, y, lz}]
	return b, ok
}

func (c *Chunk) Set(lx, y, lz int, b string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := localPos{lx, y, lz}
	if cur, ok := c.blocks[p]; ok && cur == b {
		return
	}
	c.blocks[p] = b
	c.dirty = true
}

func (c *Chunk) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

type placedBlock struct {
	pos   localPos
	block string
}

func (c *Chunk) sorted() []placedBlock {
	out := make([]placedBlock, 0, len(c.blocks))
	for p, b := range c.blocks {
		out = append(out, placedBlock{p, b})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].pos, out[j].pos
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.X < b.X
	})
	return out
}

// Each visits blocks in (y, z, x) order using world coordinates.
func (c *Chunk) Each(fn func(x, y, z int, block string)) {
	c.mu.RLock()
	blocks := c.sorted()
	c.mu.RUnlock()
	for _, pb := range blocks {
		fn(c.CX*16+pb.pos.X, pb.pos.Y, c.CZ*16+pb.pos.Z, pb.block)
	}
}

// Digest is a content hash that is independent of write order.
func (c *Chunk) Digest() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [8]byte
		for _, pb := range c.sorted() {
			for _, v := range [3]int{pb.pos.X, pb.pos.Y, pb.pos.Z} {
				binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
				h.Write(tmp[:])
			}
			h.Write([]byte(pb.block))
			h.Write([]byte{0})
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// Store is the sparse parallax block store of one session.
type Store struct {
	mu     sync.RWMutex
	chunks map[ChunkKey]*Chunk
}

func NewStore() *Store {
	return &Store{chunks: map[ChunkKey]*Chunk{}}
}

// Chunk returns the chunk at (cx, cz), or nil if nothing was written there.
func (s *Store) Chunk(cx, cz int) *Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks[ChunkKey{CX: cx, CZ: cz}]
}

func (s *Store) getOrCreate(k ChunkKey) *Chunk {
	s.mu.RLock()
	ch, ok := s.chunks[k]
	s.mu.RUnlock()
	if ok {
		return ch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.chunks[k]; ok {
		return ch
	}
	ch = newChunk(k.CX, k.CZ)
	s.chunks[k] = ch
	return ch
}

func (s *Store) GetBlockAt(x, y, z int) (string, bool) {
	ch := s.Chunk(mathx.ChunkOf(x), mathx.ChunkOf(z))
	if ch == nil {
		return "", false
	}
	return ch.Get(mathx.Mod(x, 16), y, mathx.Mod(z, 16))
}

func (s *Store) SetBlockAt(x, y, z int, block string) {
	ch := s.getOrCreate(KeyOf(x, z))
	ch.Set(mathx.Mod(x, 16), y, mathx.Mod(z, 16), block)
}

func (s *Store) LoadedChunkKeys() []ChunkKey {
	s.mu.RLock()
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}
