package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelparallax.ai/internal/sim/parallax"
)

// SQLiteIndex is a queryable read model of generation records. Writes are
// queued and applied by one goroutine in batched transactions; when the
// queue is full records are dropped and counted. The JSONL trail remains
// the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against close(ch).
	mu     sync.RWMutex
	closed bool

	dropPlacement atomic.Uint64
	dropLayer     atomic.Uint64
	dropSize      atomic.Uint64
	writeErrors   atomic.Uint64
}

type reqKind int

const (
	reqPlacement reqKind = iota + 1
	reqLayer
	reqSize
	reqFlush
)

type req struct {
	kind reqKind

	placement parallax.PlacementEntry
	layer     parallax.LayerEntry
	size      parallax.SizeEntry
	at        string
	done      chan struct{}
}

type Stats struct {
	DropPlacementTotal uint64 `json:"drop_placement_total"`
	DropLayerTotal     uint64 `json:"drop_layer_total"`
	DropSizeTotal      uint64 `json:"drop_size_total"`
	WriteErrorTotal    uint64 `json:"write_error_total"`
	QueueDepth         int    `json:"queue_depth"`
	QueueCapacity      int    `json:"queue_capacity"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, ch: make(chan req, queue)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS placements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			seed INTEGER NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			x INTEGER NOT NULL,
			z INTEGER NOT NULL,
			biome TEXT NOT NULL,
			object TEXT NOT NULL,
			underwater INTEGER NOT NULL,
			placed INTEGER NOT NULL,
			error TEXT,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_chunk ON placements(cx, cz);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_object ON placements(object);`,
		`CREATE TABLE IF NOT EXISTS layers (
			session TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			biome TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			placed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			ms REAL NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (session, cx, cz)
		);`,
		`CREATE TABLE IF NOT EXISTS parallax_sizes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			dimension TEXT NOT NULL,
			seed INTEGER NOT NULL,
			size INTEGER NOT NULL,
			max_x INTEGER NOT NULL,
			max_z INTEGER NOT NULL,
			objects INTEGER NOT NULL,
			probe_failures INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil {
		return
	}
	r.at = time.Now().UTC().Format(time.RFC3339Nano)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordPlacement(e parallax.PlacementEntry) error {
	s.enqueue(req{kind: reqPlacement, placement: e}, &s.dropPlacement)
	return nil
}

func (s *SQLiteIndex) RecordLayer(e parallax.LayerEntry) error {
	s.enqueue(req{kind: reqLayer, layer: e}, &s.dropLayer)
	return nil
}

func (s *SQLiteIndex) RecordSize(e parallax.SizeEntry) error {
	s.enqueue(req{kind: reqSize, size: e}, &s.dropSize)
	return nil
}

// Flush blocks until every record queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetMeta stores a key/value pair synchronously.
func (s *SQLiteIndex) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, key, value)
	return err
}

func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	return v, err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropPlacementTotal: s.dropPlacement.Load(),
		DropLayerTotal:     s.dropLayer.Load(),
		DropSizeTotal:      s.dropSize.Load(),
		WriteErrorTotal:    s.writeErrors.Load(),
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertPlacement, _ := s.db.Prepare(`INSERT INTO placements(session,seed,cx,cz,x,z,biome,object,underwater,placed,error,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertLayer, _ := s.db.Prepare(`INSERT OR REPLACE INTO layers(session,cx,cz,biome,attempts,placed,failed,ms,recorded_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSize, _ := s.db.Prepare(`INSERT INTO parallax_sizes(session,dimension,seed,size,max_x,max_z,objects,probe_failures,recorded_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertPlacement, insertLayer, insertSize} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			s.writeErrors.Add(1)
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			s.writeErrors.Add(1)
			continue
		}
		switch r.kind {
		case reqPlacement:
			p := r.placement
			var errText any
			if p.Error != "" {
				errText = p.Error
			}
			exec(insertPlacement, p.Session, p.Seed, p.CX, p.CZ, p.X, p.Z, p.Biome, p.Object,
				boolInt(p.Underwater), boolInt(p.Placed), errText, r.at)
		case reqLayer:
			l := r.layer
			exec(insertLayer, l.Session, l.CX, l.CZ, l.Biome, l.Attempts, l.Placed, l.Failed, l.Millis, r.at)
		case reqSize:
			z := r.size
			exec(insertSize, z.Session, z.Dimension, z.Seed, z.Size, z.MaxX, z.MaxZ, z.Objects, z.ProbeFailures, r.at)
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

var _ parallax.Recorder = (*SQLiteIndex)(nil)
