package indexdb

import (
	"context"
	"database/sql"
	"strings"
)

// PlacementFilter narrows a placement query. Zero fields match everything.
type PlacementFilter struct {
	Session string
	Object  string
	Chunk   *[2]int
	Failed  bool
	Limit   int
}

type PlacementRow struct {
	Session    string `json:"session"`
	Seed       int64  `json:"seed"`
	CX         int    `json:"cx"`
	CZ         int    `json:"cz"`
	X          int    `json:"x"`
	Z          int    `json:"z"`
	Biome      string `json:"biome"`
	Object     string `json:"object"`
	Underwater bool   `json:"underwater"`
	Placed     bool   `json:"placed"`
	Error      string `json:"error,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

type LayerRow struct {
	Session    string  `json:"session"`
	CX         int     `json:"cx"`
	CZ         int     `json:"cz"`
	Biome      string  `json:"biome"`
	Attempts   int     `json:"attempts"`
	Placed     int     `json:"placed"`
	Failed     int     `json:"failed"`
	Millis     float64 `json:"ms"`
	RecordedAt string  `json:"recorded_at"`
}

type SizeRow struct {
	Session       string `json:"session"`
	Dimension     string `json:"dimension"`
	Seed          int64  `json:"seed"`
	Size          int    `json:"size"`
	MaxX          int    `json:"max_x"`
	MaxZ          int    `json:"max_z"`
	Objects       int    `json:"objects"`
	ProbeFailures int    `json:"probe_failures"`
	RecordedAt    string `json:"recorded_at"`
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// Placements returns matching placement attempts, newest first.
func Placements(ctx context.Context, db *sql.DB, f PlacementFilter) ([]PlacementRow, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(f.Session); s != "" {
		where = append(where, "session=?")
		args = append(args, s)
	}
	if o := strings.TrimSpace(f.Object); o != "" {
		where = append(where, "object=?")
		args = append(args, o)
	}
	if f.Chunk != nil {
		where = append(where, "cx=? AND cz=?")
		args = append(args, f.Chunk[0], f.Chunk[1])
	}
	if f.Failed {
		where = append(where, "placed=0")
	}
	q := `SELECT session,seed,cx,cz,x,z,biome,object,underwater,placed,COALESCE(error,''),recorded_at FROM placements`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limitOr(f.Limit, 50))

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlacementRow
	for rows.Next() {
		var (
			r                  PlacementRow
			underwater, placed int
		)
		if err := rows.Scan(&r.Session, &r.Seed, &r.CX, &r.CZ, &r.X, &r.Z, &r.Biome, &r.Object,
			&underwater, &placed, &r.Error, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Underwater = underwater != 0
		r.Placed = placed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Layers returns generated layers of a session ordered by chunk.
func Layers(ctx context.Context, db *sql.DB, session string, limit int) ([]LayerRow, error) {
	q := `SELECT session,cx,cz,biome,attempts,placed,failed,ms,recorded_at FROM layers`
	var args []any
	if s := strings.TrimSpace(session); s != "" {
		q += " WHERE session=?"
		args = append(args, s)
	}
	q += " ORDER BY cx, cz LIMIT ?"
	args = append(args, limitOr(limit, 100))

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LayerRow
	for rows.Next() {
		var r LayerRow
		if err := rows.Scan(&r.Session, &r.CX, &r.CZ, &r.Biome, &r.Attempts, &r.Placed, &r.Failed, &r.Millis, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sizes returns parallax size computations, newest first.
func Sizes(ctx context.Context, db *sql.DB, limit int) ([]SizeRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT session,dimension,seed,size,max_x,max_z,objects,probe_failures,recorded_at FROM parallax_sizes ORDER BY id DESC LIMIT ?`, limitOr(limit, 20))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SizeRow
	for rows.Next() {
		var r SizeRow
		if err := rows.Scan(&r.Session, &r.Dimension, &r.Seed, &r.Size, &r.MaxX, &r.MaxZ, &r.Objects, &r.ProbeFailures, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DB exposes the underlying handle for read queries.
func (s *SQLiteIndex) DB() *sql.DB { return s.db }
