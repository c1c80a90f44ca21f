package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"voxelparallax.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dimID := fs.String("dimension", "", "dimension name (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	session := fs.String("session", "", "session filter")
	object := fs.String("object", "", "object filter (placements)")
	chunk := fs.String("chunk", "", "chunk filter cx,cz (placements)")
	failed := fs.Bool("failed", false, "only failed placements")
	limit := fs.Int("limit", 0, "result limit")
	_ = fs.Parse(args)

	q := "sizes"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*dimID) == "" {
			fmt.Fprintln(os.Stderr, "missing -dimension or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "dimensions", *dimID, "index", "generation.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	var rows any
	switch q {
	case "placements":
		f := indexdb.PlacementFilter{Session: *session, Object: *object, Failed: *failed, Limit: *limit}
		if strings.TrimSpace(*chunk) != "" {
			c, err := parseVec2(*chunk)
			if err != nil {
				fmt.Fprintln(os.Stderr, "bad -chunk:", err)
				os.Exit(2)
			}
			f.Chunk = &c
		}
		rows, err = indexdb.Placements(ctx, db, f)
	case "layers":
		rows, err = indexdb.Layers(ctx, db, *session, *limit)
	case "sizes":
		rows, err = indexdb.Sizes(ctx, db, *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-dimension DIM|-db PATH] placements|layers|sizes")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printRows(rows)
}

// printRows prints each element of a slice as one JSON line.
func printRows(rows any) {
	switch rs := rows.(type) {
	case []indexdb.PlacementRow:
		for _, r := range rs {
			printJSON(r)
		}
	case []indexdb.LayerRow:
		for _, r := range rs {
			printJSON(r)
		}
	case []indexdb.SizeRow:
		for _, r := range rs {
			printJSON(r)
		}
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
