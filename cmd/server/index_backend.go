package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxelparallax.ai/internal/persistence/indexdb"
	"voxelparallax.ai/internal/sim/parallax"
)

type runtimeIndex interface {
	parallax.Recorder
	Close() error
}

// metaSetter is implemented by backends that keep run metadata.
type metaSetter interface {
	SetMeta(ctx context.Context, key, value string) error
}

func openRuntimeIndex(dimDir, dimension string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VP_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dimDir, "index", "generation.sqlite")
		return indexdb.OpenSQLite(dbPath)
	case "remote":
		endpoint := strings.TrimSpace(os.Getenv("VP_INDEX_INGEST_URL"))
		token := strings.TrimSpace(os.Getenv("VP_INDEX_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("VP_INDEX_BACKEND=remote but VP_INDEX_INGEST_URL is empty")
		}
		flushMS := envInt("VP_INDEX_FLUSH_MS", 500)
		batchSize := envInt("VP_INDEX_BATCH_SIZE", 128)
		return indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      endpoint,
			Token:         token,
			Dimension:     dimension,
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported VP_INDEX_BACKEND: %s", backend)
	}
}

func recordRunMeta(idx runtimeIndex, meta map[string]string, logger *log.Logger) {
	ms, ok := idx.(metaSetter)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for k, v := range meta {
		if err := ms.SetMeta(ctx, k, v); err != nil {
			logger.Printf("index backend: set meta %s: %v", k, err)
		}
	}
}
