package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxelparallax.ai/internal/persistence/indexdb"
	persistlog "voxelparallax.ai/internal/persistence/log"
	"voxelparallax.ai/internal/sim/data"
	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/parallax"
	"voxelparallax.ai/internal/transport/ws"
)

type runtime struct {
	eng        *parallax.Engine
	pack       *data.Pack
	dimID      string
	packDigest string
	index      runtimeIndex
	trail      *persistlog.GenerationLogger
	registry   *prometheus.Registry
	logger     *log.Logger
}

type stateResponse struct {
	Session      string         `json:"session"`
	Started      time.Time      `json:"started"`
	Dimension    string         `json:"dimension"`
	Seed         int64          `json:"seed"`
	ParallaxSize int            `json:"parallax_size"`
	FluidHeight  int            `json:"fluid_height"`
	Markers      int            `json:"markers"`
	Chunks       int            `json:"chunks"`
	PackDigest   string         `json:"pack_digest"`
	Index        *indexdb.Stats `json:"index,omitempty"`
}

func (rt *runtime) routes(enableAdmin, enablePprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))

	if enableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", rt.loopbackOnly(rt.handleState))
		mux.HandleFunc("/admin/v1/size", rt.loopbackOnly(rt.handleSize))
		mux.HandleFunc("/admin/v1/reload", rt.loopbackOnly(rt.handleReload))
	} else {
		rt.logger.Printf("admin endpoints disabled (VP_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		rt.logger.Printf("pprof endpoints disabled (VP_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(rt.eng, ws.Options{
		PackDigest: rt.packDigest,
		Registry:   rt.registry,
		Logger:     rt.logger,
	}).Handler())
	return mux
}

func (rt *runtime) loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (rt *runtime) handleState(rw http.ResponseWriter, r *http.Request) {
	s := rt.eng.Session()
	resp := stateResponse{
		Session:      s.ID,
		Started:      s.Started,
		Dimension:    rt.eng.Dimension().Name,
		Seed:         rt.eng.Seed(),
		ParallaxSize: rt.eng.ParallaxSize(),
		FluidHeight:  rt.eng.FluidHeight(),
		Markers:      s.Markers.Len(),
		Chunks:       len(s.Store.LoadedChunkKeys()),
		PackDigest:   rt.packDigest,
	}
	if sq, ok := rt.index.(*indexdb.SQLiteIndex); ok {
		st := sq.Stats()
		resp.Index = &st
	}
	writeJSONResponse(rw, http.StatusOK, resp)
}

// handleSize recomputes the parallax size of the active configuration
// without installing it.
func (rt *runtime) handleSize(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	size, err := rt.eng.ComputeParallaxSize(ctx)
	if err != nil {
		writeJSONResponse(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSONResponse(rw, http.StatusOK, map[string]any{"ok": true, "size": size, "active": rt.eng.ParallaxSize()})
}

// handleReload re-reads the dimension document from the pack and installs
// it. Region, biome and object edits are picked up too since Reload drops
// the pack caches. Markers and placed blocks of the session are kept.
func (rt *runtime) handleReload(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	dim, err := readDimension(rt.pack.Root(), rt.dimID)
	if err != nil {
		writeJSONResponse(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := rt.eng.Reload(ctx, dim); err != nil {
		writeJSONResponse(rw, http.StatusUnprocessableEntity, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSONResponse(rw, http.StatusOK, map[string]any{"ok": true, "size": rt.eng.ParallaxSize()})
}

func readDimension(packRoot, id string) (*dimension.Dimension, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		raw, err := os.ReadFile(filepath.Join(packRoot, "dimensions", id+ext))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return dimension.DecodeDimension(id, raw)
	}
	return nil, data.ErrNotFound
}

func writeJSONResponse(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
