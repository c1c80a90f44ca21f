package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	persistlog "voxelparallax.ai/internal/persistence/log"
	"voxelparallax.ai/internal/sim/burst"
	"voxelparallax.ai/internal/sim/data"
	"voxelparallax.ai/internal/sim/parallax"
)

func main() {
	var (
		addr      = flag.String("addr", ":8080", "http listen address")
		packDir   = flag.String("pack", "./pack", "world data pack directory")
		dimID     = flag.String("dimension", "overworld", "dimension id inside the pack")
		seed      = flag.Int64("seed", 1337, "world seed")
		dataDir   = flag.String("data", "./data", "runtime data directory")
		workers   = flag.Int("workers", 0, "size-probe worker pool size (0 = GOMAXPROCS)")
		disableDB = flag.Bool("disable_db", false, "disable the generation index (the JSONL trail is always written)")
		pregen    = flag.Int("pregen", 0, "pregenerate parallax for chunks within this radius of the origin")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[parallax] ", log.LstdFlags|log.Lmicroseconds)

	pack, err := data.Open(*packDir)
	if err != nil {
		logger.Fatalf("open pack: %v", err)
	}
	dim, err := pack.DimensionLoader().Load(*dimID)
	if err != nil {
		logger.Fatalf("load dimension: %v", err)
	}
	digest, err := pack.Digest()
	if err != nil {
		logger.Fatalf("pack digest: %v", err)
	}

	dimDir := filepath.Join(*dataDir, "dimensions", dim.Name)
	_ = os.MkdirAll(dimDir, 0o755)

	// Optional read-model index (does not affect generation determinism).
	idx, err := openRuntimeIndex(dimDir, dim.Name, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	trail := persistlog.NewGenerationLogger(filepath.Join(dimDir, "logs"))
	defer trail.Close()

	recorders := []parallax.Recorder{trail}
	if idx != nil {
		recorders = append(recorders, idx)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, cancel := signalContext()
	defer cancel()

	session := parallax.NewSession()
	eng, err := parallax.New(ctx, parallax.Options{
		Dimension: dim,
		Seed:      *seed,
		Data:      pack,
		Session:   session,
		Pool:      burst.New(*workers),
		Recorders: recorders,
		Metrics:   parallax.NewMetrics(reg),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("parallax engine: %v", err)
	}
	if idx != nil {
		recordRunMeta(idx, map[string]string{
			"session":     session.ID,
			"dimension":   dim.Name,
			"seed":        strconv.FormatInt(*seed, 10),
			"pack_digest": digest,
		}, logger)
	}
	logger.Printf("session %s dimension=%s seed=%d parallax_size=%d pack=%s", session.ID, dim.Name, *seed, eng.ParallaxSize(), digest)

	// Pregen records into idx and trail; both close only after it returns.
	var pregenWG sync.WaitGroup
	if *pregen > 0 {
		pregenWG.Add(1)
		go func() {
			defer pregenWG.Done()
			start := time.Now()
			n, err := pregenerate(ctx, eng, *pregen, max(1, *workers))
			if err != nil {
				logger.Printf("pregen stopped after %d chunks: %v", n, err)
				return
			}
			_ = trail.Flush()
			logger.Printf("pregen: %d chunks in %s", n, time.Since(start).Round(time.Millisecond))
		}()
	}

	rt := &runtime{
		eng:        eng,
		pack:       pack,
		dimID:      *dimID,
		packDigest: digest,
		index:      idx,
		trail:      trail,
		registry:   reg,
		logger:     logger,
	}
	mux := rt.routes(envBool("VP_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()), envBool("VP_ENABLE_PPROF_HTTP", false))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	pregenWG.Wait()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
