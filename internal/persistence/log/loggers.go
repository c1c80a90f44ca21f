package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelparallax.ai/internal/sim/parallax"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	lines   int64
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Lines is the number of records written since the writer was created.
func (w *JSONLZstdWriter) Lines() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.lines++
	return nil
}

// Flush pushes buffered records through the encoder to disk.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// GenerationLogger keeps the placement, layer and size trail of a server
// under dataDir/{placements,layers,sizes}. It implements parallax.Recorder.
type GenerationLogger struct {
	placements *JSONLZstdWriter
	layers     *JSONLZstdWriter
	sizes      *JSONLZstdWriter
}

func NewGenerationLogger(dataDir string) *GenerationLogger {
	return &GenerationLogger{
		placements: NewJSONLZstdWriter(filepath.Join(dataDir, "placements"), "placements"),
		layers:     NewJSONLZstdWriter(filepath.Join(dataDir, "layers"), "layers"),
		sizes:      NewJSONLZstdWriter(filepath.Join(dataDir, "sizes"), "sizes"),
	}
}

func (l *GenerationLogger) RecordPlacement(e parallax.PlacementEntry) error { return l.placements.Write(e) }
func (l *GenerationLogger) RecordLayer(e parallax.LayerEntry) error         { return l.layers.Write(e) }

// RecordSize is rare and always flushed so the trail shows the active size.
func (l *GenerationLogger) RecordSize(e parallax.SizeEntry) error {
	if err := l.sizes.Write(e); err != nil {
		return err
	}
	return l.sizes.Flush()
}

func (l *GenerationLogger) Flush() error {
	for _, w := range []*JSONLZstdWriter{l.placements, l.layers, l.sizes} {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (l *GenerationLogger) Close() error {
	var first error
	for _, w := range []*JSONLZstdWriter{l.placements, l.layers, l.sizes} {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ parallax.Recorder = (*GenerationLogger)(nil)
