package log

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	goccy "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"demoreel/internal/model"
)

// JSONLZstdWriter writes one JSON document per line to <dir>/<name>.jsonl.zst.
// The file is created on the first Write.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(dir, name string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: filepath.Join(dir, name+".jsonl.zst")}
}

func (w *JSONLZstdWriter) Path() string { return w.path }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}
	b, err := goccy.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	return err
}

// WriteAll writes vs to <dir>/<name>.jsonl.zst and returns the file path.
// Nothing is written for an empty slice.
func WriteAll[T any](dir, name string, vs []T) (string, error) {
	if len(vs) == 0 {
		return "", nil
	}
	w := NewJSONLZstdWriter(dir, name)
	for _, v := range vs {
		if err := w.Write(v); err != nil {
			_ = w.Close()
			return "", err
		}
	}
	return w.Path(), w.Close()
}

// TraceLogger appends damage traces as they are produced.
type TraceLogger struct{ w *JSONLZstdWriter }

func NewTraceLogger(dir string) *TraceLogger {
	return &TraceLogger{w: NewJSONLZstdWriter(dir, "traces")}
}

func (l *TraceLogger) WriteTrace(t model.DamageTrace) error { return l.w.Write(t) }
func (l *TraceLogger) Path() string                         { return l.w.Path() }
func (l *TraceLogger) Close() error                         { return l.w.Close() }
