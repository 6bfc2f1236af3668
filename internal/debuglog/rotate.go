package debuglog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anyclaude/anyclaude/internal/config"
)

// rotatingWriter is a size- or daily-rotated append-only log file writer.
type rotatingWriter struct {
	mu       sync.Mutex
	path     string
	mode     string
	maxBytes int64
	maxFiles int

	file      *os.File
	written   int64
	openedDay string
}

func newRotatingWriter(cfg config.RotationConfig, path string) (*rotatingWriter, error) {
	w := &rotatingWriter{
		path:     path,
		mode:     cfg.Mode,
		maxBytes: cfg.MaxBytes,
		maxFiles: cfg.MaxFiles,
	}
	if err := w.openCurrent(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingWriter) openCurrent() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.written = info.Size()
	w.openedDay = time.Now().Format("2006-01-02")
	return nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.needsRotation() {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *rotatingWriter) needsRotation() bool {
	switch w.mode {
	case "daily":
		return time.Now().Format("2006-01-02") != w.openedDay
	default: // "size"
		return w.maxBytes > 0 && w.written >= w.maxBytes
	}
}

func (w *rotatingWriter) rotate() error {
	w.file.Close()

	for i := w.maxFiles - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", w.path, i)
		dst := fmt.Sprintf("%s.%d", w.path, i+1)
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	os.Rename(w.path, w.path+".1")

	return w.openCurrent()
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
