// Package runlog serializes run-log line writes from concurrent
// workers into a single sink. Each WriteLine call produces one complete
// line; lines are never split or merged across callers.
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Writer is a mutex-serialized line writer over an io.Writer sink.
type Writer struct {
	mu     sync.Mutex
	sink   io.Writer
	closer io.Closer
}

// NewWriter wraps an existing sink. The caller keeps ownership of the
// sink's lifetime.
func NewWriter(sink io.Writer) *Writer {
	return &Writer{sink: sink}
}

// OpenFile creates (or truncates) a log file and returns a writer that
// owns it. Close releases the file.
func OpenFile(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	return &Writer{sink: f, closer: f}, nil
}

// WriteLine writes one formatted line to the sink. Callable
// concurrently; the lock around the single sink write guarantees the
// line lands intact and unmerged.
func (w *Writer) WriteLine(format string, args ...interface{}) error {
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n") + "\n"

	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := io.WriteString(w.sink, line)
	return err
}

// Close closes the underlying sink when this writer owns it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

// Discard returns a writer whose lines go nowhere. Used when no run log
// is configured.
func Discard() *Writer {
	return &Writer{sink: io.Discard}
}
