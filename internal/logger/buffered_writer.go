package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	// DefaultBufferSize batches writes without holding much memory
	DefaultBufferSize = 32 * 1024

	// DefaultFlushInterval is the auto-flush period for buffered writes
	DefaultFlushInterval = 5 * time.Second

	// LogFilePermissions restricts log files to the owner and group
	LogFilePermissions = 0o640
)

// BufferedFileWriter wraps a file with buffered I/O and periodic auto-flush. Thread-safe.
type BufferedFileWriter struct {
	mu            sync.Mutex
	file          *os.File
	writer        *bufio.Writer
	bufferSize    int
	flushInterval time.Duration
	filePath      string
	stopFlush     chan struct{}
	flushDone     chan struct{}
	closed        bool
}

// BufferedWriterOption configures a BufferedFileWriter
type BufferedWriterOption func(*BufferedFileWriter)

// WithBufferSize sets the buffer size for the writer
func WithBufferSize(size int) BufferedWriterOption {
	return func(w *BufferedFileWriter) {
		if size > 0 {
			w.bufferSize = size
		}
	}
}

// WithFlushInterval sets the auto-flush interval. Pass 0 to disable auto-flush.
func WithFlushInterval(interval time.Duration) BufferedWriterOption {
	return func(w *BufferedFileWriter) {
		w.flushInterval = interval
	}
}

// NewBufferedFileWriter opens filePath in append mode.
func NewBufferedFileWriter(filePath string, opts ...BufferedWriterOption) (*BufferedFileWriter, error) {
	w := &BufferedFileWriter{
		bufferSize:    DefaultBufferSize,
		flushInterval: DefaultFlushInterval,
		filePath:      filePath,
		stopFlush:     make(chan struct{}),
		flushDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}
	w.file = file
	w.writer = bufio.NewWriterSize(file, w.bufferSize)

	if w.flushInterval > 0 {
		go w.autoFlushLoop(time.NewTicker(w.flushInterval))
	} else {
		close(w.flushDone)
	}
	return w, nil
}

func (w *BufferedFileWriter) autoFlushLoop(ticker *time.Ticker) {
	defer close(w.flushDone)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopFlush:
			return
		case <-ticker.C:
			// errors resurface on the next Write
			_ = w.Flush()
		}
	}
}

// Write writes data to the buffer.
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writer == nil {
		return 0, fmt.Errorf("writer is closed")
	}
	return w.writer.Write(p)
}

// Flush flushes the buffer to OS file buffers without fsync.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *BufferedFileWriter) flushLocked() error {
	if w.writer == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return nil
}

// Close flushes, syncs and closes the file. Close is idempotent.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stopFlush)
	<-w.flushDone

	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if err := w.flushLocked(); err != nil {
		errs = append(errs, err)
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("failed to sync file: %w", err))
		}
		if err := w.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close file: %w", err))
		}
		w.file = nil
	}
	w.writer = nil
	return errors.Join(errs...)
}

// Buffered returns the number of bytes buffered but not yet written
func (w *BufferedFileWriter) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writer == nil {
		return 0
	}
	return w.writer.Buffered()
}

var _ io.WriteCloser = (*BufferedFileWriter)(nil)
