// Package zstd provides transparent Zstandard compression for stored
// resources. The filesystem store uses it when configured to keep objects
// compressed on disk; the engine never sees compressed bytes.
//
// Basic usage:
//
//	f, _ := os.Create("glob_stats.json.zst")
//	w, _ := zstd.NewWriter(f)
//	// write JSON...
//	w.Close()
package zstd

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Level selects the compression speed/ratio trade-off.
type Level int

const (
	// SpeedFastest maximizes throughput at the cost of ratio.
	SpeedFastest Level = iota + 1

	// SpeedDefault balances speed and ratio; recommended for JSON
	// resources, which compress well at any level.
	SpeedDefault

	// SpeedBestCompression minimizes stored size. Noticeably slower.
	SpeedBestCompression
)

func (l Level) encoderLevel() zstd.EncoderLevel {
	switch l {
	case SpeedFastest:
		return zstd.SpeedFastest
	case SpeedBestCompression:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Writer compresses into an underlying io.WriteCloser. Close flushes the
// zstd frame and closes the underlying writer; an unclosed Writer leaves a
// truncated frame behind.
type Writer struct {
	zw     *zstd.Encoder
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewWriter creates a compressing writer at SpeedDefault.
func NewWriter(w io.WriteCloser) (*Writer, error) {
	return NewWriterLevel(w, SpeedDefault)
}

// NewWriterLevel creates a compressing writer at the given level.
func NewWriterLevel(w io.WriteCloser, level Level) (*Writer, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level.encoderLevel()))
	if err != nil {
		return nil, err
	}
	return &Writer{zw: zw, closer: w}, nil
}

func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.zw.Write(p)
}

// Close flushes remaining data, finishes the frame and closes the
// underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.zw.Close(); err != nil {
		_ = w.closer.Close()
		return err
	}
	return w.closer.Close()
}

// Reader decompresses from an underlying io.ReadCloser.
type Reader struct {
	zr     *zstd.Decoder
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewReader creates a decompressing reader.
func NewReader(r io.ReadCloser) (*Reader, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{zr: zr, closer: r}, nil
}

func (r *Reader) Read(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.ErrClosedPipe
	}
	return r.zr.Read(p)
}

// Close releases the decoder and closes the underlying reader.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.zr.Close()
	return r.closer.Close()
}

var (
	_ io.WriteCloser = (*Writer)(nil)
	_ io.ReadCloser  = (*Reader)(nil)
)
