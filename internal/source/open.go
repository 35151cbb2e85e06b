package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a trace file is encoded on disk.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Detect sniffs the compression format from the first bytes of a file.
func Detect(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, magicZstd):
		return CompressionZstd
	case bytes.HasPrefix(head, magicLZ4):
		return CompressionLZ4
	case bytes.HasPrefix(head, magicGzip):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// Source yields the bytes of one trace log, either incrementally or whole.
type Source interface {
	Name() string
	// Size is the expected number of decoded bytes, or 0 when unknown.
	Size() int64
	// Stream opens an incremental reader. It fails with
	// ErrStreamUnavailable when the source can only be read whole.
	Stream() (io.ReadCloser, error)
	ReadAll() ([]byte, error)
}

// FileSource reads a trace from disk, decompressing it when needed.
type FileSource struct {
	path          string
	size          int64
	compression   Compression
	forceBuffered bool
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithForceBuffered disables streaming so the whole file is read first.
func WithForceBuffered(force bool) FileOption {
	return func(f *FileSource) {
		f.forceBuffered = force
	}
}

// Open stats path and sniffs its compression.
func Open(path string, opts ...FileOption) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}

	head := make([]byte, 32)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}
	head = head[:n]

	fs := &FileSource{path: path, size: info.Size(), compression: Detect(head)}
	switch fs.compression {
	case CompressionNone:
	case CompressionZstd:
		fs.size = 0
		var h zstd.Header
		if err := h.Decode(head); err == nil && h.HasFCS {
			fs.size = int64(h.FrameContentSize)
		}
	default:
		fs.size = 0
	}
	for _, o := range opts {
		o(fs)
	}
	return fs, nil
}

// Name returns the base name of the file.
func (f *FileSource) Name() string { return filepath.Base(f.path) }

// Path returns the path the source was opened with.
func (f *FileSource) Path() string { return f.path }

// Size returns the decoded size when known.
func (f *FileSource) Size() int64 { return f.size }

// Compression returns the detected on-disk encoding.
func (f *FileSource) Compression() Compression { return f.compression }

// Stream opens the file and wraps it in the matching decompressor.
func (f *FileSource) Stream() (io.ReadCloser, error) {
	if f.forceBuffered {
		return nil, ErrStreamUnavailable
	}
	return f.open()
}

// ReadAll reads and decodes the entire file.
func (f *FileSource) ReadAll() ([]byte, error) {
	rc, err := f.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func (f *FileSource) open() (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	switch f.compression {
	case CompressionGzip:
		zr, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, file}}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("zstd: %w", err)
		}
		rc := zr.IOReadCloser()
		return &stackedCloser{Reader: rc, closers: []io.Closer{rc, file}}, nil
	case CompressionLZ4:
		return &stackedCloser{Reader: lz4.NewReader(file), closers: []io.Closer{file}}, nil
	default:
		return file, nil
	}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bytes is an in-memory trace. It only supports whole reads, so the
// pipeline always takes its buffered path.
type Bytes struct {
	name string
	data []byte
}

// NewBytes wraps data as a buffered-only source.
func NewBytes(name string, data []byte) *Bytes {
	return &Bytes{name: name, data: data}
}

func (b *Bytes) Name() string                   { return b.name }
func (b *Bytes) Size() int64                    { return int64(len(b.data)) }
func (b *Bytes) Stream() (io.ReadCloser, error) { return nil, ErrStreamUnavailable }
func (b *Bytes) ReadAll() ([]byte, error)       { return b.data, nil }

// ReaderSource streams from an arbitrary reader such as stdin. It can be
// consumed only once.
type ReaderSource struct {
	name string
	size int64
	r    io.Reader
}

// NewReaderSource wraps r. size may be 0 when unknown.
func NewReaderSource(name string, r io.Reader, size int64) *ReaderSource {
	return &ReaderSource{name: name, r: r, size: size}
}

func (s *ReaderSource) Name() string { return s.name }
func (s *ReaderSource) Size() int64  { return s.size }

func (s *ReaderSource) Stream() (io.ReadCloser, error) {
	return io.NopCloser(s.r), nil
}

func (s *ReaderSource) ReadAll() ([]byte, error) {
	return io.ReadAll(s.r)
}
