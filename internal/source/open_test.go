package source

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/theirongolddev/qiprof/internal/testutil"
)

func compress(t *testing.T, c Compression, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch c {
	case CompressionNone:
		return data
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	case CompressionZstd:
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		w = enc
	case CompressionLZ4:
		w = lz4.NewWriter(&buf)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestOpen_Compressions(t *testing.T) {
	data := []byte(testutil.LoopTrace(4))
	dir := t.TempDir()

	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			path := filepath.Join(dir, "trace-"+c.String()+".log")
			if err := os.WriteFile(path, compress(t, c, data), 0o600); err != nil {
				t.Fatal(err)
			}

			src, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if src.Compression() != c {
				t.Errorf("Compression = %v, want %v", src.Compression(), c)
			}
			if c == CompressionNone && src.Size() != int64(len(data)) {
				t.Errorf("Size = %d, want %d", src.Size(), len(data))
			}

			rc, err := src.Stream()
			if err != nil {
				t.Fatalf("Stream: %v", err)
			}
			got, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("streamed %d bytes, want %d", len(got), len(data))
			}

			all, err := src.ReadAll()
			if err != nil || !bytes.Equal(all, data) {
				t.Errorf("ReadAll mismatch: %v", err)
			}
		})
	}
}

func TestOpen_ForceBuffered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.log")
	if err := os.WriteFile(path, []byte(testutil.Header), 0o600); err != nil {
		t.Fatal(err)
	}
	src, err := Open(path, WithForceBuffered(true))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Stream(); !errors.Is(err, ErrStreamUnavailable) {
		t.Errorf("Stream err = %v, want ErrStreamUnavailable", err)
	}
	if _, err := src.ReadAll(); err != nil {
		t.Errorf("ReadAll: %v", err)
	}
}

func TestBytesIsBufferedOnly(t *testing.T) {
	b := NewBytes("mem", []byte("x\n"))
	if _, err := b.Stream(); !errors.Is(err, ErrStreamUnavailable) {
		t.Errorf("Stream err = %v", err)
	}
	if b.Size() != 2 {
		t.Errorf("Size = %d, want 2", b.Size())
	}
}

func TestScanPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.log", "b.log.zst", "notes.txt", "sub/c.log.gz"} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	explicit := filepath.Join(dir, "notes.txt")

	files, err := ScanPaths([]string{dir, explicit, filepath.Join(dir, "a.log")})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	want := []string{"a.log", "b.log.zst", "notes.txt", "c.log.gz"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		head []byte
		want Compression
	}{
		{[]byte{0x28, 0xb5, 0x2f, 0xfd, 0}, CompressionZstd},
		{[]byte{0x04, 0x22, 0x4d, 0x18}, CompressionLZ4},
		{[]byte{0x1f, 0x8b, 8}, CompressionGzip},
		{[]byte("[tool-version]"), CompressionNone},
		{nil, CompressionNone},
	}
	for _, tt := range tests {
		if got := Detect(tt.head); got != tt.want {
			t.Errorf("Detect(%x) = %v, want %v", tt.head, got, tt.want)
		}
	}
}
