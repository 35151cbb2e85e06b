package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// fingerprintBytes is how much of a file's head is hashed. Traces are
// append-only, so the head plus mtime and size is enough to spot a rewrite.
const fingerprintBytes = 1 << 20

// FileKey identifies one version of a trace file on disk.
type FileKey struct {
	Path        string
	MtimeNs     int64
	Size        int64
	Fingerprint string
}

// KeyFor stats path and hashes its first MiB.
func KeyFor(path string) (FileKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileKey{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return FileKey{}, err
	}
	fp, err := Fingerprint(f)
	if err != nil {
		return FileKey{}, fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return FileKey{
		Path:        path,
		MtimeNs:     info.ModTime().UnixNano(),
		Size:        info.Size(),
		Fingerprint: fp,
	}, nil
}

// Fingerprint returns the hex BLAKE3 digest of the first MiB of r.
func Fingerprint(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, io.LimitReader(r, fingerprintBytes)); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
