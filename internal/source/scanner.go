package source

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// TraceFile is a trace log found on disk.
type TraceFile struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// traceSuffixes are the file names ScanPaths picks up inside directories.
var traceSuffixes = []string{".log", ".log.zst", ".log.gz", ".log.lz4"}

// IsTraceName reports whether name looks like a (possibly compressed) trace.
func IsTraceName(name string) bool {
	for _, s := range traceSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// ScanPaths expands the given files and directories into trace files.
// Files named explicitly are always included; directories are walked and
// only entries matching IsTraceName are kept. Results are sorted by path
// with duplicates removed.
func ScanPaths(paths []string) ([]TraceFile, error) {
	seen := make(map[string]struct{})
	var files []TraceFile

	add := func(path string, info os.FileInfo) {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		files = append(files, TraceFile{
			Path:    path,
			Name:    filepath.Base(path),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(p, info)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // intentionally skip unreadable entries
			}
			if d.IsDir() || !IsTraceName(d.Name()) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return nil //nolint:nilerr // entry vanished during the walk
			}
			add(path, fi)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
