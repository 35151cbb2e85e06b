package pipeline

import (
	"os"
	"path/filepath"
)

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "qiprof")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "qiprof")
}

// CachePath returns the full path to the summary cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "summaries.db")
}

// LogPath returns where the interactive UI writes its log.
func LogPath() string {
	return filepath.Join(CacheDir(), "qiprof.log")
}
