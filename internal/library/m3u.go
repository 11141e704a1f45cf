package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteM3U rewrites a playlist file with paths relative to the playlist's
// own directory, so the file keeps working when the library is mounted at
// a different root. Written via temp-and-rename like audio files.
func WriteM3U(m3uPath, name string, trackPaths []string) error {
	dir := filepath.Dir(m3uPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create playlist dir: %w", err)
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	if name != "" {
		b.WriteString("#PLAYLIST:" + name + "\n")
	}
	for _, track := range trackPaths {
		rel, err := filepath.Rel(dir, track)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = track
		}
		b.WriteString(rel + "\n")
	}

	tmp, err := os.CreateTemp(dir, ".m3u-*")
	if err != nil {
		return fmt.Errorf("create temp playlist: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.WriteString(b.String())
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write playlist: %w", writeErr)
	}

	if err := os.Rename(tmpPath, m3uPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename playlist: %w", err)
	}
	return nil
}
