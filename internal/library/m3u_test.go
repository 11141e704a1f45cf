package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteM3URelativePaths(t *testing.T) {
	dir := t.TempDir()
	m3u := filepath.Join(dir, "Playlists", "Focus.m3u")

	tracks := []string{
		filepath.Join(dir, "Playlists", "Focus", "Artist - Song.flac"),
		filepath.Join(dir, "Singles", "Other", "Track.opus"),
	}

	require.NoError(t, WriteM3U(m3u, "Focus", tracks))

	data, err := os.ReadFile(m3u)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "#EXTM3U\n")
	assert.Contains(t, content, "#PLAYLIST:Focus\n")
	assert.Contains(t, content, filepath.Join("Focus", "Artist - Song.flac")+"\n")
	assert.Contains(t, content, filepath.Join("..", "Singles", "Other", "Track.opus")+"\n")
}

func TestWriteM3UOverwrites(t *testing.T) {
	dir := t.TempDir()
	m3u := filepath.Join(dir, "list.m3u")

	require.NoError(t, WriteM3U(m3u, "", []string{filepath.Join(dir, "a.flac")}))
	require.NoError(t, WriteM3U(m3u, "", []string{filepath.Join(dir, "b.flac")}))

	data, err := os.ReadFile(m3u)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "a.flac")
	assert.Contains(t, string(data), "b.flac")
}
