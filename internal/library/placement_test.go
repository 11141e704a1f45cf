package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPlacer(t *testing.T, organizeByArtist bool) (*Placer, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.LibraryConfig{
		MusicDir:         dir,
		SinglesSubdir:    "Singles",
		PlaylistsSubdir:  "Playlists",
		AlbumsSubdir:     "Albums",
		OrganizeByArtist: organizeByArtist,
		FileMode:         0o666,
	}
	return NewPlacer(cfg, zap.NewNop()), dir
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "ACDC BackInBlack", SanitizeFilename(`AC/DC: Back\In|Black?`))
	assert.Equal(t, "a b", SanitizeFilename("  a    b  "))
}

func TestTargetPathArtistMode(t *testing.T) {
	p, dir := testPlacer(t, true)
	got := p.TargetPath("Daft Punk", "Get Lucky", "", ".flac")
	assert.Equal(t, filepath.Join(dir, "Singles", "Daft Punk", "Get Lucky.flac"), got)
}

func TestTargetPathFlatMode(t *testing.T) {
	p, dir := testPlacer(t, false)
	got := p.TargetPath("Daft Punk", "Get Lucky", "", ".opus")
	assert.Equal(t, filepath.Join(dir, "Singles", "Daft Punk - Get Lucky.opus"), got)
}

func TestFindDuplicateSameLayout(t *testing.T) {
	p, dir := testPlacer(t, true)
	existing := filepath.Join(dir, "Singles", "Daft Punk", "Get Lucky.flac")
	writeFile(t, existing)

	assert.Equal(t, existing, p.FindDuplicate("Daft Punk", "Get Lucky"))
}

func TestFindDuplicateAcrossLayouts(t *testing.T) {
	// Library was built flat, then organize_by_artist got turned on
	p, dir := testPlacer(t, true)
	existing := filepath.Join(dir, "Singles", "Daft Punk - Get Lucky.opus")
	writeFile(t, existing)

	assert.Equal(t, existing, p.FindDuplicate("Daft Punk", "Get Lucky"))
}

func TestFindDuplicateAcrossFormats(t *testing.T) {
	p, dir := testPlacer(t, true)
	existing := filepath.Join(dir, "Singles", "Daft Punk", "Get Lucky.mp3")
	writeFile(t, existing)

	// A .flac request still matches the existing .mp3
	assert.Equal(t, existing, p.FindDuplicate("Daft Punk", "Get Lucky"))
}

func TestFindDuplicateCaseInsensitive(t *testing.T) {
	p, dir := testPlacer(t, true)
	existing := filepath.Join(dir, "Singles", "Daft Punk", "get lucky.flac")
	writeFile(t, existing)

	assert.Equal(t, existing, p.FindDuplicate("Daft Punk", "Get Lucky"))
}

func TestFindDuplicateMiss(t *testing.T) {
	p, dir := testPlacer(t, true)
	writeFile(t, filepath.Join(dir, "Singles", "Daft Punk", "One More Time.flac"))

	assert.Empty(t, p.FindDuplicate("Daft Punk", "Get Lucky"))
}

func TestPlaceMovesAtomically(t *testing.T) {
	p, dir := testPlacer(t, true)

	work := t.TempDir()
	src := filepath.Join(work, "download.flac")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	target := p.TargetPath("Artist", "Song", "", ".flac")
	require.NoError(t, p.Place(src, target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// Source work file is gone, no temp debris remains
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(filepath.Join(dir, "Singles", "Artist"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPlaceMissingSourceLeavesTargetUntouched(t *testing.T) {
	p, _ := testPlacer(t, true)

	target := p.TargetPath("Artist", "Song", "", ".flac")
	writeFile(t, target)

	err := p.Place("/nonexistent/src.flac", target)
	require.Error(t, err)

	data, readErr := os.ReadFile(target)
	require.NoError(t, readErr)
	assert.Equal(t, "audio", string(data))
}

func TestDeleteRemovesSidecarsAndEmptyDir(t *testing.T) {
	p, dir := testPlacer(t, true)

	audio := filepath.Join(dir, "Singles", "Artist", "Song.flac")
	writeFile(t, audio)
	writeFile(t, filepath.Join(dir, "Singles", "Artist", "Song.lrc"))
	writeFile(t, filepath.Join(dir, "Singles", "Artist", "Song.jpg"))

	require.NoError(t, p.Delete(audio))

	_, err := os.Stat(filepath.Join(dir, "Singles", "Artist"))
	assert.True(t, os.IsNotExist(err), "empty artist dir should be removed")
}

func TestDeleteKeepsNonEmptyDir(t *testing.T) {
	p, dir := testPlacer(t, true)

	audio := filepath.Join(dir, "Singles", "Artist", "Song.flac")
	other := filepath.Join(dir, "Singles", "Artist", "Other.flac")
	writeFile(t, audio)
	writeFile(t, other)

	require.NoError(t, p.Delete(audio))

	_, err := os.Stat(other)
	assert.NoError(t, err)
}
