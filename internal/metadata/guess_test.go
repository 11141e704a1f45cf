package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Kill Bill [Official Lyric Video]", "Kill Bill"},
		{"Get Lucky (Official Audio)", "Get Lucky"},
		{"Song Title - Official Music Video", "Song Title"},
		{"Track (2011 Remaster)", "Track"},
		{"Plain Title", "Plain Title"},
		{"Dangling -", "Dangling"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTitle(tt.in), "input %q", tt.in)
	}
}

func TestSplitArtistTitleSeparators(t *testing.T) {
	tests := []struct {
		fullTitle  string
		channel    string
		wantArtist string
		wantTitle  string
	}{
		{"Artist -- Title", "chan", "Artist", "Title"},
		{"Artist - Title", "chan", "Artist", "Title"},
		{"Artist – Title", "chan", "Artist", "Title"},
		{"Artist — Title", "chan", "Artist", "Title"},
		{"Artist | Title", "chan", "Artist", "Title"},
		{"Artist - Title (Official Video)", "chan", "Artist", "Title"},
	}
	for _, tt := range tests {
		artist, title := SplitArtistTitle(tt.fullTitle, tt.channel)
		assert.Equal(t, tt.wantArtist, artist, "input %q", tt.fullTitle)
		assert.Equal(t, tt.wantTitle, title, "input %q", tt.fullTitle)
	}
}

func TestSplitArtistTitleNoSplitOnCompoundWords(t *testing.T) {
	// No spaces around the hyphen: must not split "T-4"
	artist, title := SplitArtistTitle("T-4 Anthem", "SomeChannel")
	assert.Equal(t, "SomeChannel", artist)
	assert.Equal(t, "T-4 Anthem", title)
}

func TestSplitArtistTitleChannelFallback(t *testing.T) {
	artist, title := SplitArtistTitle("Blinding Lights", "The Weeknd - Topic")
	assert.Equal(t, "The Weeknd", artist)
	assert.Equal(t, "Blinding Lights", title)

	artist, _ = SplitArtistTitle("Some Song", "ArtistVEVO")
	assert.Equal(t, "Artist", artist)
}

func TestSplitArtistTitleSuffixOnlyTitleRejectsSplit(t *testing.T) {
	// Stripping "Official Video" would leave an empty title; the split is
	// invalid and the channel fallback kicks in.
	artist, title := SplitArtistTitle("My Song - Official Video", "UploaderName")
	assert.Equal(t, "UploaderName", artist)
	assert.Equal(t, "My Song", title)
}

func TestSplitArtistTitleEmptyInputs(t *testing.T) {
	artist, title := SplitArtistTitle("", "")
	assert.Equal(t, "Unknown Artist", artist)
	assert.Equal(t, "Unknown Title", title)
}
