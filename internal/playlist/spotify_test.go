package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", ProviderSpotify},
		{"https://open.spotify.com/album/4aawyAB9vmqN3uQ7FjRGTy", ProviderSpotify},
		{"https://www.youtube.com/playlist?list=PLabc_123-xyz", ProviderYouTube},
		{"https://music.youtube.com/playlist?list=OLAK5uy_abc", ProviderYouTube},
		{"https://music.amazon.de/user-playlists/abc123", ProviderAmazon},
		{"https://music.amazon.com/playlists/B0ABC", ProviderAmazon},
	}
	for _, tt := range tests {
		got, err := DetectProvider(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}

	_, err := DetectProvider("https://example.com/playlist/1")
	assert.Error(t, err)
}

func TestParseSpotifyURL(t *testing.T) {
	typ, id, err := parseSpotifyURL("https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=xyz")
	require.NoError(t, err)
	assert.Equal(t, "playlist", typ)
	assert.Equal(t, "37i9dQZF1DXcBWIGoYBM5M", id)

	typ, id, err = parseSpotifyURL("https://open.spotify.com/album/4aawyAB9vmqN3uQ7FjRGTy")
	require.NoError(t, err)
	assert.Equal(t, "album", typ)
	assert.Equal(t, "4aawyAB9vmqN3uQ7FjRGTy", id)
}

func TestParseEmbedHTML(t *testing.T) {
	// First title is the playlist name, first subtitle is "Spotify"
	html := `{"title":"Focus Mix","subtitle":"Spotify",` +
		`"title":"Get Lucky","subtitle":"Daft Punk",` +
		`"title":"Midnight City","subtitle":"M83",` +
		`"title":"Café del Mar","subtitle":"Energy 52"}`

	list, err := parseEmbedHTML(html, "playlist")
	require.NoError(t, err)

	assert.Equal(t, "Focus Mix", list.Name)
	require.Len(t, list.Tracks, 3)
	assert.Equal(t, Track{Artist: "Daft Punk", Title: "Get Lucky"}, list.Tracks[0])
	assert.Equal(t, "Café del Mar", list.Tracks[2].Title)
}

func TestParseEmbedHTMLEmpty(t *testing.T) {
	_, err := parseEmbedHTML(`{"title":"Empty List","subtitle":"Spotify"}`, "playlist")
	assert.Error(t, err)
}

func TestBrowserResultToTracklist(t *testing.T) {
	result := &browserResult{
		Success:      true,
		PlaylistName: "Big List",
		Tracks:       []string{"Daft Punk - Get Lucky", "NoSeparatorTitle"},
	}

	list := browserResultToTracklist(result, "fallback")
	assert.Equal(t, "Big List", list.Name)
	require.Len(t, list.Tracks, 2)
	assert.Equal(t, Track{Artist: "Daft Punk", Title: "Get Lucky"}, list.Tracks[0])
	assert.Equal(t, Track{Artist: "Unknown", Title: "NoSeparatorTitle"}, list.Tracks[1])
}
