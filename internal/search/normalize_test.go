package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		artist string
		title  string
		want   string
	}{
		{"Daft Punk feat. Pharrell Williams", "Get Lucky (Radio Edit)", "daft punk|get lucky"},
		{"SZA", "Kill Bill [Official Lyric Video]", "sza|kill bill"},
		{"AC/DC", "T.N.T.", "acdc|tnt"},
		{"artist", "title", "artist|title"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.artist, tt.title), "%s - %s", tt.artist, tt.title)
	}
}

func TestNormalizeKeyCaseAndAnnotationInsensitive(t *testing.T) {
	a := NormalizeKey("The Weeknd", "Blinding Lights")
	b := NormalizeKey("the weeknd", "Blinding Lights (Official Audio)")
	assert.Equal(t, a, b)
}

func TestTrackHashStable(t *testing.T) {
	h1 := TrackHash("Daft Punk", "Get Lucky")
	h2 := TrackHash("daft punk feat. Pharrell", "Get Lucky (Radio Edit)")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)

	h3 := TrackHash("Daft Punk", "One More Time")
	assert.NotEqual(t, h1, h3)
}
