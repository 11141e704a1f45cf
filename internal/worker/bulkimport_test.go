package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanImportLine(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1. Daft Punk - Get Lucky", "Daft Punk - Get Lucky"},
		{"12) Daft Punk - Around the World", "Daft Punk - Around the World"},
		{"01. Justice - Genesis", "Justice - Genesis"},
		{"• Burial - Archangel", "Burial - Archangel"},
		{"- Aphex Twin - Windowlicker", "Aphex Twin - Windowlicker"},
		{"* Boards of Canada - Roygbiv", "Boards of Canada - Roygbiv"},
		{"♫ Moderat - A New Error ♫", "Moderat - A New Error"},
		{"  Four   Tet\t-\tAngel Echoes  ", "Four Tet - Angel Echoes"},
		{"# my favourites from 2013", ""},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanImportLine(tc.in), "input %q", tc.in)
	}
}

func TestParseImportLine(t *testing.T) {
	artist, title := ParseImportLine("Daft Punk - Get Lucky")
	assert.Equal(t, "Daft Punk", artist)
	assert.Equal(t, "Get Lucky", title)

	// First separator wins for hyphenated titles
	artist, title = ParseImportLine("Orbital - Halcyon - On and On")
	assert.Equal(t, "Orbital", artist)
	assert.Equal(t, "Halcyon - On and On", title)

	// No separator: the whole line is the query
	artist, title = ParseImportLine("Windowlicker")
	assert.Equal(t, "", artist)
	assert.Equal(t, "Windowlicker", title)
}

func TestParseImportText(t *testing.T) {
	text := "# paste from a forum post\n1. Daft Punk - Get Lucky\n\n2. Burial - Archangel\nnot a real line but still a query\n"

	tracks := ParseImportText(text)
	assert.Len(t, tracks, 3)

	assert.Equal(t, 2, tracks[0].LineNum)
	assert.Equal(t, "Daft Punk", tracks[0].Artist)
	assert.Equal(t, "Get Lucky", tracks[0].Title)

	assert.Equal(t, "Burial", tracks[1].Artist)

	assert.Equal(t, "", tracks[2].Artist)
	assert.Equal(t, "not a real line but still a query", tracks[2].Title)
	for _, track := range tracks {
		assert.Equal(t, "pending", track.Status)
	}
}
