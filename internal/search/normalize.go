package search

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	featTrailingRe = regexp.MustCompile(`\s*(feat\.?|ft\.?|featuring)\s+.*$`)
	featBeforeSep  = regexp.MustCompile(`\s*(feat\.?|ft\.?|featuring)\s+[^|]*\|`)
	bracketedRe    = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)
	punctRe        = regexp.MustCompile(`[^\w\s|]`)
	spacesRe       = regexp.MustCompile(`\s+`)
)

// NormalizeKey collapses artist/title into the canonical exclusivity key.
//
//	"Daft Punk feat. Pharrell Williams", "Get Lucky (Radio Edit)"
//	    -> "daft punk|get lucky"
func NormalizeKey(artist, title string) string {
	text := strings.ToLower(artist + "|" + title)
	text = featBeforeSep.ReplaceAllString(text, "|")
	text = featTrailingRe.ReplaceAllString(text, "")
	text = bracketedRe.ReplaceAllString(text, "")
	text = punctRe.ReplaceAllString(text, "")
	text = spacesRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// TrackHash is the stable identity used in watched-playlist seen sets.
func TrackHash(artist, title string) string {
	sum := sha256.Sum256([]byte(NormalizeKey(artist, title)))
	return hex.EncodeToString(sum[:])[:16]
}
