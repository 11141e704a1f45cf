package metadata

import (
	"regexp"
	"strings"
)

var (
	annotationRe = regexp.MustCompile(`(?i)\s*[\(\[][^\)\]]*(?:official|lyrics?|lyric|audio|h[dq]|remaster|music\s*video)[^\)\]]*[\)\]]`)
	officialRe   = regexp.MustCompile(`(?i)\s*official\s*(music\s*)?video`)
	suffixRe     = regexp.MustCompile(`(?i)\s+[-\x{2013}\x{2014}]\s+(?:official\s+)?(?:music\s+)?(?:audio|video|lyric\s+video)\s*$`)
	danglingRe   = regexp.MustCompile(`\s+[-\x{2013}\x{2014}]\s*$`)

	topicSuffixRe   = regexp.MustCompile(`(?i)\s*[-\x{2013}\x{2014}]\s*Topic$`)
	channelSuffixRe = regexp.MustCompile(`(?i)\s*(VEVO|Official|Music)$`)

	// Separator patterns tried in order. Spaces around hyphens are
	// required so compound words like "T-4" don't split.
	separatorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(.+?)\s+--\s+(.+)$`),
		regexp.MustCompile(`^(.+?)\s+[-\x{2013}\x{2014}]\s+(.+)$`),
		regexp.MustCompile(`^(.+?)\s*\|\s*(.+)$`),
	}
)

// CleanTitle strips common annotations from a source-supplied title:
// "(Official Audio)", "[Lyrics]", trailing "- Official Video" and the like.
func CleanTitle(title string) string {
	title = annotationRe.ReplaceAllString(title, "")
	title = officialRe.ReplaceAllString(title, "")
	title = suffixRe.ReplaceAllString(title, "")
	title = danglingRe.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// SplitArtistTitle guesses artist and title from a raw source title string,
// falling back to the uploader/channel as artist. Always yields something.
func SplitArtistTitle(fullTitle, channel string) (artist, title string) {
	if fullTitle == "" {
		fullTitle = "Unknown Title"
	}
	if channel == "" {
		channel = "Unknown Artist"
	}

	for _, pattern := range separatorPatterns {
		match := pattern.FindStringSubmatch(fullTitle)
		if match == nil {
			continue
		}
		cleaned := CleanTitle(match[2])
		// Suffix stripping can nuke the whole title (e.g. "... - Official
		// Video"); treat that split as invalid and keep trying.
		if cleaned != "" {
			return strings.TrimSpace(match[1]), cleaned
		}
	}

	// Fall back to channel as artist, minus common suffixes
	artist = topicSuffixRe.ReplaceAllString(channel, "")
	artist = channelSuffixRe.ReplaceAllString(artist, "")
	artist = strings.TrimSpace(artist)
	if artist == "" {
		artist = "Unknown Artist"
	}

	title = CleanTitle(fullTitle)
	if title == "" {
		title = strings.TrimSpace(fullTitle)
	}
	if title == "" {
		title = "Unknown Title"
	}
	return artist, title
}
