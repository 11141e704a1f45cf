package playlist

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const embedBrowserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	titleFieldRe    = regexp.MustCompile(`"title":"([^"]+)"`)
	subtitleFieldRe = regexp.MustCompile(`"subtitle":"([^"]+)"`)
)

// SpotifyFetcher scrapes embed pages. The public playlist API is gone, but
// the embed HTML carries a predictable title/subtitle JSON pattern. The
// embed caps out around 100 tracks, so near the cap the headless browser
// takes over for the full list. If the scrape breaks, inspect the embed
// HTML for renamed fields or a new data blob.
type SpotifyFetcher struct {
	client *resty.Client
	cfg    *config.SchedulerConfig
	logger *zap.Logger
}

func NewSpotifyFetcher(cfg *config.SchedulerConfig, logger *zap.Logger) *SpotifyFetcher {
	client := resty.New().
		SetTimeout(cfg.FetchTimeout).
		SetHeader("User-Agent", embedBrowserUA).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &SpotifyFetcher{client: client, cfg: cfg, logger: logger}
}

// Fetch returns the current tracklist of a Spotify playlist or album.
func (f *SpotifyFetcher) Fetch(ctx context.Context, url string) (*Tracklist, error) {
	spotifyType, spotifyID, err := parseSpotifyURL(url)
	if err != nil {
		return nil, err
	}

	list, err := f.fetchEmbed(ctx, spotifyType, spotifyID)
	if err != nil {
		return nil, err
	}

	if len(list.Tracks) < f.cfg.EmbedTrackLimit {
		return list, nil
	}

	// Near the embed cap the list is almost certainly truncated
	f.logger.Info("embed near track limit, trying headless browser",
		zap.String("spotify_id", spotifyID),
		zap.Int("embed_tracks", len(list.Tracks)))

	result, browserErr := runBrowserFetch(ctx, f.cfg, map[string]string{
		"SPOTIFY_TYPE": spotifyType,
		"SPOTIFY_ID":   spotifyID,
	}, f.logger)
	if browserErr == nil && len(result.Tracks) > len(list.Tracks) {
		return browserResultToTracklist(result, list.Name), nil
	}

	if browserErr != nil {
		f.logger.Warn("headless browser fetch failed, keeping embed results", zap.Error(browserErr))
		list.Warning = fmt.Sprintf("playlist truncated at %d tracks, headless browser failed: %v",
			len(list.Tracks), browserErr)
	} else {
		list.Warning = fmt.Sprintf("playlist truncated at %d tracks", len(list.Tracks))
	}
	return list, nil
}

func parseSpotifyURL(url string) (spotifyType, spotifyID string, err error) {
	if m := spotifyPlaylistRe.FindStringSubmatch(url); m != nil {
		return "playlist", m[1], nil
	}
	if m := spotifyAlbumRe.FindStringSubmatch(url); m != nil {
		return "album", m[1], nil
	}
	return "", "", fmt.Errorf("invalid spotify URL %q: expected playlist or album", url)
}

func (f *SpotifyFetcher) fetchEmbed(ctx context.Context, spotifyType, spotifyID string) (*Tracklist, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("https://open.spotify.com/embed/%s/%s", spotifyType, spotifyID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spotify embed: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("spotify %s %s not found or private", spotifyType, spotifyID)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("spotify embed returned status %d", resp.StatusCode())
	}

	return parseEmbedHTML(resp.String(), spotifyType)
}

// parseEmbedHTML extracts tracks from the title/subtitle field pairs. The
// first title is the playlist name; the first subtitle is "Spotify".
func parseEmbedHTML(html, spotifyType string) (*Tracklist, error) {
	titles := titleFieldRe.FindAllStringSubmatch(html, -1)
	subtitles := subtitleFieldRe.FindAllStringSubmatch(html, -1)

	name := "Spotify Playlist"
	if spotifyType == "album" {
		name = "Spotify Album"
	}
	if len(titles) > 0 {
		name = unescapeJSONString(titles[0][1])
	}

	if len(titles) < 2 || len(subtitles) < 2 {
		return nil, fmt.Errorf("could not extract tracks from spotify %s: empty or changed page structure", spotifyType)
	}

	var tracks []Track
	for i := 1; i < len(titles) && i < len(subtitles); i++ {
		tracks = append(tracks, Track{
			Artist: unescapeJSONString(subtitles[i][1]),
			Title:  unescapeJSONString(titles[i][1]),
		})
	}

	return &Tracklist{Name: name, Tracks: tracks}, nil
}

// Field values arrive with JSON escapes still in place (& and friends).
func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
