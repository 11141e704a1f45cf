package playlist

import (
	"context"
	"fmt"
	"regexp"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/source/ytdlp"
	"go.uber.org/zap"
)

// Supported playlist providers.
const (
	ProviderSpotify = "spotify"
	ProviderYouTube = "youtube"
	ProviderAmazon  = "amazon"
)

// Track is one playlist entry, already split into artist and title.
type Track struct {
	Artist string
	Title  string
}

// Tracklist is the result of one playlist fetch. Warning carries a
// non-fatal condition such as an embed truncation the caller should
// surface but not fail on.
type Tracklist struct {
	Name    string
	Tracks  []Track
	Warning string
}

var (
	spotifyPlaylistRe = regexp.MustCompile(`^https?://open\.spotify\.com/playlist/([a-zA-Z0-9]+)`)
	spotifyAlbumRe    = regexp.MustCompile(`^https?://open\.spotify\.com/album/([a-zA-Z0-9]+)`)
	youtubeRe         = regexp.MustCompile(`^https?://(www\.|music\.)?(youtube\.com|youtu\.be)/playlist\?list=([a-zA-Z0-9_-]+)`)
	amazonRe          = regexp.MustCompile(`^https?://music\.amazon\.[a-z.]+/(user-playlists|playlists)/\S+`)
)

// DetectProvider classifies a playlist URL.
func DetectProvider(url string) (string, error) {
	switch {
	case spotifyPlaylistRe.MatchString(url), spotifyAlbumRe.MatchString(url):
		return ProviderSpotify, nil
	case youtubeRe.MatchString(url):
		return ProviderYouTube, nil
	case amazonRe.MatchString(url):
		return ProviderAmazon, nil
	}
	return "", fmt.Errorf("unsupported playlist URL %q", url)
}

// Service fetches tracklists from any supported provider.
type Service struct {
	spotify *SpotifyFetcher
	ytdlp   *ytdlp.Client
	cfg     *config.SchedulerConfig
	logger  *zap.Logger
}

func NewService(cfg *config.SchedulerConfig, ytdlpClient *ytdlp.Client, logger *zap.Logger) *Service {
	return &Service{
		spotify: NewSpotifyFetcher(cfg, logger),
		ytdlp:   ytdlpClient,
		cfg:     cfg,
		logger:  logger,
	}
}

// FetchTracklist fetches the current state of a hosted playlist.
func (s *Service) FetchTracklist(ctx context.Context, url, provider string) (*Tracklist, error) {
	switch provider {
	case ProviderSpotify:
		return s.spotify.Fetch(ctx, url)
	case ProviderYouTube:
		return s.fetchYouTube(ctx, url)
	case ProviderAmazon:
		return s.fetchAmazon(ctx, url)
	}
	return nil, fmt.Errorf("unsupported provider %q", provider)
}

func (s *Service) fetchYouTube(ctx context.Context, url string) (*Tracklist, error) {
	m := youtubeRe.FindStringSubmatch(url)
	if m == nil {
		return nil, fmt.Errorf("invalid playlist URL %q: no list parameter", url)
	}
	canonical := "https://www.youtube.com/playlist?list=" + m[3]

	entries, name, err := s.ytdlp.FetchPlaylist(ctx, canonical)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "YouTube Playlist"
	}

	tracks := make([]Track, 0, len(entries))
	for _, e := range entries {
		tracks = append(tracks, Track{Artist: e.Artist, Title: e.Title})
	}
	return &Tracklist{Name: name, Tracks: tracks}, nil
}

// Amazon has no scrapeable fast path; the headless browser is the only way.
func (s *Service) fetchAmazon(ctx context.Context, url string) (*Tracklist, error) {
	result, err := runBrowserFetch(ctx, s.cfg, map[string]string{"AMAZON_URL": url}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("amazon playlist fetch failed: %w", err)
	}
	return browserResultToTracklist(result, "Amazon Playlist"), nil
}
