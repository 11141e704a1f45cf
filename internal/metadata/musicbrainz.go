package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	musicbrainzSearchURL = "https://musicbrainz.org/ws/2/recording/"
	userAgent            = "MusicGrabber/2.0 (https://github.com/cvlogg/musicgrabber2)"
)

// MusicBrainzClient searches the MusicBrainz bibliographic database by
// title/artist text.
type MusicBrainzClient struct {
	cfg    *config.MetadataConfig
	client *resty.Client
	logger *zap.Logger
}

func NewMusicBrainzClient(cfg *config.MetadataConfig, logger *zap.Logger) *MusicBrainzClient {
	client := resty.New().
		SetTimeout(cfg.LookupTimeout).
		SetHeader("User-Agent", userAgent)

	return &MusicBrainzClient{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

type mbSearchResponse struct {
	Recordings []struct {
		Score        int    `json:"score"`
		Title        string `json:"title"`
		ArtistCredit []struct {
			Name string `json:"name"`
		} `json:"artist-credit"`
		Releases []struct {
			Title string `json:"title"`
			Date  string `json:"date"`
		} `json:"releases"`
	} `json:"recordings"`
}

// Search runs a text lookup and returns the best textual match with its
// MusicBrainz score (0-100); the caller applies the similarity bar.
func (c *MusicBrainzClient) Search(ctx context.Context, artist, title string) (*Match, int, error) {
	query := fmt.Sprintf(`recording:%q AND artist:%q`, title, artist)

	var result mbSearchResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query": query,
			"fmt":   "json",
			"limit": "5",
		}).
		SetResult(&result).
		Get(musicbrainzSearchURL)

	if err != nil {
		return nil, 0, fmt.Errorf("musicbrainz search failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, 0, fmt.Errorf("musicbrainz search: unexpected status code: %d", resp.StatusCode())
	}
	if len(result.Recordings) == 0 {
		return nil, 0, nil
	}

	best := result.Recordings[0]
	match := &Match{Title: best.Title}
	if len(best.ArtistCredit) > 0 {
		match.Artist = best.ArtistCredit[0].Name
	}
	if len(best.Releases) > 0 {
		match.Album = best.Releases[0].Title
		match.Year = yearFromDate(best.Releases[0].Date)
	}

	c.logger.Debug("musicbrainz match",
		zap.String("title", match.Title),
		zap.String("artist", match.Artist),
		zap.Int("score", best.Score))

	return match, best.Score, nil
}

func yearFromDate(date string) int {
	parts := strings.SplitN(date, "-", 2)
	if len(parts) == 0 || len(parts[0]) != 4 {
		return 0
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	return year
}
