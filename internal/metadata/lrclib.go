package metadata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const lrclibBaseURL = "https://lrclib.net"

// LyricsClient fetches lyrics from LRClib. Lyrics are a nice-to-have;
// every failure here is swallowed by the caller.
type LyricsClient struct {
	client *resty.Client
	logger *zap.Logger
}

func NewLyricsClient(cfg *config.MetadataConfig, logger *zap.Logger) *LyricsClient {
	client := resty.New().
		SetTimeout(cfg.LookupTimeout).
		SetHeader("User-Agent", userAgent)

	return &LyricsClient{
		client: client,
		logger: logger,
	}
}

type lrclibResult struct {
	SyncedLyrics string `json:"syncedLyrics"`
	PlainLyrics  string `json:"plainLyrics"`
}

// Fetch looks up lyrics by exact track coordinates, falling back to a
// free-text search. Synced lyrics win over plain when both exist.
func (c *LyricsClient) Fetch(ctx context.Context, artist, title, album string, duration int) (string, error) {
	params := map[string]string{
		"artist_name": artist,
		"track_name":  title,
	}
	if album != "" {
		params["album_name"] = album
	}
	if duration > 0 {
		params["duration"] = strconv.Itoa(duration)
	}

	var result lrclibResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&result).
		Get(lrclibBaseURL + "/api/get")

	if err != nil {
		return "", fmt.Errorf("lrclib get failed: %w", err)
	}

	if resp.StatusCode() == 200 {
		if lyrics := pickLyrics(result); lyrics != "" {
			return lyrics, nil
		}
	}

	// Exact lookup missed; try free-text search
	var results []lrclibResult
	resp, err = c.client.R().
		SetContext(ctx).
		SetQueryParam("q", artist+" "+title).
		SetResult(&results).
		Get(lrclibBaseURL + "/api/search")

	if err != nil {
		return "", fmt.Errorf("lrclib search failed: %w", err)
	}
	if resp.StatusCode() != 200 || len(results) == 0 {
		return "", nil
	}

	lyrics := pickLyrics(results[0])
	if lyrics != "" {
		c.logger.Debug("lyrics found via search",
			zap.String("artist", artist),
			zap.String("title", title))
	}
	return lyrics, nil
}

func pickLyrics(r lrclibResult) string {
	if r.SyncedLyrics != "" {
		return r.SyncedLyrics
	}
	return r.PlainLyrics
}
