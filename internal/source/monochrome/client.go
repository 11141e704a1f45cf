package monochrome

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Quality bonuses on top of the base score. Lossless here is genuine,
// unlike extraction sources where "FLAC" is a lossy-to-lossless transcode,
// so the bonus has to be hefty enough to float above title-stuffed hits.
var qualityBonuses = map[string]int{
	"HI_RES_LOSSLESS": 120,
	"LOSSLESS":        100,
	"HIGH":            30,
}

const baseScore = 40

// Client searches and resolves tracks through a Monochrome/Tidal API
// instance, which serves verified lossless catalogue data.
type Client struct {
	cfg    *config.MonochromeConfig
	client *resty.Client
	logger *zap.Logger
}

func NewClient(cfg *config.MonochromeConfig, logger *zap.Logger) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount)

	return &Client{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

func (c *Client) Tag() search.SourceTag {
	return search.SourceCatalogue
}

type searchResponse struct {
	Data struct {
		Items []trackItem `json:"items"`
	} `json:"data"`
}

type trackItem struct {
	ID           json.Number `json:"id"`
	Title        string      `json:"title"`
	Duration     int         `json:"duration"`
	AudioQuality string      `json:"audioQuality"`
	Popularity   int         `json:"popularity"`
	StreamReady  bool        `json:"streamReady"`
	Artist       struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		ID    json.Number `json:"id"`
		Title string      `json:"title"`
		Cover string      `json:"cover"`
	} `json:"album"`
	ReleaseDate string `json:"releaseDate"`
}

// Search queries the catalogue for tracks matching a free-text query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]search.Candidate, error) {
	var result searchResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("s", query).
		SetResult(&result).
		Get(c.cfg.BaseURL + "/search/")

	if err != nil {
		return nil, fmt.Errorf("catalogue search failed: %w", err)
	}
	if resp.StatusCode() == 429 {
		return nil, fmt.Errorf("catalogue search: %w", search.ErrRateLimited)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("catalogue search: unexpected status code: %d", resp.StatusCode())
	}

	var candidates []search.Candidate
	for _, item := range result.Data.Items {
		if !item.StreamReady {
			continue
		}

		tier := tierForQuality(item.AudioQuality)
		score := baseScore + qualityBonuses[item.AudioQuality]
		// Popularity tiebreaker, capped at 15
		if p := item.Popularity / 10; p > 0 {
			if p > 15 {
				p = 15
			}
			score += p
		}

		candidates = append(candidates, search.Candidate{
			Source:     search.SourceCatalogue,
			ExternalID: item.ID.String(),
			URL:        "https://monochrome.tf/track/" + item.ID.String(),
			Title:      item.Title,
			Artist:     item.Artist.Name,
			Album:      item.Album.Title,
			AlbumID:    item.Album.ID.String(),
			Year:       yearFromReleaseDate(item.ReleaseDate),
			CoverURL:   c.CoverURL(item.Album.Cover),
			Duration:   item.Duration,
			Tier:       tier,
			Score:      score,
		})
	}

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	c.logger.Debug("catalogue search done",
		zap.String("query", query),
		zap.Int("results", len(candidates)))

	return candidates, nil
}

type playbackResponse struct {
	Data struct {
		Manifest     string `json:"manifest"`
		BitDepth     int    `json:"bitDepth"`
		SampleRate   int    `json:"sampleRate"`
		AudioQuality string `json:"audioQuality"`
	} `json:"data"`
}

type manifest struct {
	URLs     []string `json:"urls"`
	MimeType string   `json:"mimeType"`
	Codecs   string   `json:"codecs"`
}

// Resolve fetches the stream manifest and returns the direct CDN URL.
func (c *Client) Resolve(ctx context.Context, cand search.Candidate) (*search.StreamDescriptor, error) {
	var result playbackResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"id":      cand.ExternalID,
			"quality": "LOSSLESS",
		}).
		SetResult(&result).
		Get(c.cfg.BaseURL + "/track/")

	if err != nil {
		return nil, fmt.Errorf("manifest fetch failed: %w", err)
	}
	switch resp.StatusCode() {
	case 200:
	case 404:
		return nil, fmt.Errorf("track %s: %w", cand.ExternalID, search.ErrContentUnavailable)
	case 429:
		return nil, fmt.Errorf("manifest fetch: %w", search.ErrRateLimited)
	default:
		return nil, fmt.Errorf("manifest fetch: unexpected status code: %d", resp.StatusCode())
	}

	if result.Data.Manifest == "" {
		return nil, fmt.Errorf("track %s: no stream manifest: %w", cand.ExternalID, search.ErrContentUnavailable)
	}

	raw, err := base64.StdEncoding.DecodeString(result.Data.Manifest)
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.URLs) == 0 {
		return nil, fmt.Errorf("track %s: empty manifest url list: %w", cand.ExternalID, search.ErrContentUnavailable)
	}

	mimeType := m.MimeType
	if mimeType == "" {
		mimeType = "audio/flac"
	}
	codec := m.Codecs
	if codec == "" {
		codec = "flac"
	}

	return &search.StreamDescriptor{
		Direct:   m.URLs[0],
		MimeType: mimeType,
		Codec:    codec,
	}, nil
}

// CoverURL turns a Tidal cover UUID into a CDN thumbnail URL. UUIDs come
// as 'ccc50c5e-b347-...' and split into path segments on the image CDN.
func (c *Client) CoverURL(coverUUID string) string {
	if coverUUID == "" {
		return ""
	}
	return c.cfg.CoverBase + "/" + strings.ReplaceAll(coverUUID, "-", "/") + "/320x320.jpg"
}

// DownloadCover fetches the cover image bytes for embedding.
func (c *Client) DownloadCover(ctx context.Context, coverURL string) ([]byte, error) {
	if coverURL == "" {
		return nil, nil
	}

	resp, err := c.client.R().SetContext(ctx).Get(coverURL)
	if err != nil {
		return nil, fmt.Errorf("cover download failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("cover download: unexpected status code: %d", resp.StatusCode())
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("empty cover response")
	}
	return resp.Body(), nil
}

func tierForQuality(quality string) search.QualityTier {
	switch quality {
	case "HI_RES_LOSSLESS":
		return search.TierHiRes
	case "LOSSLESS":
		return search.TierLossless
	default:
		return search.TierLossy
	}
}

func yearFromReleaseDate(date string) int {
	if len(date) < 4 {
		return 0
	}
	var year int
	if _, err := fmt.Sscanf(date[:4], "%d", &year); err != nil {
		return 0
	}
	return year
}
