package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const acoustidLookupURL = "https://api.acoustid.org/v2/lookup"

// AcoustIDClient identifies an audio artifact by acoustic fingerprint:
// fpcalc computes the fingerprint, the AcoustID web service matches it.
type AcoustIDClient struct {
	cfg    *config.MetadataConfig
	client *resty.Client
	logger *zap.Logger
}

func NewAcoustIDClient(cfg *config.MetadataConfig, logger *zap.Logger) *AcoustIDClient {
	client := resty.New().
		SetTimeout(cfg.LookupTimeout).
		SetHeader("User-Agent", userAgent)

	return &AcoustIDClient{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

type fpcalcOutput struct {
	Duration    float64 `json:"duration"`
	Fingerprint string  `json:"fingerprint"`
}

// fingerprint runs fpcalc over the artifact.
func (c *AcoustIDClient) fingerprint(ctx context.Context, path string) (*fpcalcOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FpcalcTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "fpcalc", "-json", path)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("fpcalc failed: %w", err)
	}

	var out fpcalcOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("parse fpcalc output: %w", err)
	}
	if out.Fingerprint == "" {
		return nil, fmt.Errorf("fpcalc produced empty fingerprint")
	}
	return &out, nil
}

type acoustidResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Score      float64 `json:"score"`
		Recordings []struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Releases []struct {
				Title string `json:"title"`
				Date  struct {
					Year int `json:"year"`
				} `json:"date"`
			} `json:"releases"`
		} `json:"recordings"`
	} `json:"results"`
}

// Identify fingerprints the artifact and queries AcoustID. Returns the best
// match and its confidence; the caller applies the confidence gate.
func (c *AcoustIDClient) Identify(ctx context.Context, path string) (*Match, float64, error) {
	fp, err := c.fingerprint(ctx, path)
	if err != nil {
		return nil, 0, err
	}

	var result acoustidResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client":      c.cfg.AcoustIDAPIKey,
			"meta":        "recordings releases",
			"duration":    strconv.Itoa(int(fp.Duration)),
			"fingerprint": fp.Fingerprint,
		}).
		SetResult(&result).
		Get(acoustidLookupURL)

	if err != nil {
		return nil, 0, fmt.Errorf("acoustid lookup failed: %w", err)
	}
	if resp.StatusCode() != 200 || result.Status != "ok" {
		return nil, 0, fmt.Errorf("acoustid lookup: status %d (%s)", resp.StatusCode(), result.Status)
	}
	if len(result.Results) == 0 {
		return nil, 0, nil
	}

	best := result.Results[0]
	for _, r := range result.Results[1:] {
		if r.Score > best.Score {
			best = r
		}
	}
	if len(best.Recordings) == 0 {
		return nil, best.Score, nil
	}

	rec := best.Recordings[0]
	match := &Match{Title: rec.Title}
	if len(rec.Artists) > 0 {
		match.Artist = rec.Artists[0].Name
	}
	if len(rec.Releases) > 0 {
		match.Album = rec.Releases[0].Title
		match.Year = rec.Releases[0].Date.Year
	}

	c.logger.Debug("acoustid match",
		zap.String("title", match.Title),
		zap.String("artist", match.Artist),
		zap.Float64("score", best.Score))

	return match, best.Score, nil
}
