package slskd

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client talks to a slskd daemon. The daemon owns the peer transport; we
// locate finished transfers by the {downloads_path}/{username}/{filename}
// convention rather than moving bytes ourselves.
type Client struct {
	cfg    *config.SlskdConfig
	client *resty.Client
	logger *zap.Logger

	mu    sync.Mutex
	token string
}

func NewClient(cfg *config.SlskdConfig, logger *zap.Logger) *Client {
	client := resty.New().
		SetTimeout(cfg.APITimeout)

	return &Client{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

func (c *Client) Tag() search.SourceTag {
	return search.SourcePeer
}

// login obtains a session token, cached until a request is rejected.
func (c *Client) login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	var result struct {
		Token string `json:"token"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"username": c.cfg.Username,
			"password": c.cfg.Password,
		}).
		SetResult(&result).
		Post(c.cfg.BaseURL + "/api/v0/session")

	if err != nil {
		return "", fmt.Errorf("slskd login failed: %w", err)
	}
	if resp.StatusCode() != 200 || result.Token == "" {
		return "", fmt.Errorf("slskd login rejected: status %d", resp.StatusCode())
	}

	c.token = result.Token
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) authed(ctx context.Context) (*resty.Request, error) {
	token, err := c.login(ctx)
	if err != nil {
		return nil, err
	}
	return c.client.R().SetContext(ctx).SetAuthToken(token), nil
}

type searchFile struct {
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	BitRate    int    `json:"bitRate"`
	SampleRate int    `json:"sampleRate"`
	BitDepth   int    `json:"bitDepth"`
	Length     int    `json:"length"`
	IsLocked   bool   `json:"isLocked"`
}

type searchResponseEntry struct {
	Username          string       `json:"username"`
	HasFreeUploadSlot bool         `json:"hasFreeUploadSlot"`
	UploadSpeed       int          `json:"uploadSpeed"`
	Files             []searchFile `json:"files"`
}

// Search initiates a peer search, polls until complete (or the deadline
// hits), and scores the responded files.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]search.Candidate, error) {
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}

	searchID := uuid.New().String()
	var created struct {
		ID string `json:"id"`
	}
	resp, err := req.
		SetBody(map[string]interface{}{
			"id":         searchID,
			"searchText": query,
		}).
		SetResult(&created).
		Post(c.cfg.BaseURL + "/api/v0/searches")

	if err != nil {
		return nil, fmt.Errorf("peer search start failed: %w", err)
	}
	if resp.StatusCode() == 401 {
		c.invalidateToken()
		return nil, fmt.Errorf("peer search start: session expired")
	}
	if resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("peer search start: unexpected status code: %d", resp.StatusCode())
	}
	if created.ID != "" {
		searchID = created.ID
	}
	defer c.deleteSearch(searchID)

	// Poll until the daemon reports completion or the timeout expires.
	// A partially complete search still yields usable responses.
	deadline := time.Now().Add(c.cfg.SearchTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}

		var status struct {
			IsComplete    bool `json:"isComplete"`
			FileCount     int  `json:"fileCount"`
			ResponseCount int  `json:"responseCount"`
		}
		req, err := c.authed(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := req.SetResult(&status).Get(c.cfg.BaseURL + "/api/v0/searches/" + searchID); err != nil {
			return nil, fmt.Errorf("peer search poll failed: %w", err)
		}
		if status.IsComplete {
			break
		}
	}

	req, err = c.authed(ctx)
	if err != nil {
		return nil, err
	}
	var responses []searchResponseEntry
	if _, err := req.SetResult(&responses).Get(c.cfg.BaseURL + "/api/v0/searches/" + searchID + "/responses"); err != nil {
		return nil, fmt.Errorf("peer search responses failed: %w", err)
	}

	var candidates []search.Candidate
	for _, entry := range responses {
		if c.cfg.RequireFreeSlot && !entry.HasFreeUploadSlot {
			continue
		}
		for _, file := range entry.Files {
			if file.IsLocked {
				continue
			}
			score, tier, bitrate := scoreFile(file)
			if score < c.cfg.MinQualityScore {
				continue
			}

			base := peerBasename(file.Filename)
			artist, title := splitPeerFilename(base)

			candidates = append(candidates, search.Candidate{
				Source:     search.SourcePeer,
				ExternalID: entry.Username + ":" + base,
				Title:      title,
				Artist:     artist,
				Uploader:   entry.Username,
				Duration:   file.Length,
				Tier:       tier,
				Bitrate:    bitrate,
				Score:      score,
				PeerUser:   entry.Username,
				PeerFile:   file.Filename,
			})
		}
	}

	if limit <= 0 || limit > c.cfg.MaxResults {
		limit = c.cfg.MaxResults
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	c.logger.Debug("peer search done",
		zap.String("query", query),
		zap.Int("results", len(candidates)))

	return candidates, nil
}

func (c *Client) deleteSearch(searchID string) {
	req, err := c.authed(context.Background())
	if err != nil {
		return
	}
	if _, err := req.Delete(c.cfg.BaseURL + "/api/v0/searches/" + searchID); err != nil {
		c.logger.Debug("failed to delete peer search", zap.String("id", searchID), zap.Error(err))
	}
}

// Resolve enqueues the transfer with the peer daemon. The actual bytes
// arrive later under the downloads path convention.
func (c *Client) Resolve(ctx context.Context, cand search.Candidate) (*search.StreamDescriptor, error) {
	if cand.PeerUser == "" || cand.PeerFile == "" {
		return nil, fmt.Errorf("candidate %s missing peer coordinates: %w", cand.ExternalID, search.ErrContentUnavailable)
	}

	if err := c.enqueueTransfer(ctx, cand.PeerUser, cand.PeerFile); err != nil {
		return nil, err
	}

	return &search.StreamDescriptor{
		PeerUser: cand.PeerUser,
		PeerFile: cand.PeerFile,
	}, nil
}

func (c *Client) enqueueTransfer(ctx context.Context, username, filename string) error {
	req, err := c.authed(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetBody([]map[string]interface{}{
			{"filename": filename},
		}).
		Post(c.cfg.BaseURL + "/api/v0/transfers/downloads/" + username)

	if err != nil {
		return fmt.Errorf("peer transfer enqueue failed: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("peer transfer enqueue: unexpected status code: %d", resp.StatusCode())
	}
	return nil
}

type transferFile struct {
	Filename        string  `json:"filename"`
	State           string  `json:"state"`
	PercentComplete float64 `json:"percentComplete"`
}

type transferDirectory struct {
	Files []transferFile `json:"files"`
}

type userTransfers struct {
	Directories []transferDirectory `json:"directories"`
}

// WaitForDownload polls the daemon until the transfer finishes and returns
// the local file path. Aborted transfers are re-queued a bounded number of
// times; exceeding that is a hard failure.
func (c *Client) WaitForDownload(ctx context.Context, username, filename string, progress func(pct int)) (string, error) {
	targetNorm := normalizePath(filename)
	targetBase := path.Base(targetNorm)
	requeues := 0

	deadline := time.Now().Add(c.cfg.DownloadTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}

		req, err := c.authed(ctx)
		if err != nil {
			return "", err
		}
		var transfers userTransfers
		if _, err := req.SetResult(&transfers).Get(c.cfg.BaseURL + "/api/v0/transfers/downloads/" + username); err != nil {
			c.logger.Warn("peer transfer poll failed", zap.Error(err))
			continue
		}

		for _, dir := range transfers.Directories {
			for _, dl := range dir.Files {
				dlNorm := normalizePath(dl.Filename)
				if dlNorm != targetNorm && path.Base(dlNorm) != targetBase {
					continue
				}

				state := dl.State
				if progress != nil {
					progress(int(dl.PercentComplete))
				}

				switch {
				case strings.Contains(state, "Succeeded"):
					return c.LocalPath(username, filename), nil
				case strings.Contains(state, "Aborted"),
					strings.Contains(state, "Cancelled"),
					strings.Contains(state, "Errored"):
					requeues++
					if requeues > c.cfg.MaxRequeues {
						return "", fmt.Errorf("peer transfer aborted %d times: %w", requeues, search.ErrContentUnavailable)
					}
					c.logger.Warn("peer transfer aborted, re-queueing",
						zap.String("file", targetBase),
						zap.Int("attempt", requeues))
					if err := c.enqueueTransfer(ctx, username, filename); err != nil {
						return "", err
					}
				}
			}
		}
	}

	return "", fmt.Errorf("peer transfer timed out after %s", c.cfg.DownloadTimeout)
}

// LocalPath maps a finished transfer onto the daemon's downloads directory.
func (c *Client) LocalPath(username, filename string) string {
	base := peerBasename(filename)
	return filepath.Join(c.cfg.DownloadsPath, username, base)
}

// Peer filenames come with Windows separators from remote shares.
func normalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func peerBasename(p string) string {
	return path.Base(normalizePath(p))
}

// scoreFile rates a shared file by format and declared quality.
func scoreFile(f searchFile) (score int, tier search.QualityTier, bitrate int) {
	lower := strings.ToLower(f.Filename)
	switch {
	case strings.HasSuffix(lower, ".flac") && f.BitDepth >= 24:
		return 150, search.TierHiRes, 0
	case strings.HasSuffix(lower, ".flac"):
		return 100, search.TierLossless, 0
	case strings.HasSuffix(lower, ".wav"):
		return 95, search.TierLossless, 0
	case strings.HasSuffix(lower, ".mp3") && f.BitRate >= 320:
		return 80, search.TierLossy, f.BitRate
	case strings.HasSuffix(lower, ".mp3") && f.BitRate >= 256:
		return 70, search.TierLossy, f.BitRate
	case strings.HasSuffix(lower, ".mp3") && f.BitRate >= 192:
		return 60, search.TierLossy, f.BitRate
	case strings.HasSuffix(lower, ".m4a"), strings.HasSuffix(lower, ".ogg"):
		return 55, search.TierLossy, f.BitRate
	default:
		return 30, search.TierLossy, f.BitRate
	}
}

// splitPeerFilename guesses artist/title from a "NN - Artist - Title.ext"
// or "Artist - Title.ext" share name.
func splitPeerFilename(base string) (artist, title string) {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, " - ")

	// Drop a leading track number segment
	if len(parts) > 2 {
		first := strings.TrimSpace(parts[0])
		if len(first) <= 3 && isDigits(first) {
			parts = parts[1:]
		}
	}

	if len(parts) >= 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(strings.Join(parts[1:], " - "))
	}
	return "", strings.TrimSpace(stem)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
