package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/metadata"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"go.uber.org/zap"
)

const extractionBaseScore = 40

// Client drives the yt-dlp binary for extraction-based sources. One client
// covers both the video-site and soundcloud search namespaces.
type Client struct {
	cfg    *config.YTDLPConfig
	logger *zap.Logger
}

func NewClient(cfg *config.YTDLPConfig, logger *zap.Logger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

func (c *Client) Tag() search.SourceTag {
	return search.SourceExtraction
}

// flatEntry is the subset of yt-dlp --dump-json output we consume.
type flatEntry struct {
	Type       string  `json:"_type"`
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Channel    string  `json:"channel"`
	Duration   float64 `json:"duration"`
	WebpageURL string  `json:"webpage_url"`
	URL        string  `json:"url"`
	ViewCount  int64   `json:"view_count"`
}

// Search runs both search namespaces and merges the hits. Fetches more
// than limit so scoring has something to choose from.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]search.Candidate, error) {
	fetch := limit * c.cfg.SearchFetchMult
	if fetch < 30 {
		fetch = 30
	}

	var candidates []search.Candidate
	var firstErr error
	for _, prefix := range []string{"ytsearch", "scsearch"} {
		found, err := c.searchNamespace(ctx, prefix, query, fetch)
		if err != nil {
			c.logger.Warn("extraction search namespace failed",
				zap.String("namespace", prefix),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		candidates = append(candidates, found...)
	}

	// Capability failure only when both namespaces failed
	if len(candidates) == 0 && firstErr != nil {
		return nil, firstErr
	}

	if limit > 0 && len(candidates) > limit*2 {
		candidates = candidates[:limit*2]
	}
	return candidates, nil
}

func (c *Client) searchNamespace(ctx context.Context, prefix, query string, fetch int) ([]search.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()

	args := []string{
		"--dump-json",
		"--flat-playlist",
		"--no-warnings",
	}
	args = append(args, c.commonArgs()...)
	args = append(args, fmt.Sprintf("%s%d:%s", prefix, fetch, query))

	cmd := exec.CommandContext(ctx, c.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyError(stderr.String(), err)
	}

	var candidates []search.Candidate
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		if line == "" {
			continue
		}
		var entry flatEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry.Type == "playlist" || entry.ID == "" {
			continue
		}

		uploader := entry.Uploader
		if uploader == "" {
			uploader = entry.Channel
		}
		pageURL := entry.WebpageURL
		if pageURL == "" {
			pageURL = entry.URL
		}

		artist, title := metadata.SplitArtistTitle(entry.Title, uploader)

		candidates = append(candidates, search.Candidate{
			Source:     search.SourceExtraction,
			ExternalID: entry.ID,
			URL:        pageURL,
			Title:      title,
			Artist:     artist,
			Uploader:   uploader,
			Duration:   int(entry.Duration),
			Tier:       search.TierLossy,
			Score:      scoreResult(entry.Title, uploader, query, int(entry.Duration), entry.ViewCount),
		})
	}

	return candidates, nil
}

// Resolve points the download stage at the extraction subprocess.
func (c *Client) Resolve(ctx context.Context, cand search.Candidate) (*search.StreamDescriptor, error) {
	if cand.URL == "" {
		return nil, fmt.Errorf("candidate %s has no source url: %w", cand.ExternalID, search.ErrContentUnavailable)
	}
	return &search.StreamDescriptor{ExtractURL: cand.URL}, nil
}

// ExtractAudio downloads and extracts the best audio stream into destDir,
// returning the produced file path.
func (c *Client) ExtractAudio(ctx context.Context, sourceURL, destDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	outTemplate := filepath.Join(destDir, "audio.%(ext)s")
	args := []string{
		"-x",
		"--no-playlist",
		"--no-warnings",
		"-o", outTemplate,
	}
	args = append(args, c.commonArgs()...)
	args = append(args, sourceURL)

	cmd := exec.CommandContext(ctx, c.cfg.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.logger.Info("extracting audio", zap.String("url", sourceURL))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyError(stderr.String(), err)
	}

	path, err := findAudioFile(destDir)
	if err != nil {
		return "", err
	}

	c.logger.Info("audio extracted", zap.String("path", path))
	return path, nil
}

// PlaylistEntry is one flat-playlist item with the artist/title already split.
type PlaylistEntry struct {
	Artist string
	Title  string
}

// FetchPlaylist lists a hosted playlist without downloading anything.
// Returns the entries and the playlist title when the dump carries one.
func (c *Client) FetchPlaylist(ctx context.Context, playlistURL string) ([]PlaylistEntry, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()

	args := []string{
		"--dump-json",
		"--flat-playlist",
		"--no-warnings",
	}
	args = append(args, c.commonArgs()...)
	args = append(args, playlistURL)

	cmd := exec.CommandContext(ctx, c.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", classifyError(stderr.String(), err)
	}

	var entries []PlaylistEntry
	name := ""
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		if line == "" {
			continue
		}
		var entry struct {
			flatEntry
			PlaylistTitle string `json:"playlist_title"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if name == "" && entry.PlaylistTitle != "" {
			name = entry.PlaylistTitle
		}
		if entry.ID == "" {
			continue
		}

		uploader := entry.Uploader
		if uploader == "" {
			uploader = entry.Channel
		}
		artist, title := metadata.SplitArtistTitle(entry.Title, uploader)
		entries = append(entries, PlaylistEntry{Artist: artist, Title: title})
	}

	if len(entries) == 0 {
		return nil, "", fmt.Errorf("no tracks found in playlist %s", playlistURL)
	}
	return entries, name, nil
}

func (c *Client) commonArgs() []string {
	var args []string
	if c.cfg.CookiesFile != "" {
		if _, err := os.Stat(c.cfg.CookiesFile); err == nil {
			args = append(args, "--cookies", c.cfg.CookiesFile)
		}
	}
	if c.cfg.PlayerClient != "" {
		args = append(args, "--extractor-args", "youtube:player_client="+c.cfg.PlayerClient)
	}
	return args
}

// classifyError maps yt-dlp stderr onto the source error taxonomy so the
// lifecycle manager knows whether to retry.
func classifyError(stderr string, err error) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "has been removed"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "no video formats"):
		return fmt.Errorf("%w: %s", search.ErrContentUnavailable, firstLine(stderr))
	case strings.Contains(lower, "not available in your country"),
		strings.Contains(lower, "geo restricted"):
		return fmt.Errorf("%w: %s", search.ErrRegionLocked, firstLine(stderr))
	case strings.Contains(lower, "http error 429"),
		strings.Contains(lower, "rate-limited"),
		strings.Contains(lower, "sign in to confirm"):
		return fmt.Errorf("%w: %s", search.ErrRateLimited, firstLine(stderr))
	}
	if msg := firstLine(stderr); msg != "" {
		return fmt.Errorf("yt-dlp failed: %s: %w", msg, err)
	}
	return fmt.Errorf("yt-dlp failed: %w", err)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

var audioExtensions = []string{".opus", ".m4a", ".webm", ".mp3", ".ogg", ".flac", ".wav"}

func findAudioFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read extraction dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, known := range audioExtensions {
			if ext == known {
				return filepath.Join(dir, entry.Name()), nil
			}
		}
	}
	return "", fmt.Errorf("no audio file produced in %s", dir)
}

// scoreResult applies the relevance heuristics used for ranking within the
// lossy tier. Higher is better.
func scoreResult(title, uploader, query string, duration int, viewCount int64) int {
	score := extractionBaseScore
	lowerTitle := strings.ToLower(title)
	lowerQuery := strings.ToLower(query)

	if strings.Contains(lowerTitle, "official audio") || strings.Contains(lowerTitle, "official video") {
		score += 15
	}
	if strings.HasSuffix(strings.TrimSpace(uploader), "- Topic") || strings.Contains(uploader, "VEVO") {
		score += 20
	}

	// Penalize variants the user did not ask for
	for _, bad := range []string{"live", "cover", "remix", "slowed", "sped up", "reverb", "nightcore", "reaction"} {
		if strings.Contains(lowerTitle, bad) && !strings.Contains(lowerQuery, bad) {
			score -= 25
		}
	}

	// Plausible single-track length
	if duration >= 60 && duration <= 600 {
		score += 5
	}

	// View count as a weak popularity signal
	switch {
	case viewCount > 10_000_000:
		score += 10
	case viewCount > 1_000_000:
		score += 7
	case viewCount > 100_000:
		score += 4
	}

	return score
}
