package playlist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"go.uber.org/zap"
)

// browserResult is the JSON contract with the headless-browser helper
// script. Tracks arrive as "Artist - Title" strings.
type browserResult struct {
	Success      bool     `json:"success"`
	Tracks       []string `json:"tracks"`
	PlaylistName string   `json:"playlist_name"`
	Error        string   `json:"error"`
}

// runBrowserFetch invokes the configured headless-browser command with the
// target encoded in environment variables. Kept in a separate process so a
// browser crash or hang cannot take the service down with it.
func runBrowserFetch(ctx context.Context, cfg *config.SchedulerConfig, env map[string]string, logger *zap.Logger) (*browserResult, error) {
	if cfg.BrowserCommand == "" {
		return nil, fmt.Errorf("no browser command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.BrowserTimeout)
	defer cancel()

	parts := strings.Fields(cfg.BrowserCommand)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("browser fetch timed out: %w", ctx.Err())
		}
		logger.Warn("browser fetch failed",
			zap.String("stderr", truncate(stderr.String(), 500)),
			zap.Error(err))
		return nil, fmt.Errorf("browser command failed: %w", err)
	}

	var result browserResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("invalid browser output: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("browser fetch reported failure: %s", result.Error)
	}
	if len(result.Tracks) == 0 {
		return nil, fmt.Errorf("browser fetch returned no tracks")
	}

	return &result, nil
}

func browserResultToTracklist(result *browserResult, fallbackName string) *Tracklist {
	name := result.PlaylistName
	if name == "" {
		name = fallbackName
	}

	tracks := make([]Track, 0, len(result.Tracks))
	for _, line := range result.Tracks {
		artist, title := "Unknown", strings.TrimSpace(line)
		if idx := strings.Index(line, " - "); idx >= 0 {
			artist = strings.TrimSpace(line[:idx])
			title = strings.TrimSpace(line[idx+3:])
		}
		tracks = append(tracks, Track{Artist: artist, Title: title})
	}

	return &Tracklist{Name: name, Tracks: tracks}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
