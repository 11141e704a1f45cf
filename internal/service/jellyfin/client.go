package jellyfin

import (
	"fmt"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client triggers Jellyfin library refreshes after placement.
type Client struct {
	cfg    *config.JellyfinConfig
	client *resty.Client
	logger *zap.Logger
}

func NewClient(cfg *config.JellyfinConfig, logger *zap.Logger) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("X-Emby-Token", cfg.APIKey)

	return &Client{cfg: cfg, client: client, logger: logger}
}

func (c *Client) Enabled() bool {
	return c.cfg.BaseURL != "" && c.cfg.APIKey != ""
}

// RefreshLibrary kicks off a full media library refresh.
func (c *Client) RefreshLibrary() error {
	c.logger.Info("triggering jellyfin library refresh")

	resp, err := c.client.R().Post(c.cfg.BaseURL + "/Library/Refresh")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	// 204 on success
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	c.logger.Info("jellyfin refresh started")
	return nil
}

func (c *Client) Ping() error {
	resp, err := c.client.R().Get(c.cfg.BaseURL + "/System/Info")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}
	return nil
}
