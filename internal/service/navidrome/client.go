package navidrome

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const clientName = "musicgrabber"

// Client talks the Subsonic API to Navidrome for library rescans.
type Client struct {
	cfg    *config.NavidromeConfig
	client *resty.Client
	logger *zap.Logger
	token  string
	salt   string
}

func NewClient(cfg *config.NavidromeConfig, logger *zap.Logger) *Client {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", clientName+"/2.0")

	salt := generateSalt()
	token := generateToken(cfg.Password, salt)

	return &Client{
		cfg:    cfg,
		client: client,
		logger: logger,
		token:  token,
		salt:   salt,
	}
}

// Enabled reports whether a rescan target is configured.
func (c *Client) Enabled() bool {
	return c.cfg.BaseURL != "" && c.cfg.Username != ""
}

type ScanStatus struct {
	Scanning bool  `json:"scanning"`
	Count    int64 `json:"count"`
}

// StartScan triggers a library rescan.
func (c *Client) StartScan() error {
	c.logger.Info("starting navidrome scan")

	var result struct {
		SubsonicResponse struct {
			Status  string `json:"status"`
			Version string `json:"version"`
		} `json:"subsonic-response"`
	}

	resp, err := c.client.R().
		SetQueryParams(c.authParams()).
		SetResult(&result).
		Get(c.cfg.BaseURL + "/rest/startScan")

	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	if result.SubsonicResponse.Status != "ok" {
		return fmt.Errorf("scan start failed: status=%s", result.SubsonicResponse.Status)
	}

	c.logger.Info("scan started successfully")
	return nil
}

func (c *Client) GetScanStatus() (*ScanStatus, error) {
	var result struct {
		SubsonicResponse struct {
			Status     string     `json:"status"`
			ScanStatus ScanStatus `json:"scanStatus"`
		} `json:"subsonic-response"`
	}

	resp, err := c.client.R().
		SetQueryParams(c.authParams()).
		SetResult(&result).
		Get(c.cfg.BaseURL + "/rest/getScanStatus")

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	if result.SubsonicResponse.Status != "ok" {
		return nil, fmt.Errorf("get scan status failed: status=%s", result.SubsonicResponse.Status)
	}

	return &result.SubsonicResponse.ScanStatus, nil
}

// WaitForScan polls until the scan finishes or the timeout fires.
func (c *Client) WaitForScan(timeout time.Duration) error {
	c.logger.Info("waiting for scan to complete", zap.Duration("timeout", timeout))

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-time.After(time.Until(deadline)):
			return fmt.Errorf("scan timeout after %v", timeout)
		case <-ticker.C:
			status, err := c.GetScanStatus()
			if err != nil {
				c.logger.Warn("failed to get scan status", zap.Error(err))
				continue
			}

			if !status.Scanning {
				c.logger.Info("scan completed", zap.Int64("count", status.Count))
				return nil
			}

			c.logger.Debug("scan in progress", zap.Int64("count", status.Count))
		}
	}
}

func (c *Client) Ping() error {
	var result struct {
		SubsonicResponse struct {
			Status  string `json:"status"`
			Version string `json:"version"`
		} `json:"subsonic-response"`
	}

	resp, err := c.client.R().
		SetQueryParams(c.authParams()).
		SetResult(&result).
		Get(c.cfg.BaseURL + "/rest/ping")

	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	if result.SubsonicResponse.Status != "ok" {
		return fmt.Errorf("ping failed: status=%s", result.SubsonicResponse.Status)
	}

	c.logger.Info("ping successful", zap.String("version", result.SubsonicResponse.Version))
	return nil
}

func (c *Client) authParams() map[string]string {
	return map[string]string{
		"u": c.cfg.Username,
		"t": c.token,
		"s": c.salt,
		"v": c.cfg.APIVersion,
		"c": clientName,
		"f": "json",
	}
}

func generateSalt() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func generateToken(password, salt string) string {
	hash := md5.Sum([]byte(password + salt))
	return fmt.Sprintf("%x", hash)
}

// NormalizeURL strips any trailing slash.
func NormalizeURL(urlStr string) string {
	return strings.TrimRight(urlStr, "/")
}
