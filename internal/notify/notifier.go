package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Event types the notify_on filter switches on.
const (
	TypeSingle   = "single"
	TypePlaylist = "playlist"
	TypeBulk     = "bulk"
)

// Event is one notification-worthy occurrence. Count fields are only
// meaningful for playlist and bulk events.
type Event struct {
	Type         string
	Title        string
	Artist       string
	Source       string
	Status       string // completed / failed / completed_with_errors
	Error        string
	TrackCount   int
	FailedCount  int
	SkippedCount int
	PlaylistName string
}

// Notifier fans an event out to every configured channel. Delivery is
// fire-and-forget; a dead webhook must never fail a download job.
type Notifier struct {
	cfg    *config.NotifyConfig
	client *resty.Client
	logger *zap.Logger
}

func NewNotifier(cfg *config.NotifyConfig, logger *zap.Logger) *Notifier {
	client := resty.New().SetTimeout(cfg.Timeout)
	return &Notifier{cfg: cfg, client: client, logger: logger}
}

// Send dispatches the event to telegram, email and the generic webhook.
// Filtered events are dropped silently; errors always pass the filter when
// the errors category is enabled.
func (n *Notifier) Send(ctx context.Context, event Event) {
	if !n.shouldNotify(event) {
		return
	}

	message, subject := buildMessage(event)

	n.sendTelegram(ctx, message)
	n.sendEmail(subject, message)
	n.sendWebhook(ctx, event)
}

func (n *Notifier) shouldNotify(event Event) bool {
	enabled := make(map[string]bool)
	for _, t := range strings.Split(n.cfg.NotifyOn, ",") {
		enabled[strings.ToLower(strings.TrimSpace(t))] = true
	}

	category := map[string]string{
		TypeSingle:   "singles",
		TypePlaylist: "playlists",
		TypeBulk:     "bulk",
	}[event.Type]

	isError := event.Status == "failed" || event.Error != ""
	return enabled[category] || (isError && enabled["errors"])
}

func buildMessage(event Event) (body, subject string) {
	statusText := "[OK]"
	switch event.Status {
	case "failed":
		statusText = "[FAILED]"
	case "completed_with_errors":
		statusText = "[PARTIAL]"
	}

	lines := []string{"MusicGrabber " + statusText}
	subject = "MusicGrabber " + statusText

	switch event.Type {
	case TypeSingle:
		trackInfo := event.Title
		if event.Artist != "" {
			trackInfo = event.Artist + " - " + event.Title
		}
		lines = append(lines, trackInfo)
		subject += " - " + trackInfo
		if event.Source != "" {
			lines = append(lines, "Source: "+event.Source)
		}
	case TypePlaylist:
		name := event.PlaylistName
		if name == "" {
			name = event.Title
		}
		lines = append(lines, "Playlist: "+name)
		subject += " - Playlist: " + name
		if event.TrackCount > 0 {
			lines = append(lines, countSummary(event))
		}
	case TypeBulk:
		lines = append(lines, "Bulk import: "+event.Title)
		subject += " - Bulk import"
		if event.TrackCount > 0 {
			lines = append(lines, countSummary(event))
		}
	}

	if event.Error != "" {
		lines = append(lines, "Error: "+event.Error)
	}

	return strings.Join(lines, "\n"), subject
}

func countSummary(event Event) string {
	parts := []string{fmt.Sprintf("%d tracks", event.TrackCount)}
	if event.FailedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", event.FailedCount))
	}
	if event.SkippedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", event.SkippedCount))
	}
	return strings.Join(parts, ", ")
}

func (n *Notifier) sendTelegram(ctx context.Context, message string) {
	if n.cfg.TelegramWebhookURL == "" {
		return
	}

	_, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": message}).
		Post(n.cfg.TelegramWebhookURL)
	if err != nil {
		n.logger.Warn("telegram notification failed", zap.Error(err))
	}
}

func (n *Notifier) sendWebhook(ctx context.Context, event Event) {
	if n.cfg.WebhookURL == "" {
		return
	}

	payload := map[string]interface{}{
		"event":  "download." + event.Status,
		"type":   event.Type,
		"title":  event.Title,
		"status": event.Status,
	}
	if event.Artist != "" {
		payload["artist"] = event.Artist
	}
	if event.Source != "" {
		payload["source"] = event.Source
	}
	if event.Error != "" {
		payload["error"] = event.Error
	}
	if event.TrackCount > 0 {
		payload["track_count"] = event.TrackCount
		payload["failed_count"] = event.FailedCount
		payload["skipped_count"] = event.SkippedCount
	}
	if event.PlaylistName != "" {
		payload["playlist_name"] = event.PlaylistName
	}

	_, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.cfg.WebhookURL)
	if err != nil {
		n.logger.Warn("webhook notification failed", zap.Error(err))
	}
}

func (n *Notifier) sendEmail(subject, message string) {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPTo == "" {
		return
	}

	from := n.cfg.SMTPFrom
	if from == "" {
		from = n.cfg.SMTPUser
	}
	recipients := strings.Split(n.cfg.SMTPTo, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		from, n.cfg.SMTPTo, subject, message)

	addr := n.cfg.SMTPHost + ":" + strconv.Itoa(n.cfg.SMTPPort)
	var auth smtp.Auth
	if n.cfg.SMTPUser != "" && n.cfg.SMTPPass != "" {
		auth = smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPass, n.cfg.SMTPHost)
	}

	// smtp.SendMail upgrades to STARTTLS when the server offers it
	if err := smtp.SendMail(addr, auth, from, recipients, []byte(body)); err != nil {
		n.logger.Warn("email notification failed", zap.Error(err))
	}
}
