package notify

import (
	"testing"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func notifierWith(notifyOn string) *Notifier {
	return NewNotifier(&config.NotifyConfig{NotifyOn: notifyOn}, zap.NewNop())
}

func TestShouldNotifyCategoryFilter(t *testing.T) {
	n := notifierWith("playlists,bulk")

	assert.True(t, n.shouldNotify(Event{Type: TypePlaylist, Status: "completed"}))
	assert.True(t, n.shouldNotify(Event{Type: TypeBulk, Status: "completed"}))
	assert.False(t, n.shouldNotify(Event{Type: TypeSingle, Status: "completed"}))
}

func TestShouldNotifyErrorsAlwaysPass(t *testing.T) {
	n := notifierWith("errors")

	// Singles are not enabled, but a failure still notifies
	assert.True(t, n.shouldNotify(Event{Type: TypeSingle, Status: "failed"}))
	assert.True(t, n.shouldNotify(Event{Type: TypeSingle, Status: "completed", Error: "tag write failed"}))
	assert.False(t, n.shouldNotify(Event{Type: TypeSingle, Status: "completed"}))
}

func TestBuildMessageSingle(t *testing.T) {
	body, subject := buildMessage(Event{
		Type:   TypeSingle,
		Title:  "Get Lucky",
		Artist: "Daft Punk",
		Source: "catalogue",
		Status: "completed",
	})

	assert.Equal(t, "MusicGrabber [OK] - Daft Punk - Get Lucky", subject)
	assert.Contains(t, body, "Daft Punk - Get Lucky")
	assert.Contains(t, body, "Source: catalogue")
}

func TestBuildMessagePlaylistWithCounts(t *testing.T) {
	body, subject := buildMessage(Event{
		Type:         TypePlaylist,
		PlaylistName: "Focus Mix",
		Status:       "completed_with_errors",
		TrackCount:   20,
		FailedCount:  2,
		SkippedCount: 3,
	})

	assert.Contains(t, subject, "[PARTIAL]")
	assert.Contains(t, body, "Playlist: Focus Mix")
	assert.Contains(t, body, "20 tracks, 2 failed, 3 skipped")
}

func TestBuildMessageFailedCarriesError(t *testing.T) {
	body, subject := buildMessage(Event{
		Type:   TypeBulk,
		Title:  "import-42",
		Status: "failed",
		Error:  "redis unreachable",
	})

	assert.Contains(t, subject, "[FAILED]")
	assert.Contains(t, body, "Error: redis unreachable")
}
