package model

import (
	"time"

	"gorm.io/gorm"
)

// WatchedPlaylist is an externally hosted playlist polled for new tracks.
// Only the scheduler mutates it, and only after a successful fetch.
type WatchedPlaylist struct {
	ID            string `gorm:"primaryKey;size:64" json:"id"`
	URL           string `gorm:"size:512;not null" json:"url"`
	Provider      string `gorm:"size:32;not null" json:"provider"` // spotify / amazon / youtube
	Name          string `gorm:"size:255" json:"name"`
	Enabled       bool   `gorm:"not null;default:true" json:"enabled"`
	ConvertToFLAC bool   `json:"convert_to_flac"`

	// Check scheduling
	RefreshInterval time.Duration `json:"refresh_interval"`
	LastChecked     *time.Time    `json:"last_checked"`
	LastError       string        `gorm:"size:512" json:"last_error,omitempty"`

	// M3U generation
	MakeM3U         bool   `json:"make_m3u"`
	M3UPath         string `gorm:"size:512" json:"m3u_path,omitempty"`
	UsePlaylistsDir bool   `json:"use_playlists_dir"`

	TrackCount int `json:"track_count"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (WatchedPlaylist) TableName() string {
	return "watched_playlists"
}

// Due reports whether the playlist should be checked on this tick.
func (p *WatchedPlaylist) Due(now time.Time) bool {
	if !p.Enabled {
		return false
	}
	if p.LastChecked == nil {
		return true
	}
	return now.Sub(*p.LastChecked) >= p.RefreshInterval
}

// WatchedTrack records one track identity seen in a watched playlist.
// The set per playlist only grows; diffing against it prevents re-enqueues.
type WatchedTrack struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PlaylistID string `gorm:"size:64;not null;uniqueIndex:idx_watched_playlist_hash" json:"playlist_id"`
	TrackHash  string `gorm:"size:32;not null;uniqueIndex:idx_watched_playlist_hash" json:"track_hash"`
	Artist     string `gorm:"size:255" json:"artist"`
	Title      string `gorm:"size:255" json:"title"`
	JobID      string `gorm:"size:64;index" json:"job_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (WatchedTrack) TableName() string {
	return "watched_tracks"
}

// BlacklistEntry blocks a specific external id, or penalizes an uploader,
// during candidate aggregation.
type BlacklistEntry struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Source     string `gorm:"size:32;not null;index" json:"source"`
	ExternalID string `gorm:"size:255;index" json:"external_id,omitempty"`
	Uploader   string `gorm:"size:255;index" json:"uploader,omitempty"`
	Reason     string `gorm:"size:64" json:"reason"` // wrong_track / poor_quality / slowed_pitched / contentid / other
	Note       string `gorm:"size:512" json:"note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (BlacklistEntry) TableName() string {
	return "blacklist_entries"
}

// Bulk import lifecycle states.
const (
	ImportStatusPending    = "pending"
	ImportStatusProcessing = "processing"
	ImportStatusCompleted  = "completed"
	ImportStatusError      = "error"
)

// Per-line states within an import.
const (
	ImportTrackStatusPending   = "pending"
	ImportTrackStatusSearching = "searching"
	ImportTrackStatusQueued    = "queued"
	ImportTrackStatusFailed    = "failed"
)

// BulkImport tracks one multi-line text import.
type BulkImport struct {
	ID            string `gorm:"primaryKey;size:64" json:"id"`
	Status        string `gorm:"size:32;not null" json:"status"` // pending / processing / completed / error
	TotalTracks   int    `json:"total_tracks"`
	Searched      int    `json:"searched"`
	Queued        int    `json:"queued"`
	Failed        int    `json:"failed"`
	Skipped       int    `json:"skipped"`
	ConvertToFLAC bool   `json:"convert_to_flac"`
	PlaylistName  string `gorm:"size:255" json:"playlist_name,omitempty"`
	Error         string `gorm:"size:512" json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (BulkImport) TableName() string {
	return "bulk_imports"
}

// BulkImportTrack is one requested line of a bulk import.
type BulkImportTrack struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	ImportID string `gorm:"size:64;not null;index" json:"import_id"`
	LineNum  int    `json:"line_num"`
	Artist   string `gorm:"size:255" json:"artist"`
	Title    string `gorm:"size:255" json:"title"`
	Status   string `gorm:"size:32;not null" json:"status"` // pending / searching / queued / failed
	JobID    string `gorm:"size:64" json:"job_id,omitempty"`
	Error    string `gorm:"size:255" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (BulkImportTrack) TableName() string {
	return "bulk_import_tracks"
}
