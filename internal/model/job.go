package model

import (
	"time"

	"gorm.io/gorm"
)

// Job is the durable unit of download work. Only the lifecycle manager
// mutates a Job after creation.
type Job struct {
	ID             string `gorm:"primaryKey;size:64" json:"id"`
	IdempotencyKey string `gorm:"uniqueIndex;size:255;not null" json:"idempotency_key"`
	Kind           string `gorm:"size:32;not null" json:"kind"` // single / playlist-member / bulk-member / watched-trigger

	// Chosen candidate snapshot
	Source     string `gorm:"size:32;not null;index" json:"source"` // extraction / catalogue / peer
	ExternalID string `gorm:"size:255;not null" json:"external_id"`
	SourceURL  string `gorm:"size:512" json:"source_url"`
	Quality    string `gorm:"size:32" json:"quality"` // declared tier at selection time
	PeerUser   string `gorm:"size:255" json:"peer_user,omitempty"`
	PeerFile   string `gorm:"size:512" json:"peer_file,omitempty"`

	// Resolved metadata (nullable until the resolver ran)
	Title       string `gorm:"size:255" json:"title"`
	Artist      string `gorm:"size:255" json:"artist"`
	Album       string `gorm:"size:255" json:"album"`
	TrackNumber int    `json:"track_number"`
	Year        int    `json:"year"`
	CoverURL    string `gorm:"size:512" json:"cover_url,omitempty"`
	Provenance  string `gorm:"size:32" json:"provenance,omitempty"`

	// Exclusivity key, derived from normalized (artist, title)
	TrackKey    string `gorm:"size:64;index" json:"track_key"`
	DuplicateOf string `gorm:"size:64" json:"duplicate_of,omitempty"`

	// Lifecycle
	Status  string `gorm:"size:32;not null;index" json:"status"`
	Message string `gorm:"size:512" json:"message"`

	Progress       int   `json:"progress"` // 0-100
	TotalBytes     int64 `json:"total_bytes"`
	CompletedBytes int64 `json:"completed_bytes"`

	// Result
	FilePath      string `gorm:"size:512" json:"file_path"`
	FileSize      int64  `json:"file_size"`
	Duration      int    `json:"duration"` // seconds
	Bitrate       int    `json:"bitrate"`  // measured kbps, 0 for lossless sources
	ConvertToFLAC bool   `json:"convert_to_flac"`

	// Grouping (playlist / bulk import membership)
	PlaylistID string `gorm:"size:64;index" json:"playlist_id,omitempty"`
	ImportID   string `gorm:"size:64;index" json:"import_id,omitempty"`

	Error       string     `gorm:"size:1024" json:"error"`
	RetryCount  int        `json:"retry_count"`
	LastRetryAt *time.Time `json:"last_retry_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Job) TableName() string {
	return "jobs"
}

// TrackMetadata is the resolver output written into tags.
type TrackMetadata struct {
	Title       string
	Artist      string
	Album       string
	TrackNumber int
	Year        int
	CoverURL    string
	CoverData   []byte
	Lyrics      string
}

// Job states. Terminal states are completed, failed and deleted;
// duplicate marks a coalesced job that never ran on its own.
const (
	JobStatusQueued          = "queued"
	JobStatusResolvingSource = "resolving_source"
	JobStatusDownloading     = "downloading"
	JobStatusConverting      = "converting"
	JobStatusTagging         = "tagging"
	JobStatusPlacing         = "placing"
	JobStatusCompleted       = "completed"
	JobStatusFailed          = "failed"
	JobStatusDuplicate       = "duplicate"
	JobStatusDeleted         = "deleted"
)

// Job kinds.
const (
	JobKindSingle         = "single"
	JobKindPlaylistMember = "playlist-member"
	JobKindBulkMember     = "bulk-member"
	JobKindWatchedTrigger = "watched-trigger"
)

// Metadata provenance labels, set by the first resolver stage that accepted.
const (
	ProvenanceCatalogue   = "catalogue_native"
	ProvenanceFingerprint = "acoustid_fingerprint"
	ProvenanceTextMatch   = "musicbrainz_text"
	ProvenanceSourceGuess = "source_guessed"
)

// IsTerminal reports whether no further transitions are allowed.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusDuplicate, JobStatusDeleted:
		return true
	}
	return false
}

// IsActive reports whether the job currently holds (or is waiting for)
// the track exclusivity lock.
func (j *Job) IsActive() bool {
	switch j.Status {
	case JobStatusQueued, JobStatusResolvingSource, JobStatusDownloading,
		JobStatusConverting, JobStatusTagging, JobStatusPlacing:
		return true
	}
	return false
}
