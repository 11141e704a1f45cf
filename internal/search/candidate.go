package search

import (
	"context"
	"errors"
)

// SourceTag discriminates which adapter produced a candidate.
type SourceTag string

const (
	SourceExtraction SourceTag = "extraction"
	SourceCatalogue  SourceTag = "catalogue"
	SourcePeer       SourceTag = "peer"
)

// QualityTier orders declared audio quality. Higher is better.
type QualityTier int

const (
	TierLossy QualityTier = iota
	TierLossless
	TierHiRes
)

func (t QualityTier) String() string {
	switch t {
	case TierHiRes:
		return "hi-res"
	case TierLossless:
		return "lossless"
	default:
		return "lossy"
	}
}

// Candidate is one search hit from one adapter, normalized into the common
// ranked model. Immutable once produced; only promoted into a Job snapshot.
type Candidate struct {
	Source     SourceTag `json:"source"`
	ExternalID string    `json:"external_id"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist,omitempty"`
	Uploader   string    `json:"uploader,omitempty"`
	Album      string    `json:"album,omitempty"`
	AlbumID    string    `json:"album_id,omitempty"`
	Year       int       `json:"year,omitempty"`
	CoverURL   string    `json:"cover_url,omitempty"`
	Duration   int       `json:"duration,omitempty"` // seconds

	Tier    QualityTier `json:"tier"`
	Bitrate int         `json:"bitrate,omitempty"` // declared kbps, 0 when unknown/lossless
	Score   int         `json:"score"`

	// Peer network coordinates (peer source only)
	PeerUser string `json:"peer_user,omitempty"`
	PeerFile string `json:"peer_file,omitempty"`

	// Set by the blacklist filter; demotes the candidate in ranking.
	Penalized bool `json:"penalized,omitempty"`

	// Suppressed near-duplicates, kept for fallback if this candidate
	// later fails source resolution.
	Alternates []Candidate `json:"alternates,omitempty"`
}

// StreamDescriptor tells the download stage how to obtain the audio.
type StreamDescriptor struct {
	// Direct is a plain HTTP(S) URL fetched as-is (catalogue source).
	Direct string
	// ExtractURL is handed to the extraction subprocess (extraction source).
	ExtractURL string
	// PeerUser/PeerFile locate a transfer through the peer daemon.
	PeerUser string
	PeerFile string

	MimeType string
	Codec    string
	Bitrate  int // declared kbps, 0 for lossless
	Size     int64
}

// Adapter is the uniform capability every source implements. Search must
// report capability failure distinctly from zero results, and must respect
// the context deadline.
type Adapter interface {
	Tag() SourceTag
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
	Resolve(ctx context.Context, c Candidate) (*StreamDescriptor, error)
}

// Source error taxonomy. Wrapping one of these tells the lifecycle manager
// whether a retry can possibly succeed.
var (
	// ErrContentUnavailable means the content was removed or never existed.
	ErrContentUnavailable = errors.New("content unavailable")
	// ErrRegionLocked means the content exists but cannot be served here.
	ErrRegionLocked = errors.New("region locked")
	// ErrRateLimited is transient; the source asked us to back off.
	ErrRateLimited = errors.New("rate limited")
)
