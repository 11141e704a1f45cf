package repository

import (
	"time"

	"github.com/cvlogg/musicgrabber2/internal/model"
	"gorm.io/gorm"
)

// PlaylistRepository persists watched playlists and their seen-track sets.
type PlaylistRepository struct {
	db *gorm.DB
}

func NewPlaylistRepository(db *gorm.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

func (r *PlaylistRepository) Create(playlist *model.WatchedPlaylist) error {
	return r.db.Create(playlist).Error
}

func (r *PlaylistRepository) FindByID(id string) (*model.WatchedPlaylist, error) {
	var playlist model.WatchedPlaylist
	err := r.db.Where("id = ?", id).First(&playlist).Error
	if err != nil {
		return nil, err
	}
	return &playlist, nil
}

func (r *PlaylistRepository) FindByURL(url string) (*model.WatchedPlaylist, error) {
	var playlist model.WatchedPlaylist
	err := r.db.Where("url = ?", url).First(&playlist).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &playlist, nil
}

func (r *PlaylistRepository) List() ([]*model.WatchedPlaylist, error) {
	var playlists []*model.WatchedPlaylist
	err := r.db.Order("created_at ASC").Find(&playlists).Error
	return playlists, err
}

// ListDue returns enabled playlists whose refresh interval has elapsed.
// Never-checked playlists are always due.
func (r *PlaylistRepository) ListDue(now time.Time) ([]*model.WatchedPlaylist, error) {
	var playlists []*model.WatchedPlaylist
	err := r.db.Where("enabled = ?", true).Find(&playlists).Error
	if err != nil {
		return nil, err
	}

	// Interval arithmetic in Go; duration columns are not portable SQL
	due := playlists[:0]
	for _, p := range playlists {
		if p.Due(now) {
			due = append(due, p)
		}
	}
	return due, nil
}

func (r *PlaylistRepository) Update(playlist *model.WatchedPlaylist) error {
	playlist.UpdatedAt = time.Now()
	return r.db.Save(playlist).Error
}

// MarkChecked advances the check clock. Called only after a successful
// fetch; a failed fetch leaves last_checked alone so the next tick retries.
func (r *PlaylistRepository) MarkChecked(id string, checkedAt time.Time, trackCount int) error {
	return r.db.Model(&model.WatchedPlaylist{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_checked": checkedAt,
			"last_error":   "",
			"track_count":  trackCount,
			"updated_at":   time.Now(),
		}).Error
}

// MarkCheckFailed records the fetch error without touching last_checked.
func (r *PlaylistRepository) MarkCheckFailed(id string, err error) error {
	return r.db.Model(&model.WatchedPlaylist{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_error": err.Error(),
			"updated_at": time.Now(),
		}).Error
}

func (r *PlaylistRepository) Delete(id string) error {
	if err := r.db.Where("playlist_id = ?", id).Delete(&model.WatchedTrack{}).Error; err != nil {
		return err
	}
	return r.db.Where("id = ?", id).Delete(&model.WatchedPlaylist{}).Error
}

// SeenHashes returns the set of track hashes already observed for a playlist.
func (r *PlaylistRepository) SeenHashes(playlistID string) (map[string]bool, error) {
	var hashes []string
	err := r.db.Model(&model.WatchedTrack{}).
		Where("playlist_id = ?", playlistID).
		Pluck("track_hash", &hashes).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		seen[h] = true
	}
	return seen, nil
}

func (r *PlaylistRepository) AddSeenTracks(tracks []*model.WatchedTrack) error {
	if len(tracks) == 0 {
		return nil
	}
	return r.db.Create(tracks).Error
}

func (r *PlaylistRepository) ListTracks(playlistID string) ([]*model.WatchedTrack, error) {
	var tracks []*model.WatchedTrack
	err := r.db.Where("playlist_id = ?", playlistID).
		Order("created_at ASC").
		Find(&tracks).Error
	return tracks, err
}

// SetTrackJob links a seen track to the job enqueued for it.
func (r *PlaylistRepository) SetTrackJob(playlistID, trackHash, jobID string) error {
	return r.db.Model(&model.WatchedTrack{}).
		Where("playlist_id = ? AND track_hash = ?", playlistID, trackHash).
		Update("job_id", jobID).Error
}
