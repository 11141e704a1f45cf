package repository

import (
	"fmt"
	"time"

	"github.com/cvlogg/musicgrabber2/internal/model"
	"gorm.io/gorm"
)

// JobRepository is the persistence layer for download jobs.
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.Job) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) FindByID(id string) (*model.Job, error) {
	var job model.Job
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindByIdempotencyKey returns nil, nil when no job carries the key.
func (r *JobRepository) FindByIdempotencyKey(key string) (*model.Job, error) {
	var job model.Job
	err := r.db.Where("idempotency_key = ?", key).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// FindActiveByTrackKey returns the job currently holding the exclusivity
// slot for a normalized track key, or nil, nil when the track is free.
func (r *JobRepository) FindActiveByTrackKey(trackKey, excludeID string) (*model.Job, error) {
	var job model.Job
	err := r.db.Where("track_key = ? AND id != ? AND status IN ?",
		trackKey,
		excludeID,
		[]string{
			model.JobStatusQueued,
			model.JobStatusResolvingSource,
			model.JobStatusDownloading,
			model.JobStatusConverting,
			model.JobStatusTagging,
			model.JobStatusPlacing,
		}).
		Order("created_at ASC").
		First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// FindLatestDoneByTrackKey returns the most recent job that finished with
// the track in the library, or nil, nil. Used when a coalescing job finds
// the winner already gone from the active set.
func (r *JobRepository) FindLatestDoneByTrackKey(trackKey, excludeID string) (*model.Job, error) {
	var job model.Job
	err := r.db.Where("track_key = ? AND id != ? AND status IN ?",
		trackKey,
		excludeID,
		[]string{model.JobStatusCompleted, model.JobStatusDuplicate}).
		Order("updated_at DESC").
		First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) Update(job *model.Job) error {
	job.UpdatedAt = time.Now()
	return r.db.Save(job).Error
}

func (r *JobRepository) UpdateStatus(id, status, message string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if message != "" {
		updates["message"] = message
	}

	return r.db.Model(&model.Job{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *JobRepository) UpdateProgress(id string, progress int, completedBytes, totalBytes int64) error {
	return r.db.Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":        progress,
			"completed_bytes": completedBytes,
			"total_bytes":     totalBytes,
			"updated_at":      time.Now(),
		}).Error
}

// UpdateMetadata stores the resolver output and provenance label on the job.
func (r *JobRepository) UpdateMetadata(id string, md *model.TrackMetadata, provenance string) error {
	return r.db.Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"title":        md.Title,
			"artist":       md.Artist,
			"album":        md.Album,
			"track_number": md.TrackNumber,
			"year":         md.Year,
			"provenance":   provenance,
			"updated_at":   time.Now(),
		}).Error
}

// MarkRetrying puts a job back in the queue after a transient failure,
// keeping the error visible until the next attempt overwrites it.
func (r *JobRepository) MarkRetrying(id string, err error) error {
	now := time.Now()
	return r.db.Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.JobStatusQueued,
			"error":         err.Error(),
			"progress":      0,
			"last_retry_at": &now,
			"updated_at":    now,
		}).Error
}

func (r *JobRepository) MarkFailed(id string, err error) error {
	return r.db.Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.JobStatusFailed,
			"error":      err.Error(),
			"updated_at": time.Now(),
		}).Error
}

// MarkDuplicate closes a job coalesced onto an already-active one.
func (r *JobRepository) MarkDuplicate(id, winnerID string) error {
	return r.db.Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.JobStatusDuplicate,
			"duplicate_of": winnerID,
			"message":      "coalesced onto active job " + winnerID,
			"updated_at":   time.Now(),
		}).Error
}

func (r *JobRepository) MarkCompleted(id, filePath string, fileSize int64, bitrate int) error {
	return r.db.Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.JobStatusCompleted,
			"file_path":  filePath,
			"file_size":  fileSize,
			"bitrate":    bitrate,
			"progress":   100,
			"updated_at": time.Now(),
		}).Error
}

func (r *JobRepository) MarkDeleted(id string) error {
	return r.db.Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.JobStatusDeleted,
			"updated_at": time.Now(),
		}).Error
}

func (r *JobRepository) ListByStatus(status string, limit int) ([]*model.Job, error) {
	var jobs []*model.Job
	err := r.db.Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *JobRepository) ListRecent(limit int) ([]*model.Job, error) {
	var jobs []*model.Job
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *JobRepository) ListByImport(importID string) ([]*model.Job, error) {
	var jobs []*model.Job
	err := r.db.Where("import_id = ?", importID).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

func (r *JobRepository) ListByPlaylist(playlistID string) ([]*model.Job, error) {
	var jobs []*model.Job
	err := r.db.Where("playlist_id = ?", playlistID).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

func (r *JobRepository) IncrementRetry(id string) error {
	now := time.Now()
	return r.db.Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": &now,
			"updated_at":    now,
		}).Error
}

func (r *JobRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Job{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// FailStale fails jobs stuck in a transient state longer than olderThan.
// Catches worker crashes mid-download; the exclusivity slot frees up with
// the status change.
func (r *JobRepository) FailStale(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := r.db.Model(&model.Job{}).
		Where("status IN ? AND updated_at < ?",
			[]string{
				model.JobStatusResolvingSource,
				model.JobStatusDownloading,
				model.JobStatusConverting,
				model.JobStatusTagging,
				model.JobStatusPlacing,
			},
			cutoff).
		Updates(map[string]interface{}{
			"status":     model.JobStatusFailed,
			"error":      "job stalled, no progress within the stale window",
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// DeleteOldJobs drops terminal jobs older than the retention window.
func (r *JobRepository) DeleteOldJobs(days int) error {
	cutoff := time.Now().AddDate(0, 0, -days)
	return r.db.Where("status IN ? AND updated_at < ?",
		[]string{
			model.JobStatusCompleted,
			model.JobStatusFailed,
			model.JobStatusDuplicate,
			model.JobStatusDeleted,
		},
		cutoff).
		Delete(&model.Job{}).Error
}

// InitDB migrates the schema for every persisted model.
func InitDB(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Job{},
		&model.WatchedPlaylist{},
		&model.WatchedTrack{},
		&model.BlacklistEntry{},
		&model.BulkImport{},
		&model.BulkImportTrack{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at DESC)").Error; err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}
