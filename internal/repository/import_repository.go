package repository

import (
	"time"

	"github.com/cvlogg/musicgrabber2/internal/model"
	"gorm.io/gorm"
)

// ImportRepository persists bulk imports and their per-line progress.
type ImportRepository struct {
	db *gorm.DB
}

func NewImportRepository(db *gorm.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

func (r *ImportRepository) Create(imp *model.BulkImport, tracks []*model.BulkImportTrack) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(imp).Error; err != nil {
			return err
		}
		if len(tracks) > 0 {
			if err := tx.Create(tracks).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ImportRepository) FindByID(id string) (*model.BulkImport, error) {
	var imp model.BulkImport
	err := r.db.Where("id = ?", id).First(&imp).Error
	if err != nil {
		return nil, err
	}
	return &imp, nil
}

func (r *ImportRepository) ListRecent(limit int) ([]*model.BulkImport, error) {
	var imports []*model.BulkImport
	err := r.db.Order("created_at DESC").Limit(limit).Find(&imports).Error
	return imports, err
}

func (r *ImportRepository) ListTracks(importID string) ([]*model.BulkImportTrack, error) {
	var tracks []*model.BulkImportTrack
	err := r.db.Where("import_id = ?", importID).
		Order("line_num ASC").
		Find(&tracks).Error
	return tracks, err
}

func (r *ImportRepository) UpdateStatus(id, status string) error {
	return r.db.Model(&model.BulkImport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *ImportRepository) UpdateCounts(id string, searched, queued, failed, skipped int) error {
	return r.db.Model(&model.BulkImport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"searched":   searched,
			"queued":     queued,
			"failed":     failed,
			"skipped":    skipped,
			"updated_at": time.Now(),
		}).Error
}

func (r *ImportRepository) MarkCompleted(id string) error {
	now := time.Now()
	return r.db.Model(&model.BulkImport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       "completed",
			"completed_at": &now,
			"updated_at":   now,
		}).Error
}

func (r *ImportRepository) MarkError(id string, err error) error {
	return r.db.Model(&model.BulkImport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     "error",
			"error":      err.Error(),
			"updated_at": time.Now(),
		}).Error
}

func (r *ImportRepository) UpdateTrack(trackID uint, status, jobID, errMsg string) error {
	updates := map[string]interface{}{"status": status}
	if jobID != "" {
		updates["job_id"] = jobID
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return r.db.Model(&model.BulkImportTrack{}).
		Where("id = ?", trackID).
		Updates(updates).Error
}
