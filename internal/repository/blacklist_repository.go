package repository

import (
	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"gorm.io/gorm"
)

// BlacklistRepository persists block rules and answers the aggregator's
// filtering queries.
type BlacklistRepository struct {
	db *gorm.DB
}

var _ search.Blacklist = (*BlacklistRepository)(nil)

func NewBlacklistRepository(db *gorm.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

func (r *BlacklistRepository) Create(entry *model.BlacklistEntry) error {
	return r.db.Create(entry).Error
}

func (r *BlacklistRepository) List() ([]*model.BlacklistEntry, error) {
	var entries []*model.BlacklistEntry
	err := r.db.Order("created_at DESC").Find(&entries).Error
	return entries, err
}

func (r *BlacklistRepository) Delete(id uint) error {
	return r.db.Delete(&model.BlacklistEntry{}, id).Error
}

// IsBlocked reports whether a specific external id is blocked for a source.
// Lookup errors fail open; a DB hiccup must not empty search results.
func (r *BlacklistRepository) IsBlocked(source search.SourceTag, externalID string) bool {
	if externalID == "" {
		return false
	}
	var count int64
	err := r.db.Model(&model.BlacklistEntry{}).
		Where("source = ? AND external_id = ?", string(source), externalID).
		Count(&count).Error
	return err == nil && count > 0
}

// IsUploaderBlocked reports whether an uploader is penalized for a source.
func (r *BlacklistRepository) IsUploaderBlocked(source search.SourceTag, uploader string) bool {
	if uploader == "" {
		return false
	}
	var count int64
	err := r.db.Model(&model.BlacklistEntry{}).
		Where("source = ? AND uploader = ? AND external_id = ''", string(source), uploader).
		Count(&count).Error
	return err == nil && count > 0
}
