package repository

import (
	"path/filepath"
	"testing"

	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, InitDB(db))
	return db
}

func TestBlacklistIsBlocked(t *testing.T) {
	repo := NewBlacklistRepository(testDB(t))

	require.NoError(t, repo.Create(&model.BlacklistEntry{
		Source:     "extraction",
		ExternalID: "dQw4w9WgXcQ",
		Reason:     "wrong_track",
	}))

	// The aggregator consults the repository through this interface
	var bl search.Blacklist = repo

	assert.True(t, bl.IsBlocked(search.SourceExtraction, "dQw4w9WgXcQ"))
	assert.False(t, bl.IsBlocked(search.SourceExtraction, "other"))
	assert.False(t, bl.IsBlocked(search.SourceCatalogue, "dQw4w9WgXcQ"))
	assert.False(t, bl.IsBlocked(search.SourceExtraction, ""))
}

func TestBlacklistIsUploaderBlocked(t *testing.T) {
	repo := NewBlacklistRepository(testDB(t))

	require.NoError(t, repo.Create(&model.BlacklistEntry{
		Source:   "peer",
		Uploader: "baduser",
		Reason:   "poor_quality",
	}))
	// An id-specific entry must not penalize the whole uploader
	require.NoError(t, repo.Create(&model.BlacklistEntry{
		Source:     "peer",
		ExternalID: "one-file",
		Uploader:   "mixeduser",
	}))

	var bl search.Blacklist = repo

	assert.True(t, bl.IsUploaderBlocked(search.SourcePeer, "baduser"))
	assert.False(t, bl.IsUploaderBlocked(search.SourcePeer, "mixeduser"))
	assert.False(t, bl.IsUploaderBlocked(search.SourcePeer, ""))
}
