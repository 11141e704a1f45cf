package handlers

import (
	"net/http"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/cvlogg/musicgrabber2/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ImportHandler accepts pasted tracklists and reports import progress.
type ImportHandler struct {
	cfg    *config.Config
	repo   *repository.ImportRepository
	client *asynq.Client
	logger *zap.Logger
}

func NewImportHandler(
	cfg *config.Config,
	repo *repository.ImportRepository,
	client *asynq.Client,
	logger *zap.Logger,
) *ImportHandler {
	return &ImportHandler{
		cfg:    cfg,
		repo:   repo,
		client: client,
		logger: logger,
	}
}

type CreateImportRequest struct {
	Text          string `json:"text" binding:"required"`
	ConvertToFLAC bool   `json:"convert_to_flac"`
	PlaylistName  string `json:"playlist_name"`
}

// Create parses the pasted text, persists the import with its tracks
// and queues the background processor.
func (h *ImportHandler) Create(c *gin.Context) {
	var req CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tracks := worker.ParseImportText(req.Text)
	if len(tracks) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no usable lines in import text"})
		return
	}

	imp := &model.BulkImport{
		ID:            uuid.New().String(),
		Status:        model.ImportStatusPending,
		TotalTracks:   len(tracks),
		ConvertToFLAC: req.ConvertToFLAC,
		PlaylistName:  req.PlaylistName,
	}
	for _, track := range tracks {
		track.ImportID = imp.ID
	}

	if err := h.repo.Create(imp, tracks); err != nil {
		h.logger.Error("failed to create bulk import", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create import"})
		return
	}

	task, err := worker.NewBulkImportTask(imp.ID)
	if err == nil {
		_, err = h.client.EnqueueContext(c.Request.Context(), task)
	}
	if err != nil {
		h.logger.Error("failed to enqueue bulk import", zap.Error(err))
		h.repo.MarkError(imp.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue import"})
		return
	}

	h.logger.Info("bulk import created",
		zap.String("import_id", imp.ID),
		zap.Int("tracks", len(tracks)))

	c.JSON(http.StatusCreated, gin.H{
		"import_id":    imp.ID,
		"total_tracks": imp.TotalTracks,
		"status":       imp.Status,
	})
}

// Get returns the import counters plus per-line outcomes.
func (h *ImportHandler) Get(c *gin.Context) {
	imp, err := h.repo.FindByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "import not found"})
		return
	}

	tracks, err := h.repo.ListTracks(imp.ID)
	if err != nil {
		h.logger.Error("failed to list import tracks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"import": imp,
		"tracks": tracks,
	})
}

func (h *ImportHandler) List(c *gin.Context) {
	imports, err := h.repo.ListRecent(20)
	if err != nil {
		h.logger.Error("failed to list imports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list imports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"imports": imports,
		"count":   len(imports),
	})
}
