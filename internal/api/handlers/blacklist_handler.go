package handlers

import (
	"net/http"
	"strconv"

	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BlacklistHandler edits the source result blocklist.
type BlacklistHandler struct {
	repo   *repository.BlacklistRepository
	logger *zap.Logger
}

func NewBlacklistHandler(repo *repository.BlacklistRepository, logger *zap.Logger) *BlacklistHandler {
	return &BlacklistHandler{repo: repo, logger: logger}
}

type CreateBlacklistRequest struct {
	Source     string `json:"source" binding:"required"`
	ExternalID string `json:"external_id"`
	Uploader   string `json:"uploader"`
	Reason     string `json:"reason"`
	Note       string `json:"note"`
}

// Create blocks an external id outright, or penalizes every result from
// an uploader. One of the two must be given.
func (h *BlacklistHandler) Create(c *gin.Context) {
	var req CreateBlacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ExternalID == "" && req.Uploader == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "external_id or uploader is required"})
		return
	}

	entry := &model.BlacklistEntry{
		Source:     req.Source,
		ExternalID: req.ExternalID,
		Uploader:   req.Uploader,
		Reason:     req.Reason,
		Note:       req.Note,
	}
	if err := h.repo.Create(entry); err != nil {
		h.logger.Error("failed to create blacklist entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create entry"})
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (h *BlacklistHandler) List(c *gin.Context) {
	entries, err := h.repo.List()
	if err != nil {
		h.logger.Error("failed to list blacklist", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list blacklist"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *BlacklistHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return
	}
	if err := h.repo.Delete(uint(id)); err != nil {
		h.logger.Error("failed to delete blacklist entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
