package handlers

import (
	"net/http"
	"time"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/playlist"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/cvlogg/musicgrabber2/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const defaultRefreshInterval = time.Hour

// PlaylistHandler manages watched playlists. The scheduler does the
// actual checking; these endpoints only edit the watch list and can
// push a check onto the queue ahead of schedule.
type PlaylistHandler struct {
	cfg    *config.Config
	repo   *repository.PlaylistRepository
	client *asynq.Client
	logger *zap.Logger
}

func NewPlaylistHandler(
	cfg *config.Config,
	repo *repository.PlaylistRepository,
	client *asynq.Client,
	logger *zap.Logger,
) *PlaylistHandler {
	return &PlaylistHandler{
		cfg:    cfg,
		repo:   repo,
		client: client,
		logger: logger,
	}
}

type WatchPlaylistRequest struct {
	URL             string `json:"url" binding:"required"`
	Name            string `json:"name"`
	RefreshMinutes  int    `json:"refresh_minutes"`
	ConvertToFLAC   bool   `json:"convert_to_flac"`
	MakeM3U         bool   `json:"make_m3u"`
	M3UPath         string `json:"m3u_path"`
	UsePlaylistsDir bool   `json:"use_playlists_dir"`
}

// Create registers a playlist URL for watching. The first check runs
// right away instead of waiting for the next scheduler tick.
func (h *PlaylistHandler) Create(c *gin.Context) {
	var req WatchPlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider, err := playlist.DetectProvider(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := h.repo.FindByURL(req.URL)
	if err != nil {
		h.logger.Error("failed to check playlist url", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusOK, existing)
		return
	}

	interval := defaultRefreshInterval
	if req.RefreshMinutes > 0 {
		interval = time.Duration(req.RefreshMinutes) * time.Minute
	}

	pl := &model.WatchedPlaylist{
		ID:              uuid.New().String(),
		URL:             req.URL,
		Provider:        provider,
		Name:            req.Name,
		Enabled:         true,
		ConvertToFLAC:   req.ConvertToFLAC,
		RefreshInterval: interval,
		MakeM3U:         req.MakeM3U,
		M3UPath:         req.M3UPath,
		UsePlaylistsDir: req.UsePlaylistsDir,
	}

	if err := h.repo.Create(pl); err != nil {
		h.logger.Error("failed to create watched playlist", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create playlist"})
		return
	}

	if err := h.enqueueCheck(c, pl.ID); err != nil {
		h.logger.Warn("initial playlist check not queued", zap.Error(err))
	}

	h.logger.Info("watched playlist created",
		zap.String("playlist_id", pl.ID),
		zap.String("provider", provider),
		zap.String("url", req.URL))

	c.JSON(http.StatusCreated, pl)
}

func (h *PlaylistHandler) List(c *gin.Context) {
	playlists, err := h.repo.List()
	if err != nil {
		h.logger.Error("failed to list playlists", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list playlists"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"playlists": playlists,
		"count":     len(playlists),
	})
}

func (h *PlaylistHandler) Get(c *gin.Context) {
	pl, err := h.repo.FindByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "playlist not found"})
		return
	}

	tracks, err := h.repo.ListTracks(pl.ID)
	if err != nil {
		h.logger.Error("failed to list playlist tracks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"playlist": pl,
		"tracks":   tracks,
	})
}

type UpdatePlaylistRequest struct {
	Name           *string `json:"name"`
	Enabled        *bool   `json:"enabled"`
	RefreshMinutes *int    `json:"refresh_minutes"`
	ConvertToFLAC  *bool   `json:"convert_to_flac"`
	MakeM3U        *bool   `json:"make_m3u"`
	M3UPath        *string `json:"m3u_path"`
}

// Update patches the mutable fields. Absent fields stay untouched.
func (h *PlaylistHandler) Update(c *gin.Context) {
	pl, err := h.repo.FindByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "playlist not found"})
		return
	}

	var req UpdatePlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		pl.Name = *req.Name
	}
	if req.Enabled != nil {
		pl.Enabled = *req.Enabled
	}
	if req.RefreshMinutes != nil && *req.RefreshMinutes > 0 {
		pl.RefreshInterval = time.Duration(*req.RefreshMinutes) * time.Minute
	}
	if req.ConvertToFLAC != nil {
		pl.ConvertToFLAC = *req.ConvertToFLAC
	}
	if req.MakeM3U != nil {
		pl.MakeM3U = *req.MakeM3U
	}
	if req.M3UPath != nil {
		pl.M3UPath = *req.M3UPath
	}

	if err := h.repo.Update(pl); err != nil {
		h.logger.Error("failed to update playlist", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update playlist"})
		return
	}

	c.JSON(http.StatusOK, pl)
}

// Delete stops watching. Already downloaded files stay in the library.
func (h *PlaylistHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.repo.FindByID(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "playlist not found"})
		return
	}

	if err := h.repo.Delete(id); err != nil {
		h.logger.Error("failed to delete playlist", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete playlist"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"playlist_id": id, "deleted": true})
}

// Refresh queues a check now, regardless of the refresh interval.
func (h *PlaylistHandler) Refresh(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.repo.FindByID(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "playlist not found"})
		return
	}

	if err := h.enqueueCheck(c, id); err != nil {
		h.logger.Error("failed to enqueue playlist check", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue check"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"playlist_id": id, "status": "check queued"})
}

func (h *PlaylistHandler) enqueueCheck(c *gin.Context, playlistID string) error {
	task, err := worker.NewPlaylistCheckTask(playlistID)
	if err != nil {
		return err
	}
	_, err = h.client.EnqueueContext(c.Request.Context(), task)
	return err
}
