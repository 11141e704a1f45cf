package handlers

import (
	"net/http"
	"strconv"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/library"
	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/cvlogg/musicgrabber2/internal/worker"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JobHandler owns the download endpoints.
type JobHandler struct {
	cfg      *config.Config
	repo     *repository.JobRepository
	enqueuer *worker.Enqueuer
	placer   *library.Placer
	logger   *zap.Logger
}

func NewJobHandler(
	cfg *config.Config,
	repo *repository.JobRepository,
	enqueuer *worker.Enqueuer,
	placer *library.Placer,
	logger *zap.Logger,
) *JobHandler {
	return &JobHandler{
		cfg:      cfg,
		repo:     repo,
		enqueuer: enqueuer,
		placer:   placer,
		logger:   logger,
	}
}

// CreateJobRequest carries the chosen candidate snapshot from a prior
// search response, or just artist/title for a blind best-match enqueue.
type CreateJobRequest struct {
	Candidate     *search.Candidate `json:"candidate"`
	Artist        string            `json:"artist"`
	Title         string            `json:"title"`
	ConvertToFLAC bool              `json:"convert_to_flac"`
}

type CreateJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Create enqueues a download. Posting the same source identity twice
// returns the existing job instead of a second copy.
func (h *JobHandler) Create(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := worker.EnqueueOptions{
		Kind:          model.JobKindSingle,
		ConvertToFLAC: req.ConvertToFLAC,
	}

	var job *model.Job
	var err error
	switch {
	case req.Candidate != nil:
		job, err = h.enqueuer.EnqueueCandidate(c.Request.Context(), *req.Candidate, opts)
	case req.Title != "":
		job, err = h.enqueuer.SearchAndEnqueue(c.Request.Context(), req.Artist, req.Title, opts)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "candidate or title is required"})
		return
	}

	if err != nil {
		h.logger.Error("failed to enqueue download", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue download"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no source has this track"})
		return
	}

	c.JSON(http.StatusOK, CreateJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// Get returns one job with its full status snapshot.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.repo.FindByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// List returns recent jobs, optionally filtered by status.
func (h *JobHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var jobs []*model.Job
	var err error
	if status := c.Query("status"); status != "" {
		jobs, err = h.repo.ListByStatus(status, limit)
	} else {
		jobs, err = h.repo.ListRecent(limit)
	}
	if err != nil {
		h.logger.Error("failed to list jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// Retry re-queues a failed job with the same candidate snapshot.
func (h *JobHandler) Retry(c *gin.Context) {
	jobID := c.Param("id")

	job, err := h.repo.FindByID(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if job.Status != model.JobStatusFailed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only failed jobs can be retried"})
		return
	}

	job, err = h.enqueuer.Retry(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("failed to retry job", zap.String("job_id", jobID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// Delete removes a completed download: the placed file, its sidecars
// and the job record. Only completed jobs can be deleted; anything else
// either still holds the track or never produced a file.
func (h *JobHandler) Delete(c *gin.Context) {
	jobID := c.Param("id")

	job, err := h.repo.FindByID(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if job.Status != model.JobStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "only completed jobs can be deleted"})
		return
	}

	if job.FilePath != "" {
		if err := h.placer.Delete(job.FilePath); err != nil {
			h.logger.Warn("failed to remove placed file",
				zap.String("job_id", job.ID),
				zap.String("path", job.FilePath),
				zap.Error(err))
		}
	}

	if err := h.repo.MarkDeleted(job.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": job.ID,
		"status": model.JobStatusDeleted,
	})
}

// Health reports liveness plus queue depth.
func (h *JobHandler) Health(c *gin.Context) {
	queued, err := h.repo.CountByStatus(model.JobStatusQueued)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"components": gin.H{
			"database": "healthy",
		},
		"stats": gin.H{
			"queued_jobs": queued,
		},
	})
}
