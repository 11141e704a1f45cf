package worker

import (
	"context"
	"fmt"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// EnqueueOptions tag the job being created.
type EnqueueOptions struct {
	Kind          string
	PlaylistID    string
	ImportID      string
	ConvertToFLAC bool
}

// Enqueuer turns chosen candidates into persisted jobs plus queued tasks.
// It is shared by the API handlers, the playlist scheduler and bulk import.
type Enqueuer struct {
	cfg        *config.Config
	repo       *repository.JobRepository
	aggregator *search.Aggregator
	client     *asynq.Client
	logger     *zap.Logger
}

func NewEnqueuer(
	cfg *config.Config,
	repo *repository.JobRepository,
	aggregator *search.Aggregator,
	client *asynq.Client,
	logger *zap.Logger,
) *Enqueuer {
	return &Enqueuer{
		cfg:        cfg,
		repo:       repo,
		aggregator: aggregator,
		client:     client,
		logger:     logger,
	}
}

// EnqueueCandidate persists a job for the chosen candidate and queues its
// download task. A job already carrying the same source identity is
// returned as-is when it is active or done; a failed one is revived.
func (e *Enqueuer) EnqueueCandidate(ctx context.Context, cand search.Candidate, opts EnqueueOptions) (*model.Job, error) {
	key := fmt.Sprintf("%s:%s", cand.Source, cand.ExternalID)

	existing, err := e.repo.FindByIdempotencyKey(key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if existing != nil {
		switch {
		case existing.IsActive(),
			existing.Status == model.JobStatusCompleted,
			existing.Status == model.JobStatusDuplicate:
			e.logger.Info("duplicate request coalesced onto existing job",
				zap.String("job_id", existing.ID),
				zap.String("status", existing.Status))
			return existing, nil
		default:
			return e.revive(ctx, existing, cand, opts)
		}
	}

	job := &model.Job{
		ID:             uuid.New().String(),
		IdempotencyKey: key,
		Kind:           opts.Kind,
		Source:         string(cand.Source),
		ExternalID:     cand.ExternalID,
		SourceURL:      cand.URL,
		Quality:        cand.Tier.String(),
		PeerUser:       cand.PeerUser,
		PeerFile:       cand.PeerFile,
		Title:          cand.Title,
		Artist:         cand.Artist,
		Album:          cand.Album,
		Year:           cand.Year,
		CoverURL:       cand.CoverURL,
		Duration:       cand.Duration,
		TrackKey:       search.NormalizeKey(cand.Artist, cand.Title),
		Status:         model.JobStatusQueued,
		ConvertToFLAC:  opts.ConvertToFLAC,
		PlaylistID:     opts.PlaylistID,
		ImportID:       opts.ImportID,
	}

	if err := e.repo.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := e.dispatch(ctx, job.ID); err != nil {
		e.repo.MarkFailed(job.ID, err)
		return nil, err
	}

	e.logger.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("source", job.Source),
		zap.String("artist", job.Artist),
		zap.String("title", job.Title))
	return job, nil
}

// revive resets a failed job in place and queues it again. The unique
// idempotency key forbids a fresh row for the same source identity.
func (e *Enqueuer) revive(ctx context.Context, job *model.Job, cand search.Candidate, opts EnqueueOptions) (*model.Job, error) {
	job.Status = model.JobStatusQueued
	job.Error = ""
	job.Message = ""
	job.Progress = 0
	job.ConvertToFLAC = opts.ConvertToFLAC
	if opts.PlaylistID != "" {
		job.PlaylistID = opts.PlaylistID
	}
	if opts.ImportID != "" {
		job.ImportID = opts.ImportID
	}

	if err := e.repo.Update(job); err != nil {
		return nil, fmt.Errorf("failed to revive job: %w", err)
	}
	if err := e.dispatch(ctx, job.ID); err != nil {
		e.repo.MarkFailed(job.ID, err)
		return nil, err
	}

	e.logger.Info("failed job revived", zap.String("job_id", job.ID))
	return job, nil
}

// Retry re-queues an existing job by id without changing its snapshot.
func (e *Enqueuer) Retry(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := e.repo.FindByID(jobID)
	if err != nil {
		return nil, err
	}
	if job.IsActive() {
		return job, nil
	}

	job.Status = model.JobStatusQueued
	job.Error = ""
	job.Progress = 0
	if err := e.repo.Update(job); err != nil {
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}
	if err := e.dispatch(ctx, job.ID); err != nil {
		e.repo.MarkFailed(job.ID, err)
		return nil, err
	}
	return job, nil
}

// SearchAndEnqueue finds the best candidate for a track and queues it.
// Returns nil, nil when no source has the track.
func (e *Enqueuer) SearchAndEnqueue(ctx context.Context, artist, title string, opts EnqueueOptions) (*model.Job, error) {
	query := title
	if artist != "" {
		query = artist + " " + title
	}

	candidates, errs := e.aggregator.Search(ctx, query, nil, e.cfg.Aggregator.DefaultLimit)
	if len(candidates) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("all sources failed for %q", query)
		}
		return nil, nil
	}

	return e.EnqueueCandidate(ctx, candidates[0], opts)
}

func (e *Enqueuer) dispatch(ctx context.Context, jobID string) error {
	task, err := NewDownloadTrackTask(jobID, e.cfg.Worker.RetryMaxAttempts)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
