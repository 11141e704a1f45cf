package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/notify"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newJobRepo(t *testing.T) *repository.JobRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "jobs.db")), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, repository.InitDB(db))
	return repository.NewJobRepository(db)
}

func newFailTask(t *testing.T, maxRetries int) (*DownloadTask, *repository.JobRepository) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Worker.RetryMaxAttempts = maxRetries

	repo := newJobRepo(t)
	return &DownloadTask{
		cfg:      cfg,
		repo:     repo,
		notifier: notify.NewNotifier(&config.NotifyConfig{Timeout: time.Second}, zap.NewNop()),
		logger:   zap.NewNop(),
	}, repo
}

func seedJob(t *testing.T, repo *repository.JobRepository, job *model.Job) *model.Job {
	t.Helper()
	if job.Status == "" {
		job.Status = model.JobStatusDownloading
	}
	require.NoError(t, repo.Create(job))
	return job
}

func TestFailJobRequeuesTransientError(t *testing.T) {
	task, repo := newFailTask(t, 2)
	job := seedJob(t, repo, &model.Job{
		ID:             "j1",
		IdempotencyKey: "extraction:j1",
		Source:         "extraction",
		TrackKey:       "daft punk|get lucky",
	})

	err := task.failJob(context.Background(), &jobContext{job: job}, model.JobStatusDownloading,
		errors.New("connection reset by peer"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "transient error must let the queue redeliver")

	got, err := repo.FindByID("j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.Error, "connection reset")
	assert.False(t, got.IsTerminal())
}

func TestFailJobExhaustsAttemptBudget(t *testing.T) {
	task, repo := newFailTask(t, 2)
	seedJob(t, repo, &model.Job{
		ID:             "j2",
		IdempotencyKey: "extraction:j2",
		Source:         "extraction",
	})

	transient := errors.New("request timed out")
	for attempt := 1; attempt <= 2; attempt++ {
		current, err := repo.FindByID("j2")
		require.NoError(t, err)
		require.NoError(t, repo.UpdateStatus("j2", model.JobStatusDownloading, ""))
		current.Status = model.JobStatusDownloading

		task.failJob(context.Background(), &jobContext{job: current}, model.JobStatusDownloading, transient)

		got, err := repo.FindByID("j2")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusQueued, got.Status, "attempt %d should requeue", attempt)
		assert.Equal(t, attempt, got.RetryCount)
	}

	// Third attempt exceeds the budget of 2 and is terminal
	current, err := repo.FindByID("j2")
	require.NoError(t, err)
	task.failJob(context.Background(), &jobContext{job: current}, model.JobStatusDownloading, transient)

	got, err := repo.FindByID("j2")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
}

func TestFailJobTerminalForNonRetryable(t *testing.T) {
	task, repo := newFailTask(t, 3)
	job := seedJob(t, repo, &model.Job{
		ID:             "j3",
		IdempotencyKey: "catalogue:j3",
		Source:         "catalogue",
	})

	err := task.failJob(context.Background(), &jobContext{job: job}, model.JobStatusResolvingSource,
		search.ErrContentUnavailable)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	got, err := repo.FindByID("j3")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount, "lost causes must not burn attempts")
}

func TestYieldsTo(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	job := &model.Job{ID: "b", Status: model.JobStatusQueued, CreatedAt: base}

	processing := &model.Job{ID: "a", Status: model.JobStatusDownloading, CreatedAt: base.Add(time.Minute)}
	assert.True(t, yieldsTo(job, processing), "a job past queued always holds the track")

	olderQueued := &model.Job{ID: "a", Status: model.JobStatusQueued, CreatedAt: base.Add(-time.Minute)}
	assert.True(t, yieldsTo(job, olderQueued))

	newerQueued := &model.Job{ID: "a", Status: model.JobStatusQueued, CreatedAt: base.Add(time.Minute)}
	assert.False(t, yieldsTo(job, newerQueued))

	// Same creation instant: the id decides, and only one side yields
	tied := &model.Job{ID: "a", Status: model.JobStatusQueued, CreatedAt: base}
	assert.True(t, yieldsTo(job, tied))
	assert.False(t, yieldsTo(tied, job))
}

func TestCoalesceOntoActiveWinner(t *testing.T) {
	task, repo := newFailTask(t, 1)
	seedJob(t, repo, &model.Job{
		ID:             "winner",
		IdempotencyKey: "extraction:w",
		Status:         model.JobStatusDownloading,
		TrackKey:       "burial|archangel",
	})
	loser := seedJob(t, repo, &model.Job{
		ID:             "loser",
		IdempotencyKey: "peer:l",
		Status:         model.JobStatusQueued,
		TrackKey:       "burial|archangel",
	})

	require.NoError(t, task.coalesce(loser))

	got, err := repo.FindByID("loser")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDuplicate, got.Status)
	assert.Equal(t, "winner", got.DuplicateOf)
}

func TestCoalesceFallsBackToFinishedWinner(t *testing.T) {
	task, repo := newFailTask(t, 1)
	seedJob(t, repo, &model.Job{
		ID:             "done",
		IdempotencyKey: "extraction:d",
		Status:         model.JobStatusCompleted,
		TrackKey:       "moderat|a new error",
		FilePath:       "/music/Moderat/A New Error.flac",
	})
	loser := seedJob(t, repo, &model.Job{
		ID:             "late",
		IdempotencyKey: "peer:late",
		Status:         model.JobStatusQueued,
		TrackKey:       "moderat|a new error",
	})

	require.NoError(t, task.coalesce(loser))

	got, err := repo.FindByID("late")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDuplicate, got.Status)
	assert.Equal(t, "done", got.DuplicateOf, "the duplicate-of pointer must name the job that placed the file")
}
