package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/library"
	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/notify"
	"github.com/cvlogg/musicgrabber2/internal/playlist"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// PlaylistChecker diffs one watched playlist against its seen-track set
// and queues downloads for anything new.
type PlaylistChecker struct {
	cfg          *config.Config
	playlistRepo *repository.PlaylistRepository
	jobRepo      *repository.JobRepository
	provider     *playlist.Service
	enqueuer     *Enqueuer
	notifier     *notify.Notifier
	logger       *zap.Logger
}

func NewPlaylistChecker(
	cfg *config.Config,
	playlistRepo *repository.PlaylistRepository,
	jobRepo *repository.JobRepository,
	provider *playlist.Service,
	enqueuer *Enqueuer,
	notifier *notify.Notifier,
	logger *zap.Logger,
) *PlaylistChecker {
	return &PlaylistChecker{
		cfg:          cfg,
		playlistRepo: playlistRepo,
		jobRepo:      jobRepo,
		provider:     provider,
		enqueuer:     enqueuer,
		notifier:     notifier,
		logger:       logger,
	}
}

func (t *PlaylistChecker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload PlaylistCheckPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload failed: %w", err)
	}

	pl, err := t.playlistRepo.FindByID(payload.PlaylistID)
	if err != nil {
		return fmt.Errorf("failed to find playlist: %w", err)
	}

	t.logger.Info("checking watched playlist",
		zap.String("playlist_id", pl.ID),
		zap.String("provider", pl.Provider),
		zap.String("name", pl.Name))

	list, err := t.provider.FetchTracklist(ctx, pl.URL, pl.Provider)
	if err != nil {
		// The check clock stays put; the next tick retries from the same point
		t.logger.Warn("playlist fetch failed",
			zap.String("playlist_id", pl.ID),
			zap.Error(err))
		if markErr := t.playlistRepo.MarkCheckFailed(pl.ID, err); markErr != nil {
			t.logger.Error("failed to record fetch error", zap.Error(markErr))
		}
		return fmt.Errorf("playlist fetch failed: %w", err)
	}

	if list.Warning != "" {
		t.logger.Warn("playlist fetch warning",
			zap.String("playlist_id", pl.ID),
			zap.String("warning", list.Warning))
	}

	seen, err := t.playlistRepo.SeenHashes(pl.ID)
	if err != nil {
		return fmt.Errorf("failed to load seen tracks: %w", err)
	}

	var newTracks []*model.WatchedTrack
	for _, track := range list.Tracks {
		hash := search.TrackHash(track.Artist, track.Title)
		if seen[hash] {
			continue
		}
		seen[hash] = true
		newTracks = append(newTracks, &model.WatchedTrack{
			PlaylistID: pl.ID,
			TrackHash:  hash,
			Artist:     track.Artist,
			Title:      track.Title,
		})
	}

	if len(newTracks) > 0 {
		if err := t.playlistRepo.AddSeenTracks(newTracks); err != nil {
			return fmt.Errorf("failed to record new tracks: %w", err)
		}
	}

	queued, failed := 0, 0
	for _, track := range newTracks {
		job, err := t.enqueuer.SearchAndEnqueue(ctx, track.Artist, track.Title, EnqueueOptions{
			Kind:          model.JobKindWatchedTrigger,
			PlaylistID:    pl.ID,
			ConvertToFLAC: pl.ConvertToFLAC,
		})
		if err != nil || job == nil {
			failed++
			t.logger.Warn("failed to queue watched track",
				zap.String("artist", track.Artist),
				zap.String("title", track.Title),
				zap.Error(err))
			continue
		}
		queued++
		if err := t.playlistRepo.SetTrackJob(pl.ID, track.TrackHash, job.ID); err != nil {
			t.logger.Error("failed to link track to job", zap.Error(err))
		}
	}

	// Fetch succeeded; only now does the clock advance
	if err := t.playlistRepo.MarkChecked(pl.ID, time.Now(), len(list.Tracks)); err != nil {
		return fmt.Errorf("failed to mark playlist checked: %w", err)
	}

	if pl.MakeM3U {
		if err := t.rebuildM3U(pl); err != nil {
			t.logger.Warn("m3u rebuild failed", zap.Error(err))
		}
	}

	t.logger.Info("playlist check done",
		zap.String("playlist_id", pl.ID),
		zap.Int("total", len(list.Tracks)),
		zap.Int("new", len(newTracks)),
		zap.Int("queued", queued))

	if len(newTracks) > 0 {
		status := "completed"
		if failed > 0 {
			status = "completed_with_errors"
		}
		t.notifier.Send(ctx, notify.Event{
			Type:         notify.TypePlaylist,
			PlaylistName: pl.Name,
			Status:       status,
			TrackCount:   len(newTracks),
			FailedCount:  failed,
		})
	}

	return nil
}

// rebuildM3U rewrites the playlist file from every completed member job.
func (t *PlaylistChecker) rebuildM3U(pl *model.WatchedPlaylist) error {
	jobs, err := t.jobRepo.ListByPlaylist(pl.ID)
	if err != nil {
		return err
	}

	var paths []string
	for _, job := range jobs {
		if job.Status == model.JobStatusCompleted && job.FilePath != "" {
			paths = append(paths, job.FilePath)
		}
	}
	if len(paths) == 0 {
		return nil
	}

	m3uPath := pl.M3UPath
	if m3uPath == "" {
		name := library.SanitizeFilename(pl.Name)
		if name == "" {
			name = pl.ID
		}
		m3uPath = filepath.Join(t.cfg.Library.MusicDir, t.cfg.Library.PlaylistsSubdir, name+".m3u")
	}

	return library.WriteM3U(m3uPath, pl.Name, paths)
}

// Scheduler owns the periodic work: ticking due playlists onto the queue
// and sweeping stale jobs.
type Scheduler struct {
	cfg          *config.Config
	playlistRepo *repository.PlaylistRepository
	jobRepo      *repository.JobRepository
	client       *asynq.Client
	logger       *zap.Logger
}

func NewScheduler(
	cfg *config.Config,
	playlistRepo *repository.PlaylistRepository,
	jobRepo *repository.JobRepository,
	client *asynq.Client,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		playlistRepo: playlistRepo,
		jobRepo:      jobRepo,
		client:       client,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	playlistTicker := time.NewTicker(s.cfg.Scheduler.TickInterval)
	staleTicker := time.NewTicker(s.cfg.Worker.StaleJobInterval)
	defer playlistTicker.Stop()
	defer staleTicker.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("tick_interval", s.cfg.Scheduler.TickInterval),
		zap.Duration("stale_interval", s.cfg.Worker.StaleJobInterval))

	// Run one pass right away so a restart doesn't delay due checks
	s.tickPlaylists(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-playlistTicker.C:
			s.tickPlaylists(ctx)
		case <-staleTicker.C:
			s.sweepStale()
		}
	}
}

func (s *Scheduler) tickPlaylists(ctx context.Context) {
	due, err := s.playlistRepo.ListDue(time.Now())
	if err != nil {
		s.logger.Error("failed to list due playlists", zap.Error(err))
		return
	}

	for _, pl := range due {
		task, err := NewPlaylistCheckTask(pl.ID)
		if err != nil {
			s.logger.Error("failed to build playlist check task", zap.Error(err))
			continue
		}
		if _, err := s.client.EnqueueContext(ctx, task); err != nil {
			s.logger.Error("failed to enqueue playlist check",
				zap.String("playlist_id", pl.ID),
				zap.Error(err))
			continue
		}
		s.logger.Debug("playlist check queued", zap.String("playlist_id", pl.ID))
	}
}

func (s *Scheduler) sweepStale() {
	count, err := s.jobRepo.FailStale(s.cfg.Worker.StaleJobTimeout)
	if err != nil {
		s.logger.Error("stale job sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Warn("failed stale jobs", zap.Int64("count", count))
	}
}
