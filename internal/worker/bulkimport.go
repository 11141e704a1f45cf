package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/notify"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	listNumberRe = regexp.MustCompile(`^\d+[\.\)]\s*`)
	bulletRe     = regexp.MustCompile(`^[•\-\*]\s*`)
	musicNoteRe  = regexp.MustCompile(`[♫♪🎵🎶]`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// CleanImportLine strips the list dressing people paste in with their
// tracklists: "12. ", "3) ", bullets, note glyphs, tabs. Comment lines
// starting with # come back empty.
func CleanImportLine(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return ""
	}
	line = listNumberRe.ReplaceAllString(line, "")
	line = bulletRe.ReplaceAllString(line, "")
	line = musicNoteRe.ReplaceAllString(line, "")
	line = multiSpaceRe.ReplaceAllString(line, " ")
	return strings.TrimSpace(line)
}

// ParseImportLine splits a cleaned line into artist and title on the
// first " - ". Lines without a separator become title-only queries.
func ParseImportLine(line string) (artist, title string) {
	if idx := strings.Index(line, " - "); idx >= 0 {
		return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+3:])
	}
	return "", line
}

// ParseImportText cleans every line of a pasted tracklist and keeps the
// non-empty ones in order.
func ParseImportText(text string) []*model.BulkImportTrack {
	var tracks []*model.BulkImportTrack
	for i, raw := range strings.Split(text, "\n") {
		line := CleanImportLine(raw)
		if line == "" {
			continue
		}
		artist, title := ParseImportLine(line)
		tracks = append(tracks, &model.BulkImportTrack{
			LineNum: i + 1,
			Artist:  artist,
			Title:   title,
			Status:  model.ImportTrackStatusPending,
		})
	}
	return tracks
}

// BulkImporter walks a pasted tracklist line by line, searching every
// source for each entry and queueing the best candidate. Searches are
// paced so a 200-line paste does not hammer the upstreams.
type BulkImporter struct {
	cfg        *config.Config
	importRepo *repository.ImportRepository
	enqueuer   *Enqueuer
	notifier   *notify.Notifier
	logger     *zap.Logger
}

func NewBulkImporter(
	cfg *config.Config,
	importRepo *repository.ImportRepository,
	enqueuer *Enqueuer,
	notifier *notify.Notifier,
	logger *zap.Logger,
) *BulkImporter {
	return &BulkImporter{
		cfg:        cfg,
		importRepo: importRepo,
		enqueuer:   enqueuer,
		notifier:   notifier,
		logger:     logger,
	}
}

func (t *BulkImporter) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload BulkImportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload failed: %w", err)
	}

	imp, err := t.importRepo.FindByID(payload.ImportID)
	if err != nil {
		return fmt.Errorf("failed to find import: %w", err)
	}
	if imp.Status == model.ImportStatusCompleted || imp.Status == model.ImportStatusError {
		return nil
	}

	tracks, err := t.importRepo.ListTracks(imp.ID)
	if err != nil {
		return fmt.Errorf("failed to list import tracks: %w", err)
	}

	if err := t.importRepo.UpdateStatus(imp.ID, model.ImportStatusProcessing); err != nil {
		return fmt.Errorf("failed to mark import processing: %w", err)
	}

	t.logger.Info("bulk import started",
		zap.String("import_id", imp.ID),
		zap.Int("tracks", len(tracks)))

	limiter := rate.NewLimiter(rate.Every(t.cfg.Worker.BulkSearchDelay), 1)

	searched, queued, failed, skipped := imp.Searched, imp.Queued, imp.Failed, imp.Skipped
	for _, track := range tracks {
		if track.Status != model.ImportTrackStatusPending {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			t.importRepo.MarkError(imp.ID, err)
			return err
		}

		t.importRepo.UpdateTrack(track.ID, model.ImportTrackStatusSearching, "", "")

		job, err := t.enqueuer.SearchAndEnqueue(ctx, track.Artist, track.Title, EnqueueOptions{
			Kind:          model.JobKindBulkMember,
			ImportID:      imp.ID,
			ConvertToFLAC: imp.ConvertToFLAC,
		})
		searched++
		switch {
		case err != nil:
			failed++
			t.importRepo.UpdateTrack(track.ID, model.ImportTrackStatusFailed, "", err.Error())
			t.logger.Warn("bulk import track failed",
				zap.String("import_id", imp.ID),
				zap.String("artist", track.Artist),
				zap.String("title", track.Title),
				zap.Error(err))
		case job == nil:
			failed++
			t.importRepo.UpdateTrack(track.ID, model.ImportTrackStatusFailed, "", "no results found")
		case job.Status == model.JobStatusCompleted || job.Status == model.JobStatusDuplicate:
			skipped++
			t.importRepo.UpdateTrack(track.ID, model.ImportTrackStatusQueued, job.ID, "")
		default:
			queued++
			t.importRepo.UpdateTrack(track.ID, model.ImportTrackStatusQueued, job.ID, "")
		}

		if err := t.importRepo.UpdateCounts(imp.ID, searched, queued, failed, skipped); err != nil {
			t.logger.Error("failed to update import counts", zap.Error(err))
		}
	}

	if err := t.importRepo.MarkCompleted(imp.ID); err != nil {
		return fmt.Errorf("failed to mark import completed: %w", err)
	}

	t.logger.Info("bulk import done",
		zap.String("import_id", imp.ID),
		zap.Int("searched", searched),
		zap.Int("queued", queued),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped))

	status := "completed"
	if failed > 0 {
		status = "completed_with_errors"
	}
	t.notifier.Send(ctx, notify.Event{
		Type:         notify.TypeBulk,
		PlaylistName: imp.PlaylistName,
		Status:       status,
		TrackCount:   searched,
		FailedCount:  failed,
		SkippedCount: skipped,
	})

	return nil
}
