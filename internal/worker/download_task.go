package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/library"
	"github.com/cvlogg/musicgrabber2/internal/metadata"
	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/cvlogg/musicgrabber2/internal/notify"
	"github.com/cvlogg/musicgrabber2/internal/repository"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/cvlogg/musicgrabber2/internal/service/jellyfin"
	"github.com/cvlogg/musicgrabber2/internal/service/navidrome"
	"github.com/cvlogg/musicgrabber2/internal/service/tagger"
	"github.com/cvlogg/musicgrabber2/internal/source/monochrome"
	"github.com/cvlogg/musicgrabber2/internal/source/slskd"
	"github.com/cvlogg/musicgrabber2/internal/source/ytdlp"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// DownloadTask drives one job through the download pipeline.
type DownloadTask struct {
	cfg        *config.Config
	repo       *repository.JobRepository
	importRepo *repository.ImportRepository
	catalogue  *monochrome.Client
	extraction *ytdlp.Client
	peer       *slskd.Client
	resolver   *metadata.Resolver
	lyrics     *metadata.LyricsClient
	tagger     *tagger.Tagger
	placer     *library.Placer
	converter  *Converter
	locks      *KeyedLock
	naviClient *navidrome.Client
	jellyfin   *jellyfin.Client
	notifier   *notify.Notifier
	logger     *zap.Logger
}

func NewDownloadTask(
	cfg *config.Config,
	repo *repository.JobRepository,
	importRepo *repository.ImportRepository,
	catalogue *monochrome.Client,
	extraction *ytdlp.Client,
	peer *slskd.Client,
	resolver *metadata.Resolver,
	lyrics *metadata.LyricsClient,
	tag *tagger.Tagger,
	placer *library.Placer,
	naviClient *navidrome.Client,
	jellyfinClient *jellyfin.Client,
	notifier *notify.Notifier,
	logger *zap.Logger,
) *DownloadTask {
	return &DownloadTask{
		cfg:        cfg,
		repo:       repo,
		importRepo: importRepo,
		catalogue:  catalogue,
		extraction: extraction,
		peer:       peer,
		resolver:   resolver,
		lyrics:     lyrics,
		tagger:     tag,
		placer:     placer,
		converter:  NewConverter(cfg.Worker.ConvertTimeout, logger),
		locks:      NewKeyedLock(),
		naviClient: naviClient,
		jellyfin:   jellyfinClient,
		notifier:   notifier,
		logger:     logger,
	}
}

// jobContext carries in-flight state between stages.
type jobContext struct {
	job          *model.Job
	workDir      string
	stream       *search.StreamDescriptor
	filePath     string
	sourceInfo   *AudioInfo
	finalInfo    *AudioInfo
	md           *model.TrackMetadata
	existingPath string // set when the final duplicate check found the track
}

// ProcessTask runs the state machine for one job.
func (t *DownloadTask) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload DownloadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload failed: %w", err)
	}

	job, err := t.repo.FindByID(payload.JobID)
	if err != nil {
		return fmt.Errorf("failed to find job: %w", err)
	}
	if job.IsTerminal() {
		t.logger.Info("job already terminal, skipping",
			zap.String("job_id", job.ID),
			zap.String("status", job.Status))
		return nil
	}

	t.logger.Info("processing download",
		zap.String("job_id", job.ID),
		zap.String("source", job.Source),
		zap.String("artist", job.Artist),
		zap.String("title", job.Title))

	// Per-track exclusivity. The in-process lock handles concurrent workers
	// here; the active-job query handles other processes.
	if job.TrackKey != "" {
		if !t.locks.TryAcquire(job.TrackKey) {
			return t.coalesce(job)
		}
		defer t.locks.Release(job.TrackKey)

		active, err := t.repo.FindActiveByTrackKey(job.TrackKey, job.ID)
		if err != nil {
			return fmt.Errorf("exclusivity check failed: %w", err)
		}
		if active != nil && yieldsTo(job, active) {
			return t.coalesce(job)
		}
	}

	// The track may already be in the library under its requested name
	if existing := t.placer.FindDuplicate(job.Artist, job.Title); existing != "" {
		t.logger.Info("track already in library",
			zap.String("job_id", job.ID),
			zap.String("path", existing))
		return t.repo.UpdateStatus(job.ID, model.JobStatusDuplicate, "already in library: "+existing)
	}

	jc := &jobContext{job: job}

	stages := []struct {
		name string
		fn   func(context.Context, *jobContext) error
	}{
		{model.JobStatusResolvingSource, t.stageResolveSource},
		{model.JobStatusDownloading, t.stageDownload},
		{model.JobStatusConverting, t.stageConvert},
		{model.JobStatusTagging, t.stageTag},
		{model.JobStatusPlacing, t.stagePlace},
	}

	for _, stage := range stages {
		if err := t.repo.UpdateStatus(job.ID, stage.name, ""); err != nil {
			t.logger.Error("failed to update status", zap.Error(err))
		}

		if err := stage.fn(ctx, jc); err != nil {
			t.logger.Error("stage failed",
				zap.String("stage", stage.name),
				zap.String("job_id", job.ID),
				zap.Error(err))
			return t.failJob(ctx, jc, stage.name, err)
		}

		if jc.existingPath != "" {
			break
		}
	}

	t.cleanupWorkDir(jc)

	if jc.existingPath != "" {
		return t.repo.UpdateStatus(job.ID, model.JobStatusDuplicate, "already in library: "+jc.existingPath)
	}

	var fileSize int64
	if info, err := os.Stat(jc.filePath); err == nil {
		fileSize = info.Size()
	}
	bitrate := 0
	if jc.finalInfo != nil {
		bitrate, _ = EffectiveQuality(jc.finalInfo, jc.sourceInfo)
	}

	if err := t.repo.MarkCompleted(job.ID, jc.filePath, fileSize, bitrate); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	t.logger.Info("download completed",
		zap.String("job_id", job.ID),
		zap.String("path", jc.filePath))

	t.afterCompletion(ctx, jc)
	return nil
}

// yieldsTo reports whether job must coalesce onto other. Anything already
// past queued holds the track. Between two queued jobs the older request
// wins, with the id as tie-breaker, so two worker processes can never
// each decide they won the same key.
func yieldsTo(job, other *model.Job) bool {
	if other.Status != model.JobStatusQueued {
		return true
	}
	if !other.CreatedAt.Equal(job.CreatedAt) {
		return other.CreatedAt.Before(job.CreatedAt)
	}
	return other.ID < job.ID
}

// coalesce closes this job onto whichever job holds the track.
func (t *DownloadTask) coalesce(job *model.Job) error {
	winner, err := t.repo.FindActiveByTrackKey(job.TrackKey, job.ID)
	if err != nil {
		return fmt.Errorf("coalesce lookup failed: %w", err)
	}
	if winner == nil {
		// The winner may have finished between the lock miss and this
		// lookup; point at whoever put the track in the library.
		winner, err = t.repo.FindLatestDoneByTrackKey(job.TrackKey, job.ID)
		if err != nil {
			return fmt.Errorf("coalesce lookup failed: %w", err)
		}
	}
	winnerID := ""
	if winner != nil {
		winnerID = winner.ID
	}

	t.logger.Info("coalescing duplicate job",
		zap.String("job_id", job.ID),
		zap.String("winner", winnerID),
		zap.String("track_key", job.TrackKey))

	return t.repo.MarkDuplicate(job.ID, winnerID)
}

// failJob closes out a failed attempt. Transient errors send the job back
// to queued while attempts remain, so the redelivered task finds it live;
// failed is reserved for lost causes and an exhausted attempt budget.
func (t *DownloadTask) failJob(ctx context.Context, jc *jobContext, stage string, err error) error {
	t.cleanupWorkDir(jc)

	if IsRetryable(err) {
		if incErr := t.repo.IncrementRetry(jc.job.ID); incErr != nil {
			t.logger.Error("failed to increment retry count", zap.Error(incErr))
		}
		attempts := jc.job.RetryCount + 1
		if attempts <= t.cfg.Worker.RetryMaxAttempts {
			if qErr := t.repo.MarkRetrying(jc.job.ID, err); qErr != nil {
				t.logger.Error("failed to requeue job", zap.Error(qErr))
			}
			t.logger.Warn("transient failure, job requeued",
				zap.String("job_id", jc.job.ID),
				zap.String("stage", stage),
				zap.Int("attempt", attempts),
				zap.Error(err))
			return taskError(stage, err)
		}
	}

	if markErr := t.repo.MarkFailed(jc.job.ID, err); markErr != nil {
		t.logger.Error("failed to mark job as failed", zap.Error(markErr))
	}

	t.notifier.Send(ctx, notify.Event{
		Type:   notify.TypeSingle,
		Title:  jc.job.Title,
		Artist: jc.job.Artist,
		Source: jc.job.Source,
		Status: "failed",
		Error:  err.Error(),
	})

	return taskError(stage, err)
}

// stageResolveSource turns the job's candidate snapshot into a concrete
// stream descriptor.
func (t *DownloadTask) stageResolveSource(ctx context.Context, jc *jobContext) error {
	cand := search.Candidate{
		Source:     search.SourceTag(jc.job.Source),
		ExternalID: jc.job.ExternalID,
		URL:        jc.job.SourceURL,
		PeerUser:   jc.job.PeerUser,
		PeerFile:   jc.job.PeerFile,
	}

	var (
		stream *search.StreamDescriptor
		err    error
	)
	switch cand.Source {
	case search.SourceCatalogue:
		stream, err = t.catalogue.Resolve(ctx, cand)
	case search.SourceExtraction:
		stream, err = t.extraction.Resolve(ctx, cand)
	case search.SourcePeer:
		stream, err = t.peer.Resolve(ctx, cand)
	default:
		return fmt.Errorf("unknown source %q", jc.job.Source)
	}
	if err != nil {
		return err
	}

	jc.stream = stream
	return nil
}

// stageDownload produces a local audio file in the job's work directory.
func (t *DownloadTask) stageDownload(ctx context.Context, jc *jobContext) error {
	workDir := filepath.Join(t.cfg.Worker.WorkDir, jc.job.ID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	jc.workDir = workDir

	switch {
	case jc.stream.Direct != "":
		ext := extFromStream(jc.stream)
		dest := filepath.Join(workDir, "audio"+ext)
		if err := t.downloadFile(ctx, jc.stream.Direct, dest, jc.job.ID); err != nil {
			return err
		}
		jc.filePath = dest

	case jc.stream.ExtractURL != "":
		path, err := t.extraction.ExtractAudio(ctx, jc.stream.ExtractURL, workDir)
		if err != nil {
			return err
		}
		jc.filePath = path

	case jc.stream.PeerUser != "":
		peerPath, err := t.peer.WaitForDownload(ctx, jc.stream.PeerUser, jc.stream.PeerFile, func(pct int) {
			t.repo.UpdateProgress(jc.job.ID, pct, 0, 0)
		})
		if err != nil {
			return err
		}
		// Copy out of the daemon's downloads dir so cleanup never races it
		dest := filepath.Join(workDir, filepath.Base(peerPath))
		if err := copyFile(peerPath, dest); err != nil {
			return fmt.Errorf("copy peer download: %w", err)
		}
		jc.filePath = dest

	default:
		return fmt.Errorf("stream descriptor resolves to nothing")
	}

	if info, err := os.Stat(jc.filePath); err == nil {
		t.repo.UpdateProgress(jc.job.ID, 100, info.Size(), info.Size())
	}

	t.logger.Info("download stage done",
		zap.String("job_id", jc.job.ID),
		zap.String("file", jc.filePath))
	return nil
}

// stageConvert optionally transcodes and always enforces the quality floor.
func (t *DownloadTask) stageConvert(ctx context.Context, jc *jobContext) error {
	srcInfo, err := t.converter.Probe(ctx, jc.filePath)
	if err != nil {
		return fmt.Errorf("probe source: %w", err)
	}
	jc.sourceInfo = srcInfo
	jc.finalInfo = srcInfo

	format := t.cfg.Worker.AudioFormat
	targetExt := "." + format
	needsConvert := jc.job.ConvertToFLAC && !strings.EqualFold(filepath.Ext(jc.filePath), targetExt)

	if needsConvert {
		converted, err := t.converter.Convert(ctx, jc.filePath, format)
		if err != nil {
			return err
		}
		os.Remove(jc.filePath)
		jc.filePath = converted

		finalInfo, err := t.converter.Probe(ctx, jc.filePath)
		if err != nil {
			return fmt.Errorf("probe converted: %w", err)
		}
		jc.finalInfo = finalInfo
	}

	effective, label := EffectiveQuality(jc.finalInfo, jc.sourceInfo)
	if !MeetsQualityFloor(effective, t.cfg.Worker.MinAudioBitrate) {
		return fmt.Errorf("%w: %s, minimum is %dkbps",
			ErrQualityTooLow, label, t.cfg.Worker.MinAudioBitrate)
	}

	t.logger.Info("audio quality",
		zap.String("job_id", jc.job.ID),
		zap.String("quality", label))
	return nil
}

// stageTag resolves final metadata and embeds it.
func (t *DownloadTask) stageTag(ctx context.Context, jc *jobContext) error {
	hints := metadata.Hints{
		Title:             jc.job.Title,
		Artist:            jc.job.Artist,
		Album:             jc.job.Album,
		Year:              jc.job.Year,
		Duration:          jc.finalInfo.Duration,
		CoverURL:          jc.job.CoverURL,
		CatalogueVerified: jc.job.Source == string(search.SourceCatalogue),
	}

	md, provenance := t.resolver.Resolve(ctx, jc.filePath, hints)
	md.TrackNumber = jc.job.TrackNumber
	jc.md = md

	if err := t.repo.UpdateMetadata(jc.job.ID, md, provenance); err != nil {
		t.logger.Error("failed to persist metadata", zap.Error(err))
	}

	if md.CoverURL != "" {
		cover, err := t.catalogue.DownloadCover(ctx, md.CoverURL)
		if err != nil {
			t.logger.Warn("cover download failed", zap.Error(err))
		} else {
			md.CoverData = cover
		}
	}

	if t.cfg.Metadata.LyricsEnabled {
		lyrics, err := t.lyrics.Fetch(ctx, md.Artist, md.Title, md.Album, jc.finalInfo.Duration)
		if err != nil {
			t.logger.Warn("lyrics fetch failed", zap.Error(err))
		} else {
			md.Lyrics = lyrics
		}
	}

	// Tag failures are not worth losing the audio over
	if err := t.tagger.WriteTags(jc.filePath, md); err != nil {
		t.logger.Warn("failed to write tags", zap.Error(err))
	}

	return nil
}

// stagePlace moves the artifact into the library.
func (t *DownloadTask) stagePlace(ctx context.Context, jc *jobContext) error {
	md := jc.md

	// The resolver may have renamed the track; re-check under final names
	if existing := t.placer.FindDuplicate(md.Artist, md.Title); existing != "" {
		t.logger.Info("resolved track already in library",
			zap.String("job_id", jc.job.ID),
			zap.String("path", existing))
		jc.existingPath = existing
		return nil
	}

	subdir := ""
	if jc.job.PlaylistID != "" {
		subdir = t.cfg.Library.PlaylistsSubdir
	}

	ext := filepath.Ext(jc.filePath)
	targetPath := t.placer.TargetPath(md.Artist, md.Title, subdir, ext)

	if err := t.placer.Place(jc.filePath, targetPath); err != nil {
		return err
	}
	jc.filePath = targetPath

	if md.Lyrics != "" {
		if err := t.tagger.WriteLyricFile(targetPath, md.Lyrics); err != nil {
			t.logger.Warn("failed to write lyric sidecar", zap.Error(err))
		}
	}
	if len(md.CoverData) > 0 {
		if err := t.tagger.WriteCoverToFile(targetPath, md.CoverData); err != nil {
			t.logger.Warn("failed to write cover sidecar", zap.Error(err))
		}
	}

	return nil
}

// afterCompletion fires the non-fatal post-placement hooks.
func (t *DownloadTask) afterCompletion(ctx context.Context, jc *jobContext) {
	if jc.job.Kind == model.JobKindSingle {
		t.notifier.Send(ctx, notify.Event{
			Type:   notify.TypeSingle,
			Title:  jc.md.Title,
			Artist: jc.md.Artist,
			Source: jc.job.Source,
			Status: "completed",
		})
	}

	if jc.job.ImportID != "" {
		if err := t.rebuildImportM3U(jc.job.ImportID); err != nil {
			t.logger.Warn("import m3u rebuild failed", zap.Error(err))
		}
	}

	if t.naviClient.Enabled() {
		if err := t.naviClient.StartScan(); err != nil {
			t.logger.Warn("navidrome scan trigger failed", zap.Error(err))
		}
	}
	if t.jellyfin.Enabled() {
		if err := t.jellyfin.RefreshLibrary(); err != nil {
			t.logger.Warn("jellyfin refresh failed", zap.Error(err))
		}
	}
}

// rebuildImportM3U keeps the import's playlist file in step as member
// jobs finish. Imports without a playlist name produce no file.
func (t *DownloadTask) rebuildImportM3U(importID string) error {
	imp, err := t.importRepo.FindByID(importID)
	if err != nil {
		return err
	}
	if imp.PlaylistName == "" {
		return nil
	}

	jobs, err := t.repo.ListByImport(importID)
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

	name := library.SanitizeFilename(imp.PlaylistName)
	if name == "" {
		name = imp.ID
	}
	m3uPath := filepath.Join(t.cfg.Library.MusicDir, t.cfg.Library.PlaylistsSubdir, name+".m3u")
	return library.WriteM3U(m3uPath, imp.PlaylistName, paths)
}

func (t *DownloadTask) cleanupWorkDir(jc *jobContext) {
	if jc.workDir == "" {
		return
	}
	if err := os.RemoveAll(jc.workDir); err != nil {
		t.logger.Warn("failed to clean work dir",
			zap.String("dir", jc.workDir),
			zap.Error(err))
	}
}

// downloadFile streams a direct URL to disk with periodic progress updates.
func (t *DownloadTask) downloadFile(ctx context.Context, url, destPath, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	totalBytes := resp.ContentLength
	var completedBytes int64

	buffer := make([]byte, 32*1024)
	lastUpdate := time.Now()

	for {
		n, err := resp.Body.Read(buffer)
		if n > 0 {
			if _, writeErr := out.Write(buffer[:n]); writeErr != nil {
				return writeErr
			}
			completedBytes += int64(n)

			if time.Since(lastUpdate) > time.Second {
				progress := 0
				if totalBytes > 0 {
					progress = int(float64(completedBytes) / float64(totalBytes) * 100)
				}
				t.repo.UpdateProgress(jobID, progress, completedBytes, totalBytes)
				lastUpdate = time.Now()
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destination.Close()

	_, err = io.Copy(destination, source)
	return err
}

func extFromStream(stream *search.StreamDescriptor) string {
	switch {
	case strings.Contains(stream.Codec, "flac"), strings.Contains(stream.MimeType, "flac"):
		return ".flac"
	case strings.Contains(stream.MimeType, "mp4"), strings.Contains(stream.Codec, "aac"):
		return ".m4a"
	case strings.Contains(stream.MimeType, "mpeg"):
		return ".mp3"
	default:
		return ".flac"
	}
}
