package library

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"go.uber.org/zap"
)

const maxFilenameLength = 200

// Audio extensions considered when checking for existing library files.
var audioExtensions = []string{".flac", ".opus", ".m4a", ".webm", ".mp3", ".ogg", ".wav"}

var (
	invalidCharsRe = regexp.MustCompile(`[<>:"/\\|?*]`)
	spacesRe       = regexp.MustCompile(`\s+`)
)

// Placer owns every mutation under the library root: target path
// computation, the duplicate check, the final atomic write, and deletion.
type Placer struct {
	cfg    *config.LibraryConfig
	logger *zap.Logger
}

func NewPlacer(cfg *config.LibraryConfig, logger *zap.Logger) *Placer {
	return &Placer{cfg: cfg, logger: logger}
}

// SanitizeFilename removes characters that break filenames on common
// filesystems and caps the length.
func SanitizeFilename(name string) string {
	name = invalidCharsRe.ReplaceAllString(name, "")
	name = spacesRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
	}
	return name
}

// TargetDir computes the directory a track belongs in. subdir selects the
// Singles/Playlists/Albums area; artist subfoldering is a config toggle.
func (p *Placer) TargetDir(artist, subdir string) string {
	if subdir == "" {
		subdir = p.cfg.SinglesSubdir
	}
	dir := filepath.Join(p.cfg.MusicDir, subdir)
	if p.cfg.OrganizeByArtist && artist != "" {
		dir = filepath.Join(dir, SanitizeFilename(artist))
	}
	return dir
}

// TargetPath computes the full placement path for a track.
func (p *Placer) TargetPath(artist, title, subdir, ext string) string {
	stem := p.fileStem(artist, title)
	return filepath.Join(p.TargetDir(artist, subdir), stem+ext)
}

// In flat mode the artist goes into the filename so collisions across
// artists stay impossible.
func (p *Placer) fileStem(artist, title string) string {
	cleanTitle := SanitizeFilename(title)
	if p.cfg.OrganizeByArtist || artist == "" {
		return cleanTitle
	}
	return SanitizeFilename(artist) + " - " + cleanTitle
}

// FindDuplicate reports an existing library file for the track, in any
// audio format. It checks both layout modes and both stem shapes so
// switching organize_by_artist doesn't cause silent re-downloads, with a
// case-insensitive fallback pass.
func (p *Placer) FindDuplicate(artist, title string) string {
	cleanTitle := SanitizeFilename(title)
	cleanArtist := SanitizeFilename(artist)

	stems := []string{cleanTitle}
	if cleanArtist != "" {
		stems = append(stems, cleanArtist+" - "+cleanTitle)
	}

	singles := filepath.Join(p.cfg.MusicDir, p.cfg.SinglesSubdir)
	dirs := []string{p.TargetDir(artist, "")}
	if cleanArtist != "" {
		dirs = append(dirs, filepath.Join(singles, cleanArtist))
	}
	dirs = append(dirs, singles)

	seen := make(map[string]struct{})
	for _, dir := range dirs {
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}

		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}

		for _, stem := range stems {
			for _, ext := range audioExtensions {
				candidate := filepath.Join(dir, stem+ext)
				if _, err := os.Stat(candidate); err == nil {
					return candidate
				}
			}
		}

		// Case-insensitive fallback
		if match := p.findCaseInsensitive(dir, stems); match != "" {
			return match
		}
	}

	return ""
}

func (p *Placer) findCaseInsensitive(dir string, stems []string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	lowerStems := make(map[string]struct{}, len(stems))
	for _, s := range stems {
		lowerStems[strings.ToLower(s)] = struct{}{}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !isAudioExt(ext) {
			continue
		}
		stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if _, ok := lowerStems[stem]; ok {
			return filepath.Join(dir, name)
		}
	}
	return ""
}

func isAudioExt(ext string) bool {
	for _, known := range audioExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

// Place moves the artifact to targetPath atomically: copy to a temp file
// in the target directory, rename over the destination, then remove the
// source. An existing file at targetPath survives any failure before the
// rename.
func (p *Placer) Place(srcPath, targetPath string) error {
	targetDir := filepath.Dir(targetPath)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	tmp, err := os.CreateTemp(targetDir, ".placing-*"+filepath.Ext(targetPath))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	src, err := os.Open(srcPath)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("open source: %w", err)
	}

	_, copyErr := io.Copy(tmp, src)
	src.Close()
	if syncErr := tmp.Sync(); copyErr == nil {
		copyErr = syncErr
	}
	if closeErr := tmp.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("copy to library: %w", copyErr)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}

	// rw for all; NAS/SMB shares choke on stricter modes
	if err := os.Chmod(targetPath, os.FileMode(p.cfg.FileMode)); err != nil {
		p.logger.Debug("chmod failed", zap.String("path", targetPath), zap.Error(err))
	}

	if err := os.Remove(srcPath); err != nil {
		p.logger.Warn("failed to remove work file", zap.String("path", srcPath), zap.Error(err))
	}

	p.logger.Info("file placed", zap.String("path", targetPath))
	return nil
}

// Delete removes an audio file plus its sidecars, and the artist directory
// when the removal leaves it empty.
func (p *Placer) Delete(audioPath string) error {
	if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove audio file: %w", err)
	}

	stem := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	for _, sidecar := range []string{stem + ".lrc", stem + ".jpg"} {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("failed to remove sidecar", zap.String("path", sidecar), zap.Error(err))
		}
	}

	// Remove the artist directory only if nothing is left in it
	dir := filepath.Dir(audioPath)
	if p.insideMusicDir(dir) && dir != p.cfg.MusicDir {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			if err := os.Remove(dir); err != nil {
				p.logger.Debug("failed to remove empty dir", zap.String("dir", dir), zap.Error(err))
			} else {
				p.logger.Info("removed empty artist dir", zap.String("dir", dir))
			}
		}
	}

	return nil
}

func (p *Placer) insideMusicDir(dir string) bool {
	rel, err := filepath.Rel(p.cfg.MusicDir, dir)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}
