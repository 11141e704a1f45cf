package tagger

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/model"
	"go.uber.org/zap"
)

// writeContainerTags remuxes the file through ffmpeg with metadata flags.
// Covers opus, ogg and m4a, where no dedicated tag tool is available.
// Stream copy only; the audio is never re-encoded here.
func (t *Tagger) writeContainerTags(filePath string, metadata *model.TrackMetadata) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found, cannot write tags: %w", err)
	}

	ext := filepath.Ext(filePath)
	tmpPath := strings.TrimSuffix(filePath, ext) + ".tagged" + ext

	args := []string{
		"-y",
		"-i", filePath,
		"-c", "copy",
	}
	addMeta := func(key, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		args = append(args, "-metadata", key+"="+value)
	}

	addMeta("title", metadata.Title)
	addMeta("artist", metadata.Artist)
	addMeta("album", metadata.Album)
	if metadata.TrackNumber > 0 {
		addMeta("track", strconv.Itoa(metadata.TrackNumber))
	}
	if metadata.Year > 0 {
		addMeta("date", strconv.Itoa(metadata.Year))
	}
	addMeta("lyrics", metadata.Lyrics)

	args = append(args, tmpPath)

	cmd := exec.Command("ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(tmpPath)
		msg := strings.TrimSpace(string(out))
		if len(msg) > 300 {
			msg = msg[len(msg)-300:]
		}
		return fmt.Errorf("ffmpeg tagging failed: %w: %s", err, msg)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace tagged file failed: %w", err)
	}

	t.logger.Info("container tags written successfully", zap.String("file", filePath))
	return nil
}
