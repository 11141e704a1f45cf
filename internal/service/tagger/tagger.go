package tagger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/model"
	"go.uber.org/zap"
)

// Tagger writes metadata into finished audio files. MP3 goes through the
// id3v2 library; FLAC through metaflac; opus and other containers through
// an ffmpeg remux.
type Tagger struct {
	logger *zap.Logger
}

func NewTagger(logger *zap.Logger) *Tagger {
	return &Tagger{logger: logger}
}

// WriteTags embeds the resolved metadata into the file in place.
func (t *Tagger) WriteTags(filePath string, metadata *model.TrackMetadata) error {
	ext := strings.ToLower(filepath.Ext(filePath))

	t.logger.Info("writing tags",
		zap.String("file", filePath),
		zap.String("extension", ext),
		zap.String("title", metadata.Title),
		zap.String("artist", metadata.Artist))

	switch ext {
	case ".mp3":
		return t.writeMP3Tags(filePath, metadata)
	case ".flac":
		return t.writeFLACTags(filePath, metadata)
	case ".opus", ".ogg", ".m4a":
		return t.writeContainerTags(filePath, metadata)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}
}

// WriteLyricFile writes a sidecar .lrc next to the audio file.
func (t *Tagger) WriteLyricFile(audioPath string, lyrics string) error {
	if lyrics == "" {
		return nil
	}

	lrcPath := audioPath[:len(audioPath)-len(filepath.Ext(audioPath))] + ".lrc"
	if err := os.WriteFile(lrcPath, []byte(lyrics), 0644); err != nil {
		return fmt.Errorf("failed to write lyric file: %w", err)
	}

	t.logger.Info("wrote lyric file", zap.String("path", lrcPath))
	return nil
}

// WriteCoverToFile writes the cover as a sidecar .jpg.
func (t *Tagger) WriteCoverToFile(audioPath string, coverData []byte) error {
	if len(coverData) == 0 {
		return nil
	}

	coverPath := audioPath[:len(audioPath)-len(filepath.Ext(audioPath))] + ".jpg"
	if err := os.WriteFile(coverPath, coverData, 0644); err != nil {
		return fmt.Errorf("failed to write cover file: %w", err)
	}

	t.logger.Debug("wrote cover file", zap.String("path", coverPath))
	return nil
}
