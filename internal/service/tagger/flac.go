package tagger

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/model"
	"go.uber.org/zap"
)

// writeFLACTags writes VorbisComment and PICTURE blocks via metaflac.
func (t *Tagger) writeFLACTags(filePath string, metadata *model.TrackMetadata) error {
	if _, err := exec.LookPath("metaflac"); err != nil {
		return fmt.Errorf("metaflac not found, cannot write FLAC tags: %w", err)
	}

	// Drop tags we are about to rewrite so values never stack up
	removeArgs := []string{
		"--remove-tag=TITLE",
		"--remove-tag=ARTIST",
		"--remove-tag=ALBUM",
		"--remove-tag=TRACKNUMBER",
		"--remove-tag=DATE",
		"--remove-tag=LYRICS",
		filePath,
	}
	if err := t.runMetaflac(removeArgs...); err != nil {
		return err
	}

	var setArgs []string
	addTag := func(key, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		setArgs = append(setArgs, "--set-tag="+key+"="+value)
	}

	addTag("TITLE", metadata.Title)
	addTag("ARTIST", metadata.Artist)
	addTag("ALBUM", metadata.Album)
	if metadata.TrackNumber > 0 {
		addTag("TRACKNUMBER", strconv.Itoa(metadata.TrackNumber))
	}
	if metadata.Year > 0 {
		addTag("DATE", strconv.Itoa(metadata.Year))
	}
	addTag("LYRICS", metadata.Lyrics)

	if len(setArgs) > 0 {
		setArgs = append(setArgs, filePath)
		if err := t.runMetaflac(setArgs...); err != nil {
			return err
		}
	}

	if len(metadata.CoverData) > 0 {
		coverFile, err := os.CreateTemp("", "grab-cover-*.img")
		if err != nil {
			return fmt.Errorf("create temp cover file failed: %w", err)
		}
		coverPath := coverFile.Name()
		defer os.Remove(coverPath)

		if _, err := coverFile.Write(metadata.CoverData); err != nil {
			coverFile.Close()
			return fmt.Errorf("write temp cover file failed: %w", err)
		}
		if err := coverFile.Close(); err != nil {
			return fmt.Errorf("close temp cover file failed: %w", err)
		}

		// Replace any existing picture block
		if err := t.runMetaflac("--remove", "--block-type=PICTURE", filePath); err != nil {
			return err
		}
		if err := t.runMetaflac("--import-picture-from="+coverPath, filePath); err != nil {
			return err
		}
	}

	t.logger.Info("FLAC tags written successfully",
		zap.String("file", filePath),
		zap.Bool("has_cover", len(metadata.CoverData) > 0),
		zap.Bool("has_lyrics", metadata.Lyrics != ""))

	return nil
}

func (t *Tagger) runMetaflac(args ...string) error {
	cmd := exec.Command("metaflac", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("metaflac %s failed: %w", strings.Join(args, " "), err)
		}
		return fmt.Errorf("metaflac %s failed: %w: %s", strings.Join(args, " "), err, msg)
	}
	return nil
}
