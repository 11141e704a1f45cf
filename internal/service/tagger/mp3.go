package tagger

import (
	"fmt"

	"github.com/cvlogg/musicgrabber2/internal/model"
	id3v2 "github.com/bogem/id3v2/v2"
	"go.uber.org/zap"
)

// writeMP3Tags writes ID3v2.4 frames with the id3v2 library.
func (t *Tagger) writeMP3Tags(filePath string, metadata *model.TrackMetadata) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open mp3 file: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)

	tag.SetTitle(metadata.Title)
	tag.SetArtist(metadata.Artist)
	tag.SetAlbum(metadata.Album)

	if metadata.TrackNumber > 0 {
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"),
			tag.DefaultEncoding(),
			fmt.Sprintf("%d", metadata.TrackNumber))
	}

	if metadata.Year > 0 {
		tag.SetYear(fmt.Sprintf("%d", metadata.Year))
	}

	if len(metadata.CoverData) > 0 {
		pic := id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     metadata.CoverData,
		}
		tag.AddAttachedPicture(pic)
		t.logger.Debug("attached cover", zap.Int("size", len(metadata.CoverData)))
	}

	if metadata.Lyrics != "" {
		lyricFrame := id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          "eng",
			ContentDescriptor: "Lyrics",
			Lyrics:            metadata.Lyrics,
		}
		tag.AddUnsynchronisedLyricsFrame(lyricFrame)
		t.logger.Debug("attached lyrics", zap.Int("length", len(metadata.Lyrics)))
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save tags: %w", err)
	}

	t.logger.Info("MP3 tags written successfully", zap.String("file", filePath))
	return nil
}
