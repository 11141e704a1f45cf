package metadata

import (
	"context"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/model"
	"go.uber.org/zap"
)

// Match is one identification result from an external service.
type Match struct {
	Title  string
	Artist string
	Album  string
	Year   int
}

// Hints carries everything the source already told us about the artifact.
type Hints struct {
	Title    string
	Artist   string
	Album    string
	Uploader string
	Year     int
	Duration int
	CoverURL string

	// CatalogueVerified marks metadata that came from the lossless
	// catalogue adapter and needs no further lookup.
	CatalogueVerified bool
}

// Fingerprinter identifies an artifact acoustically.
type Fingerprinter interface {
	Identify(ctx context.Context, path string) (*Match, float64, error)
}

// TextLookup searches a bibliographic database by title/artist strings.
type TextLookup interface {
	Search(ctx context.Context, artist, title string) (*Match, int, error)
}

// Resolver runs the confidence-gated fallback chain. Each stage is tried
// only when the prior one yielded nothing or missed its gate; the first
// accepting stage fixes the provenance label for good. A low-confidence
// match is discarded entirely, never merged: no metadata beats wrong
// metadata.
type Resolver struct {
	cfg         *config.MetadataConfig
	fingerprint Fingerprinter
	textLookup  TextLookup
	logger      *zap.Logger
}

func NewResolver(
	cfg *config.MetadataConfig,
	fingerprint Fingerprinter,
	textLookup TextLookup,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		cfg:         cfg,
		fingerprint: fingerprint,
		textLookup:  textLookup,
		logger:      logger,
	}
}

// Resolve produces final metadata for an artifact plus the provenance label
// of the stage that accepted. The source-guess fallback always succeeds, so
// Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, artifactPath string, hints Hints) (*model.TrackMetadata, string) {
	stages := []struct {
		provenance string
		fn         func(context.Context, string, Hints) *model.TrackMetadata
	}{
		{model.ProvenanceCatalogue, r.stageCatalogue},
		{model.ProvenanceFingerprint, r.stageFingerprint},
		{model.ProvenanceTextMatch, r.stageTextLookup},
		{model.ProvenanceSourceGuess, r.stageSourceGuess},
	}

	for _, stage := range stages {
		md := stage.fn(ctx, artifactPath, hints)
		if md == nil {
			continue
		}
		r.logger.Info("metadata resolved",
			zap.String("provenance", stage.provenance),
			zap.String("artist", md.Artist),
			zap.String("title", md.Title))
		return md, stage.provenance
	}

	// Unreachable: the guess stage accepts unconditionally
	md := r.stageSourceGuess(ctx, artifactPath, hints)
	return md, model.ProvenanceSourceGuess
}

// stageCatalogue accepts verified catalogue metadata unconditionally.
func (r *Resolver) stageCatalogue(_ context.Context, _ string, hints Hints) *model.TrackMetadata {
	if !hints.CatalogueVerified {
		return nil
	}
	return &model.TrackMetadata{
		Title:    hints.Title,
		Artist:   hints.Artist,
		Album:    hints.Album,
		Year:     hints.Year,
		CoverURL: hints.CoverURL,
	}
}

// stageFingerprint accepts only matches above the configured confidence
// threshold; everything below falls through untouched.
func (r *Resolver) stageFingerprint(ctx context.Context, artifactPath string, hints Hints) *model.TrackMetadata {
	if !r.cfg.Enabled || r.fingerprint == nil || artifactPath == "" {
		return nil
	}

	match, score, err := r.fingerprint.Identify(ctx, artifactPath)
	if err != nil {
		r.logger.Warn("fingerprint identification failed", zap.Error(err))
		return nil
	}
	if match == nil {
		return nil
	}
	if score < r.cfg.AcoustIDMinScore {
		r.logger.Debug("fingerprint match below confidence gate",
			zap.Float64("score", score),
			zap.Float64("threshold", r.cfg.AcoustIDMinScore))
		return nil
	}

	return matchToMetadata(match, hints)
}

// stageTextLookup accepts the best textual match clearing the minimum
// similarity bar.
func (r *Resolver) stageTextLookup(ctx context.Context, _ string, hints Hints) *model.TrackMetadata {
	if !r.cfg.Enabled || r.textLookup == nil {
		return nil
	}

	artist, title := hints.Artist, hints.Title
	if artist == "" || title == "" {
		artist, title = SplitArtistTitle(hints.Title, hints.Uploader)
	}

	match, score, err := r.textLookup.Search(ctx, artist, title)
	if err != nil {
		r.logger.Warn("text lookup failed", zap.Error(err))
		return nil
	}
	if match == nil || score < r.cfg.MusicBrainzMinScore {
		return nil
	}

	return matchToMetadata(match, hints)
}

// stageSourceGuess parses the source strings. Always succeeds, possibly
// with only a title and a default album tag.
func (r *Resolver) stageSourceGuess(_ context.Context, _ string, hints Hints) *model.TrackMetadata {
	artist, title := hints.Artist, CleanTitle(hints.Title)
	if artist == "" || title == "" {
		artist, title = SplitArtistTitle(hints.Title, hints.Uploader)
	}

	album := hints.Album
	if album == "" {
		album = "Singles"
	}

	return &model.TrackMetadata{
		Title:    title,
		Artist:   artist,
		Album:    album,
		Year:     hints.Year,
		CoverURL: hints.CoverURL,
	}
}

func matchToMetadata(match *Match, hints Hints) *model.TrackMetadata {
	md := &model.TrackMetadata{
		Title:    match.Title,
		Artist:   match.Artist,
		Album:    match.Album,
		Year:     match.Year,
		CoverURL: hints.CoverURL,
	}
	if md.Title == "" {
		md.Title = hints.Title
	}
	if md.Artist == "" {
		md.Artist = hints.Artist
	}
	return md
}
