package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFingerprinter struct {
	match  *Match
	score  float64
	err    error
	called bool
}

func (f *fakeFingerprinter) Identify(ctx context.Context, path string) (*Match, float64, error) {
	f.called = true
	return f.match, f.score, f.err
}

type fakeTextLookup struct {
	match  *Match
	score  int
	err    error
	called bool
}

func (f *fakeTextLookup) Search(ctx context.Context, artist, title string) (*Match, int, error) {
	f.called = true
	return f.match, f.score, f.err
}

func testResolverConfig() *config.MetadataConfig {
	return &config.MetadataConfig{
		Enabled:             true,
		AcoustIDMinScore:    0.7,
		MusicBrainzMinScore: 85,
	}
}

func TestCatalogueMetadataSkipsAllLookups(t *testing.T) {
	fp := &fakeFingerprinter{match: &Match{Title: "Wrong"}, score: 0.99}
	tl := &fakeTextLookup{match: &Match{Title: "Also Wrong"}, score: 100}
	r := NewResolver(testResolverConfig(), fp, tl, zap.NewNop())

	md, provenance := r.Resolve(context.Background(), "/tmp/x.flac", Hints{
		Title:             "Song Y",
		Artist:            "Artist X",
		Album:             "Album Z",
		Year:              2020,
		CatalogueVerified: true,
	})

	assert.Equal(t, model.ProvenanceCatalogue, provenance)
	assert.Equal(t, "Song Y", md.Title)
	assert.Equal(t, "Artist X", md.Artist)
	assert.False(t, fp.called)
	assert.False(t, tl.called)
}

func TestFingerprintAboveGateAccepted(t *testing.T) {
	fp := &fakeFingerprinter{match: &Match{Title: "Real Title", Artist: "Real Artist", Album: "Real Album", Year: 1999}, score: 0.92}
	tl := &fakeTextLookup{}
	r := NewResolver(testResolverConfig(), fp, tl, zap.NewNop())

	md, provenance := r.Resolve(context.Background(), "/tmp/x.mp3", Hints{Title: "junk upload", Uploader: "someone"})

	assert.Equal(t, model.ProvenanceFingerprint, provenance)
	assert.Equal(t, "Real Title", md.Title)
	assert.Equal(t, 1999, md.Year)
	assert.False(t, tl.called)
}

func TestLowConfidenceFingerprintFallsThroughToTextLookup(t *testing.T) {
	fp := &fakeFingerprinter{match: &Match{Title: "Dodgy Match"}, score: 0.3}
	tl := &fakeTextLookup{match: &Match{Title: "Text Title", Artist: "Text Artist"}, score: 95}
	r := NewResolver(testResolverConfig(), fp, tl, zap.NewNop())

	md, provenance := r.Resolve(context.Background(), "/tmp/x.mp3", Hints{Title: "Artist - Song", Uploader: "chan"})

	assert.Equal(t, model.ProvenanceTextMatch, provenance)
	assert.Equal(t, "Text Title", md.Title)
	assert.True(t, fp.called)
	// The dodgy match is discarded entirely, never merged
	assert.NotEqual(t, "Dodgy Match", md.Title)
}

func TestTextLookupBelowBarFallsThroughToGuess(t *testing.T) {
	fp := &fakeFingerprinter{err: errors.New("fpcalc not installed")}
	tl := &fakeTextLookup{match: &Match{Title: "Weak Match"}, score: 60}
	r := NewResolver(testResolverConfig(), fp, tl, zap.NewNop())

	md, provenance := r.Resolve(context.Background(), "/tmp/x.mp3", Hints{
		Title:    "Some Artist - Some Song (Official Audio)",
		Uploader: "SomeChannel",
	})

	assert.Equal(t, model.ProvenanceSourceGuess, provenance)
	assert.Equal(t, "Some Artist", md.Artist)
	assert.Equal(t, "Some Song", md.Title)
}

func TestGuessFallbackAlwaysSucceeds(t *testing.T) {
	r := NewResolver(&config.MetadataConfig{Enabled: false}, nil, nil, zap.NewNop())

	md, provenance := r.Resolve(context.Background(), "", Hints{Title: "UntaggedUpload", Uploader: "ChannelVEVO"})

	require.NotNil(t, md)
	assert.Equal(t, model.ProvenanceSourceGuess, provenance)
	assert.Equal(t, "Channel", md.Artist)
	assert.Equal(t, "UntaggedUpload", md.Title)
	assert.Equal(t, "Singles", md.Album)
}

func TestResolverDisabledSkipsLookups(t *testing.T) {
	fp := &fakeFingerprinter{match: &Match{Title: "X"}, score: 1.0}
	tl := &fakeTextLookup{match: &Match{Title: "Y"}, score: 100}
	cfg := testResolverConfig()
	cfg.Enabled = false
	r := NewResolver(cfg, fp, tl, zap.NewNop())

	_, provenance := r.Resolve(context.Background(), "/tmp/x.mp3", Hints{Title: "A - B"})

	assert.Equal(t, model.ProvenanceSourceGuess, provenance)
	assert.False(t, fp.called)
	assert.False(t, tl.called)
}
