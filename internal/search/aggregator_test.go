package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	tag        SourceTag
	candidates []Candidate
	err        error
	delay      time.Duration
}

func (f *fakeAdapter) Tag() SourceTag { return f.tag }

func (f *fakeAdapter) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func (f *fakeAdapter) Resolve(ctx context.Context, c Candidate) (*StreamDescriptor, error) {
	return nil, errors.New("not implemented")
}

type fakeBlacklist struct {
	blockedIDs       map[string]bool
	blockedUploaders map[string]bool
}

func (f *fakeBlacklist) IsBlocked(source SourceTag, externalID string) bool {
	return f.blockedIDs[externalID]
}

func (f *fakeBlacklist) IsUploaderBlocked(source SourceTag, uploader string) bool {
	return f.blockedUploaders[uploader]
}

func newTestAggregator(t *testing.T, adapters []Adapter, bl Blacklist) *Aggregator {
	t.Helper()
	return NewAggregator(adapters, bl, 200*time.Millisecond, 3, zap.NewNop())
}

func TestSearchPartialSourceFailure(t *testing.T) {
	good := &fakeAdapter{tag: SourceCatalogue, candidates: []Candidate{
		{Source: SourceCatalogue, ExternalID: "1", Title: "Song", Artist: "Artist", Tier: TierLossless},
	}}
	bad := &fakeAdapter{tag: SourceExtraction, err: errors.New("upstream 500")}

	agg := newTestAggregator(t, []Adapter{good, bad}, nil)
	results, errs := agg.Search(context.Background(), "artist song", nil, 10)

	require.Len(t, results, 1)
	require.Len(t, errs, 1)
	assert.Error(t, errs[SourceExtraction])
}

func TestSearchSlowAdapterTimesOutIndependently(t *testing.T) {
	fast := &fakeAdapter{tag: SourceCatalogue, candidates: []Candidate{
		{Source: SourceCatalogue, ExternalID: "1", Title: "Song", Artist: "Artist", Tier: TierLossless},
	}}
	slow := &fakeAdapter{tag: SourcePeer, delay: 5 * time.Second, candidates: []Candidate{
		{Source: SourcePeer, ExternalID: "2", Title: "Song2", Artist: "Artist", Tier: TierHiRes},
	}}

	agg := newTestAggregator(t, []Adapter{fast, slow}, nil)

	start := time.Now()
	results, errs := agg.Search(context.Background(), "artist song", nil, 10)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, results, 1)
	assert.Equal(t, SourceCatalogue, results[0].Source)
	assert.ErrorIs(t, errs[SourcePeer], context.DeadlineExceeded)
}

func TestSearchAllSourcesFailReturnsEmptyNotFatal(t *testing.T) {
	a := &fakeAdapter{tag: SourceCatalogue, err: errors.New("down")}
	b := &fakeAdapter{tag: SourceExtraction, err: errors.New("down too")}

	agg := newTestAggregator(t, []Adapter{a, b}, nil)
	results, errs := agg.Search(context.Background(), "anything", nil, 10)

	assert.Empty(t, results)
	assert.Len(t, errs, 2)
}

func TestRankingTierBeforeBitrateBeforePriority(t *testing.T) {
	extraction := &fakeAdapter{tag: SourceExtraction, candidates: []Candidate{
		{Source: SourceExtraction, ExternalID: "lossy-high", Title: "A", Artist: "X", Tier: TierLossy, Bitrate: 320, Duration: 100},
	}}
	catalogue := &fakeAdapter{tag: SourceCatalogue, candidates: []Candidate{
		{Source: SourceCatalogue, ExternalID: "lossless", Title: "B", Artist: "X", Tier: TierLossless, Duration: 200},
	}}
	peer := &fakeAdapter{tag: SourcePeer, candidates: []Candidate{
		{Source: SourcePeer, ExternalID: "hires", Title: "C", Artist: "X", Tier: TierHiRes, Duration: 300},
		{Source: SourcePeer, ExternalID: "lossless-peer", Title: "D", Artist: "X", Tier: TierLossless, Duration: 400},
	}}

	agg := newTestAggregator(t, []Adapter{extraction, catalogue, peer}, nil)
	results, errs := agg.Search(context.Background(), "x", nil, 10)

	require.Empty(t, errs)
	require.Len(t, results, 4)
	assert.Equal(t, "hires", results[0].ExternalID)
	// Equal tier: catalogue outranks peer
	assert.Equal(t, "lossless", results[1].ExternalID)
	assert.Equal(t, "lossless-peer", results[2].ExternalID)
	assert.Equal(t, "lossy-high", results[3].ExternalID)
}

func TestDedupeKeepsHighestTierSurvivor(t *testing.T) {
	catalogue := &fakeAdapter{tag: SourceCatalogue, candidates: []Candidate{
		{Source: SourceCatalogue, ExternalID: "cat", Title: "Get Lucky", Artist: "Daft Punk", Tier: TierLossless, Duration: 248},
	}}
	extraction := &fakeAdapter{tag: SourceExtraction, candidates: []Candidate{
		{Source: SourceExtraction, ExternalID: "yt", Title: "Get Lucky (Official Audio)", Artist: "Daft Punk", Tier: TierLossy, Bitrate: 128, Duration: 250},
	}}

	agg := newTestAggregator(t, []Adapter{catalogue, extraction}, nil)
	results, _ := agg.Search(context.Background(), "daft punk get lucky", nil, 10)

	require.Len(t, results, 1)
	assert.Equal(t, "cat", results[0].ExternalID)
	require.Len(t, results[0].Alternates, 1)
	assert.Equal(t, "yt", results[0].Alternates[0].ExternalID)
	assert.GreaterOrEqual(t, results[0].Tier, results[0].Alternates[0].Tier)
}

func TestDedupeRespectsDurationTolerance(t *testing.T) {
	adapter := &fakeAdapter{tag: SourceExtraction, candidates: []Candidate{
		{Source: SourceExtraction, ExternalID: "radio", Title: "Song", Artist: "A", Tier: TierLossy, Bitrate: 128, Duration: 200},
		{Source: SourceExtraction, ExternalID: "extended", Title: "Song", Artist: "A", Tier: TierLossy, Bitrate: 128, Duration: 320},
	}}

	agg := newTestAggregator(t, []Adapter{adapter}, nil)
	results, _ := agg.Search(context.Background(), "a song", nil, 10)

	// 120s apart: same normalized key but clearly different cuts
	assert.Len(t, results, 2)
}

func TestBlacklistDropsBlockedIDAndPenalizesUploader(t *testing.T) {
	adapter := &fakeAdapter{tag: SourceExtraction, candidates: []Candidate{
		{Source: SourceExtraction, ExternalID: "blocked-id", Title: "One", Artist: "A", Tier: TierLossy, Duration: 100},
		{Source: SourceExtraction, ExternalID: "sketchy", Title: "Two", Artist: "B", Uploader: "BadUploads", Tier: TierLossless, Duration: 200},
		{Source: SourceExtraction, ExternalID: "fine", Title: "Three", Artist: "C", Tier: TierLossy, Bitrate: 96, Duration: 300},
	}}
	bl := &fakeBlacklist{
		blockedIDs:       map[string]bool{"blocked-id": true},
		blockedUploaders: map[string]bool{"BadUploads": true},
	}

	agg := newTestAggregator(t, []Adapter{adapter}, bl)
	results, _ := agg.Search(context.Background(), "q", nil, 10)

	require.Len(t, results, 2)
	// The penalized lossless result sinks below the clean lossy one.
	assert.Equal(t, "fine", results[0].ExternalID)
	assert.Equal(t, "sketchy", results[1].ExternalID)
	assert.True(t, results[1].Penalized)
}

func TestSearchLimitApplied(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 30; i++ {
		candidates = append(candidates, Candidate{
			Source:     SourceExtraction,
			ExternalID: string(rune('a' + i)),
			Title:      "Track " + string(rune('a'+i)),
			Artist:     "Artist " + string(rune('a'+i)),
			Tier:       TierLossy,
			Duration:   100 + i*10,
		})
	}
	adapter := &fakeAdapter{tag: SourceExtraction, candidates: candidates}

	agg := newTestAggregator(t, []Adapter{adapter}, nil)
	results, _ := agg.Search(context.Background(), "q", nil, 5)

	assert.Len(t, results, 5)
}

func TestSearchSourceFilter(t *testing.T) {
	catalogue := &fakeAdapter{tag: SourceCatalogue, candidates: []Candidate{
		{Source: SourceCatalogue, ExternalID: "1", Title: "A", Artist: "X", Tier: TierLossless},
	}}
	extraction := &fakeAdapter{tag: SourceExtraction, candidates: []Candidate{
		{Source: SourceExtraction, ExternalID: "2", Title: "B", Artist: "Y", Tier: TierLossy},
	}}

	agg := newTestAggregator(t, []Adapter{catalogue, extraction}, nil)
	results, errs := agg.Search(context.Background(), "q", []SourceTag{SourceCatalogue}, 10)

	require.Empty(t, errs)
	require.Len(t, results, 1)
	assert.Equal(t, SourceCatalogue, results[0].Source)
}
