package search

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const uploaderPenalty = 500

// Blacklist is the view the aggregator consults before ranking.
type Blacklist interface {
	IsBlocked(source SourceTag, externalID string) bool
	IsUploaderBlocked(source SourceTag, uploader string) bool
}

// Aggregator fans a query out to every enabled adapter in parallel and
// merges the results into one ranked, de-duplicated list.
type Aggregator struct {
	adapters          map[SourceTag]Adapter
	blacklist         Blacklist
	perSourceTimeout  time.Duration
	durationTolerance int
	logger            *zap.Logger
}

// NewAggregator wires the enabled adapters. blacklist may be nil.
func NewAggregator(
	adapters []Adapter,
	blacklist Blacklist,
	perSourceTimeout time.Duration,
	durationTolerance int,
	logger *zap.Logger,
) *Aggregator {
	m := make(map[SourceTag]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Tag()] = a
	}
	return &Aggregator{
		adapters:          m,
		blacklist:         blacklist,
		perSourceTimeout:  perSourceTimeout,
		durationTolerance: durationTolerance,
		logger:            logger,
	}
}

// Search queries the requested sources (all enabled ones when sources is
// empty) and returns at most limit ranked candidates plus the per-source
// error set. A failing or slow adapter degrades the result set; it never
// fails the whole search.
func (a *Aggregator) Search(ctx context.Context, query string, sources []SourceTag, limit int) ([]Candidate, map[SourceTag]error) {
	wanted := a.selectSources(sources)

	type branch struct {
		tag        SourceTag
		candidates []Candidate
		err        error
	}

	results := make(chan branch, len(wanted))
	var wg sync.WaitGroup

	for tag, adapter := range wanted {
		wg.Add(1)
		go func(tag SourceTag, adapter Adapter) {
			defer wg.Done()

			branchCtx, cancel := context.WithTimeout(ctx, a.perSourceTimeout)
			defer cancel()

			start := time.Now()
			candidates, err := adapter.Search(branchCtx, query, limit)
			if err != nil {
				a.logger.Warn("source search failed",
					zap.String("source", string(tag)),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
			}
			results <- branch{tag: tag, candidates: candidates, err: err}
		}(tag, adapter)
	}

	wg.Wait()
	close(results)

	var merged []Candidate
	errs := make(map[SourceTag]error)
	for b := range results {
		if b.err != nil {
			errs[b.tag] = b.err
			continue
		}
		merged = append(merged, b.candidates...)
	}

	merged = a.applyBlacklist(merged)
	sort.SliceStable(merged, func(i, j int) bool {
		return rankLess(merged[j], merged[i])
	})
	merged = a.dedupe(merged)

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	a.logger.Info("search aggregated",
		zap.String("query", query),
		zap.Int("results", len(merged)),
		zap.Int("failed_sources", len(errs)))

	return merged, errs
}

func (a *Aggregator) selectSources(sources []SourceTag) map[SourceTag]Adapter {
	if len(sources) == 0 {
		return a.adapters
	}
	out := make(map[SourceTag]Adapter, len(sources))
	for _, tag := range sources {
		if adapter, ok := a.adapters[tag]; ok {
			out[tag] = adapter
		}
	}
	return out
}

// applyBlacklist drops blocked external ids and penalizes blocked uploaders.
func (a *Aggregator) applyBlacklist(candidates []Candidate) []Candidate {
	if a.blacklist == nil {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		if a.blacklist.IsBlocked(c.Source, c.ExternalID) {
			continue
		}
		if c.Uploader != "" && a.blacklist.IsUploaderBlocked(c.Source, c.Uploader) {
			c.Penalized = true
			c.Score -= uploaderPenalty
		}
		out = append(out, c)
	}
	return out
}

// rankLess orders candidates for descending sort: quality tier first,
// declared bitrate second, source priority as the tiebreak (catalogue
// results are verified lossless, extraction ones are reprocessed).
// Penalized candidates sink below everything unpenalized.
func rankLess(a, b Candidate) bool {
	if a.Penalized != b.Penalized {
		return a.Penalized
	}
	if a.Tier != b.Tier {
		return a.Tier < b.Tier
	}
	if a.Bitrate != b.Bitrate {
		return a.Bitrate < b.Bitrate
	}
	if sourcePriority(a.Source) != sourcePriority(b.Source) {
		return sourcePriority(a.Source) < sourcePriority(b.Source)
	}
	return a.Score < b.Score
}

func sourcePriority(tag SourceTag) int {
	switch tag {
	case SourceCatalogue:
		return 2
	case SourcePeer:
		return 1
	default:
		return 0
	}
}

// dedupe merges candidates that share a normalized (artist, title) key and
// sit within the duration tolerance. Input must already be rank-sorted, so
// the survivor is always the highest-ranked member of its group.
func (a *Aggregator) dedupe(candidates []Candidate) []Candidate {
	type group struct {
		key      string
		duration int
		index    int
	}

	var out []Candidate
	var groups []group

	for _, c := range candidates {
		key := NormalizeKey(candidateArtist(c), c.Title)

		matched := -1
		for _, g := range groups {
			if g.key != key {
				continue
			}
			if c.Duration == 0 || g.duration == 0 || abs(c.Duration-g.duration) <= a.durationTolerance {
				matched = g.index
				break
			}
		}

		if matched >= 0 {
			out[matched].Alternates = append(out[matched].Alternates, c)
			continue
		}

		groups = append(groups, group{key: key, duration: c.Duration, index: len(out)})
		out = append(out, c)
	}

	return out
}

func candidateArtist(c Candidate) string {
	if c.Artist != "" {
		return c.Artist
	}
	return c.Uploader
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
