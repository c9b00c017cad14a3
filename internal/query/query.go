// Package query implements the query engine (spec §4.6): it tokenises
// a query, fans out per-token lookups against the textual, URL-link,
// and domain-link indexes, intersects with OR-pool fallback, joins link
// scores, and selects the top-k documents by combined score.
package query

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexandria-go/alexidx/internal/apierr"
	"github.com/alexandria-go/alexidx/internal/config"
	"github.com/alexandria-go/alexidx/internal/index"
	"github.com/alexandria-go/alexidx/internal/logx"
	"github.com/alexandria-go/alexidx/internal/metrics"
	"github.com/alexandria-go/alexidx/internal/resolver"
	"github.com/alexandria-go/alexidx/internal/resultset"
	"github.com/alexandria-go/alexidx/internal/shardfile"
	"github.com/alexandria-go/alexidx/internal/tokenizer"
)

// Match is one scored document in a query response.
type Match struct {
	DocumentHash uint64
	Score        float32
}

// Response is the engine's result for one query, independent of any
// wire encoding (spec §6's JSON schema is assembled from this by the
// HTTP layer).
type Response struct {
	Status                string
	ElapsedMs             float64
	TotalFound            int
	TotalURLLinksFound    int
	TotalDomainLinksFound int
	LinkURLMatches        int
	Results               []Match
}

// Status values (spec §6 "status").
const (
	StatusSuccess  = "success"
	StatusTimeout  = "timeout"
	StatusDegraded = "degraded"
)

// Options tailor a single Search call.
type Options struct {
	// IncludeDuplicates corresponds to spec §6's d=a flag: when false
	// (the default), near-duplicate documents are expected to already
	// have been collapsed upstream of this engine; alexidx's core does
	// not itself detect duplicates (that's the crawler/parser's job per
	// spec §1's non-goals), so this flag is plumbed through unchanged
	// for the HTTP layer to pass to a deduplication collaborator it may
	// own. Present here so the engine's signature matches the full
	// protocol surface.
	IncludeDuplicates bool
	Limit             int
}

// Engine owns the three index families and the document resolver, and
// is stateless between requests (spec §4.8 "The query engine is
// stateless between requests").
type Engine struct {
	Main       *index.Index[shardfile.MainRecord]
	URLLink    *index.Index[shardfile.LinkRecord]
	DomainLink *index.Index[shardfile.LinkRecord]
	Resolver   *resolver.Resolver

	Weights      config.Weights
	DefaultLimit int
	Timeout      time.Duration
	TokenizerCfg tokenizer.Config

	// DocCount is the known size of the indexed corpus, used as the
	// denominator for WordStats (spec §8 TEST-02/TEST-03 scenarios).
	DocCount int
}

// Search runs the full query pipeline for queryText (spec §4.6). It
// respects ctx's deadline between phases (spec §5 cancellation points):
// after tokenisation, after shard lookups, after intersection, and
// after scoring.
func (e *Engine) Search(ctx context.Context, queryText string, opts Options) (*Response, error) {
	start := nowFunc()
	limit := opts.Limit
	if limit <= 0 {
		limit = e.DefaultLimit
	}

	var cancel context.CancelFunc
	if e.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	phaseStart := nowFunc()
	tokens, err := e.tokenize(queryText)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, apierr.New(apierr.KindMalformedQuery, "query tokenised to nothing")
	}
	metrics.QueryPhaseDuration.WithLabelValues("tokenize").Observe(time.Since(phaseStart).Seconds())
	if partial := checkDeadline(ctx, start, StatusTimeout); partial != nil {
		return partial, nil
	}

	phaseStart = nowFunc()
	mainSets, mainDegraded, err := fetchAll(ctx, e.Main, tokens)
	if err != nil {
		return nil, err
	}
	metrics.QueryPhaseDuration.WithLabelValues("lookup").Observe(time.Since(phaseStart).Seconds())
	if partial := checkDeadline(ctx, start, StatusTimeout); partial != nil {
		return partial, nil
	}

	andPool, orPool := classify(mainSets)
	pool := andPool
	fellBack := len(andPool) == 0
	if fellBack {
		pool = orPool
	}

	phaseStart = nowFunc()
	shortest, positions := resultset.Intersect(pool)
	metrics.QueryPhaseDuration.WithLabelValues("intersect").Observe(time.Since(phaseStart).Seconds())
	if partial := checkDeadline(ctx, start, StatusTimeout); partial != nil {
		return partial, nil
	}

	totalFound := len(positions)
	if fellBack {
		totalFound = maxTotalCount(orPool)
	}

	matched := make([]uint64, len(positions))
	textScore := make(map[uint64]float32, len(positions))
	if shortest != nil {
		for i, p := range positions {
			key := shortest.ValueAt(p)
			matched[i] = key
			textScore[key] = shortest.ScoreAt(p)
		}
	}
	matchedSet := make(map[uint64]struct{}, len(matched))
	for _, k := range matched {
		matchedSet[k] = struct{}{}
	}

	urlLinkSets, urlDegraded, err := fetchAll(ctx, e.URLLink, tokens)
	if err != nil {
		return nil, err
	}
	domainLinkSets, domainDegraded, err := fetchAll(ctx, e.DomainLink, tokens)
	if err != nil {
		return nil, err
	}
	if partial := checkDeadline(ctx, start, StatusTimeout); partial != nil {
		return partial, nil
	}

	phaseStart = nowFunc()
	urlLinkScore, docDomain, linkURLMatches, totalURLLinks := joinURLLinks(urlLinkSets, matchedSet)
	domainLinkScore, totalDomainLinks := joinDomainLinks(domainLinkSets, docDomain)

	matches := make([]Match, 0, len(matched))
	for _, doc := range matched {
		score := e.Weights.Text*float64(textScore[doc]) +
			e.Weights.Link*float64(urlLinkScore[doc])
		if dom, ok := docDomain[doc]; ok {
			score += e.Weights.Dom * float64(domainLinkScore[dom])
		}
		matches = append(matches, Match{DocumentHash: doc, Score: float32(score)})
	}

	results := selectTopK(matches, limit)
	metrics.QueryPhaseDuration.WithLabelValues("score").Observe(time.Since(phaseStart).Seconds())
	if partial := checkDeadline(ctx, start, StatusTimeout); partial != nil {
		partial.Results = results
		return partial, nil
	}

	status := StatusSuccess
	if mainDegraded || urlDegraded || domainDegraded {
		status = StatusDegraded
	}

	metrics.QueryDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return &Response{
		Status:                status,
		ElapsedMs:             float64(time.Since(start)) / float64(time.Millisecond),
		TotalFound:            totalFound,
		TotalURLLinksFound:    totalURLLinks,
		TotalDomainLinksFound: totalDomainLinks,
		LinkURLMatches:        linkURLMatches,
		Results:               results,
	}, nil
}

// Ids returns the raw encoded posting records for queryText's matched
// documents against the textual index (spec §6 "i=<query> → binary
// body"), bypassing link scoring and resolution entirely.
func (e *Engine) Ids(ctx context.Context, queryText string) ([]byte, error) {
	tokens, err := e.tokenize(queryText)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, apierr.New(apierr.KindMalformedQuery, "query tokenised to nothing")
	}

	sets, _, err := fetchAll(ctx, e.Main, tokens)
	if err != nil {
		return nil, err
	}
	andPool, orPool := classify(sets)
	pool := andPool
	if len(pool) == 0 {
		pool = orPool
	}
	shortest, positions := resultset.Intersect(pool)

	buf := make([]byte, 0, len(positions)*shardfile.MainCodec.Width)
	recBuf := make([]byte, shardfile.MainCodec.Width)
	for _, p := range positions {
		rec := shortest.RecordAt(p)
		shardfile.MainCodec.Encode(rec, recBuf)
		buf = append(buf, recBuf...)
	}
	return buf, nil
}

// WordStats computes per-token document-frequency ratios for phrase
// (spec §8 TEST-02/TEST-03): for each distinct token, the fraction of
// the indexed corpus whose posting list contains it.
func (e *Engine) WordStats(ctx context.Context, phrase string) (map[string]float64, int, error) {
	stats := make(map[string]float64)

	words, err := tokenizer.Words([]byte(phrase), e.TokenizerCfg)
	if err != nil {
		return nil, 0, apierr.Wrap(apierr.KindMalformedQuery, "tokenising word_stats phrase", err)
	}

	for _, word := range words {
		rs, err := e.Main.Lookup(tokenizer.Hash(word))
		if err != nil {
			return nil, 0, err
		}
		ratio := 0.0
		if e.DocCount > 0 {
			ratio = float64(rs.Len()) / float64(e.DocCount)
		}
		stats[word] = ratio
	}
	return stats, e.DocCount, nil
}

func (e *Engine) tokenize(text string) ([]uint64, error) {
	all, err := tokenizer.All([]byte(text), e.TokenizerCfg)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindMalformedQuery, "tokenising query", err)
	}
	seen := make(map[uint64]struct{}, len(all))
	out := make([]uint64, 0, len(all))
	for _, h := range all {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out, nil
}

// fetchAll fans out lookup(token) across tokens concurrently (spec §5:
// shard reads are a blocking point workers may incur in parallel). Per
// spec §7's IoError(read) policy, a failed shard read is retried once;
// if the retry also fails, the token's posting list degrades to empty
// and the returned bool reports that the overall response must be
// reported as status=degraded rather than success.
func fetchAll[R any](ctx context.Context, idx *index.Index[R], tokens []uint64) ([]*resultset.ResultSet[R], bool, error) {
	sets := make([]*resultset.ResultSet[R], len(tokens))
	var degraded atomic.Bool
	var g errgroup.Group
	for i, tok := range tokens {
		i, tok := i, tok
		g.Go(func() error {
			if ctx.Err() != nil {
				sets[i] = resultset.Empty[R]()
				return nil
			}
			rs, err := idx.Lookup(tok)
			if err != nil {
				logx.Warn("query: shard lookup failed for token %d, retrying once: %v", tok, err)
				metrics.ShardLookups.WithLabelValues("unknown", "io_error_retry").Inc()
				rs, err = idx.Lookup(tok)
			}
			if err != nil {
				logx.Warn("query: shard lookup failed for token %d after retry, degrading to empty: %v", tok, err)
				metrics.ShardLookups.WithLabelValues("unknown", "io_error").Inc()
				sets[i] = resultset.Empty[R]()
				degraded.Store(true)
				return nil
			}
			sets[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	return sets, degraded.Load(), nil
}

// classify splits result sets into the AND-pool (precise tokens) and
// OR-pool (frequent-truncated tokens), per spec §4.5's OR-fallback
// design and the sub-spec's adopted policy of demoting every frequent
// term to OR while precise terms stay in AND.
func classify[R any](sets []*resultset.ResultSet[R]) (andPool, orPool []*resultset.ResultSet[R]) {
	for _, s := range sets {
		if s.Truncated() {
			orPool = append(orPool, s)
			metrics.PostingListTruncated.WithLabelValues("main").Inc()
		} else {
			andPool = append(andPool, s)
		}
	}
	return andPool, orPool
}

func maxTotalCount[R any](sets []*resultset.ResultSet[R]) int {
	max := 0
	for _, s := range sets {
		if int(s.TotalCount()) > max {
			max = int(s.TotalCount())
		}
	}
	return max
}

// joinURLLinks performs the hash-based join of URL-link postings onto
// matched documents (spec §4.6): for every URL-link posting whose
// TargetHash is a matched document, its score is summed, and its
// TargetDomain is recorded as that document's domain — the invariant
// that the URL→domain mapping is total on indexed documents (spec §3)
// means no separate resolver call is needed to learn it.
func joinURLLinks(sets []*resultset.ResultSet[shardfile.LinkRecord], matched map[uint64]struct{}) (score map[uint64]float32, docDomain map[uint64]uint64, matches, total int) {
	score = make(map[uint64]float32)
	docDomain = make(map[uint64]uint64)
	for _, s := range sets {
		total += s.Len()
		for i := 0; i < s.Len(); i++ {
			rec := s.RecordAt(i)
			if _, ok := matched[rec.TargetHash]; !ok {
				continue
			}
			score[rec.TargetHash] += rec.Score
			docDomain[rec.TargetHash] = rec.TargetDomain
			matches++
		}
	}
	return score, docDomain, matches, total
}

// joinDomainLinks sums domain-link posting scores for every domain a
// matched document belongs to (per joinURLLinks' docDomain map).
func joinDomainLinks(sets []*resultset.ResultSet[shardfile.LinkRecord], docDomain map[uint64]uint64) (score map[uint64]float32, total int) {
	interest := make(map[uint64]struct{}, len(docDomain))
	for _, d := range docDomain {
		interest[d] = struct{}{}
	}
	score = make(map[uint64]float32)
	for _, s := range sets {
		total += s.Len()
		for i := 0; i < s.Len(); i++ {
			rec := s.RecordAt(i)
			if _, ok := interest[rec.TargetDomain]; !ok {
				continue
			}
			score[rec.TargetDomain] += rec.Score
		}
	}
	return score, total
}

// selectTopK implements spec §4.6's top-k selection: an nth-element
// partition around the (limit-1)-th largest score, a threshold
// collection pass, then a final sort of just the collected documents.
func selectTopK(matches []Match, limit int) []Match {
	if limit <= 0 || len(matches) <= limit {
		out := append([]Match(nil), matches...)
		sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		return out
	}

	work := append([]Match(nil), matches...)
	nthElementDesc(work, limit-1)
	threshold := work[limit-1].Score

	collected := make([]Match, 0, limit)
	for _, m := range work {
		if len(collected) >= limit {
			break
		}
		if m.Score >= threshold {
			collected = append(collected, m)
		}
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].Score > collected[j].Score })
	return collected
}

// nthElementDesc partitions m in place via Hoare quickselect so that
// m[k] holds the value that would occupy position k in a descending
// sort, with every element before it >= it and every element after
// it <=. Expected O(n).
func nthElementDesc(m []Match, k int) {
	lo, hi := 0, len(m)-1
	for lo < hi {
		pivot := m[(lo+hi)/2].Score
		i, j := lo, hi
		for i <= j {
			for m[i].Score > pivot {
				i++
			}
			for m[j].Score < pivot {
				j--
			}
			if i <= j {
				m[i], m[j] = m[j], m[i]
				i++
				j--
			}
		}
		if k <= j {
			hi = j
		} else if k >= i {
			lo = i
		} else {
			return
		}
	}
}

// checkDeadline returns a well-formed partial response if ctx has
// already expired, or nil if the query may continue (spec §5
// "well-formed partial response with status=timeout and the best
// results gathered so far").
func checkDeadline(ctx context.Context, start time.Time, status string) *Response {
	select {
	case <-ctx.Done():
		metrics.QueryDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		return &Response{
			Status:    status,
			ElapsedMs: float64(time.Since(start)) / float64(time.Millisecond),
		}
	default:
		return nil
	}
}

// nowFunc is overridable in tests that need deterministic elapsed times.
var nowFunc = time.Now
