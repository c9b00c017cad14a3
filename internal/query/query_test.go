package query

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandria-go/alexidx/internal/config"
	"github.com/alexandria-go/alexidx/internal/index"
	"github.com/alexandria-go/alexidx/internal/resolver"
	"github.com/alexandria-go/alexidx/internal/shardfile"
	"github.com/alexandria-go/alexidx/internal/tokenizer"
)

// buildMainIndex seals a single-shard main index directly from
// token -> postings, mirroring spec §8's TEST-01 corpus scenarios.
func buildMainIndex(t *testing.T, root string, postings map[uint64][]shardfile.MainRecord) *index.Index[shardfile.MainRecord] {
	t.Helper()
	dir := filepath.Join(root, "main")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	b := shardfile.NewBuilder(shardfile.MainCodec, 0, dir, 10000, 0)
	for tok, recs := range postings {
		for _, r := range recs {
			require.NoError(t, b.Add(tok, r))
		}
	}
	require.NoError(t, b.Flush(filepath.Join(dir, "0.idx")))
	idx, err := index.Open[shardfile.MainRecord](root, "main", 1, shardfile.MainCodec)
	require.NoError(t, err)
	return idx
}

func buildLinkIndex(t *testing.T, root, name string, codec shardfile.Codec[shardfile.LinkRecord], postings map[uint64][]shardfile.LinkRecord) *index.Index[shardfile.LinkRecord] {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	b := shardfile.NewBuilder(codec, 0, dir, 10000, 0)
	for tok, recs := range postings {
		for _, r := range recs {
			require.NoError(t, b.Add(tok, r))
		}
	}
	require.NoError(t, b.Flush(filepath.Join(dir, "0.idx")))
	idx, err := index.Open[shardfile.LinkRecord](root, name, 1, codec)
	require.NoError(t, err)
	return idx
}

type memStore struct{ values map[string]string }

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

// newTestEngine builds a fully wired Engine over one-shard indexes seeded
// with mainPostings and an empty link graph, plus a resolver backed by
// snippets.
func newTestEngine(t *testing.T, mainPostings map[uint64][]shardfile.MainRecord, snippets map[uint64]resolver.Snippet) *Engine {
	t.Helper()
	root := t.TempDir()

	mainIdx := buildMainIndex(t, root, mainPostings)
	urlIdx := buildLinkIndex(t, root, "url_link", shardfile.URLLinkCodec, nil)
	domainIdx := buildLinkIndex(t, root, "domain_link", shardfile.DomainLinkCodec, nil)

	store := &memStore{values: make(map[string]string)}
	for hash, snip := range snippets {
		b, err := json.Marshal(snip)
		require.NoError(t, err)
		store.values[uint64ToKey(hash)] = string(b)
	}
	res, err := resolver.New(store, 128)
	require.NoError(t, err)

	return &Engine{
		Main:         mainIdx,
		URLLink:      urlIdx,
		DomainLink:   domainIdx,
		Resolver:     res,
		Weights:      config.Weights{Text: 1.0, Link: 0.1, Dom: 0.05},
		DefaultLimit: 20,
		Timeout:      0,
		TokenizerCfg: tokenizer.DefaultConfig(),
		DocCount:     8,
	}
}

func uint64ToKey(h uint64) string {
	return strconv.FormatUint(h, 10)
}

func TestSearchSingleDocumentMatch(t *testing.T) {
	urlHash := tokenizer.Hash("http://url1.com/test")
	tokURL1 := tokenizer.Hash("url1")
	tokCom := tokenizer.Hash("com")

	engine := newTestEngine(t,
		map[uint64][]shardfile.MainRecord{
			tokURL1: {{DocumentHash: urlHash, Score: 1.0}},
			tokCom:  {{DocumentHash: urlHash, Score: 1.0}},
		},
		map[uint64]resolver.Snippet{
			urlHash: {URL: "http://url1.com/test", Title: "Test"},
		},
	)

	resp, err := engine.Search(context.Background(), "url1.com", Options{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, 1, resp.TotalFound)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, urlHash, resp.Results[0].DocumentHash)
}

func TestSearchNoMatchesReturnsEmpty(t *testing.T) {
	engine := newTestEngine(t, map[uint64][]shardfile.MainRecord{}, nil)
	resp, err := engine.Search(context.Background(), "nonexistentword", Options{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.TotalFound)
	assert.Empty(t, resp.Results)
}

func TestSearchEmptyQueryIsMalformed(t *testing.T) {
	engine := newTestEngine(t, map[uint64][]shardfile.MainRecord{}, nil)
	_, err := engine.Search(context.Background(), "the and or", Options{Limit: 10})
	require.Error(t, err, "query tokenises to nothing once stop words are dropped")
}

func TestSearchAlreadyExpiredContextReturnsTimeout(t *testing.T) {
	engine := newTestEngine(t, map[uint64][]shardfile.MainRecord{
		tokenizer.Hash("alpha"): {{DocumentHash: 1, Score: 1.0}},
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	resp, err := engine.Search(ctx, "alpha", Options{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, resp.Status)
}

func TestSearchDegradesOnShardReadFailure(t *testing.T) {
	urlHash := tokenizer.Hash("http://url1.com/test")
	engine := newTestEngine(t, map[uint64][]shardfile.MainRecord{
		tokenizer.Hash("alpha"): {{DocumentHash: urlHash, Score: 1.0}},
	}, nil)

	// Closing the main index's shard file descriptors makes every
	// subsequent Load() fail, so the retry in fetchAll also fails and
	// the query must degrade rather than panic or silently succeed.
	require.NoError(t, engine.Main.Close())

	resp, err := engine.Search(context.Background(), "alpha", Options{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, 0, resp.TotalFound)
}

func TestWordStatsRatios(t *testing.T) {
	engine := newTestEngine(t, map[uint64][]shardfile.MainRecord{
		// "meta" appears in all 8 documents, "uniq" in only one of them.
		tokenizer.Hash("meta"): {
			{DocumentHash: 1, Score: 1.0}, {DocumentHash: 2, Score: 1.0},
			{DocumentHash: 3, Score: 1.0}, {DocumentHash: 4, Score: 1.0},
			{DocumentHash: 5, Score: 1.0}, {DocumentHash: 6, Score: 1.0},
			{DocumentHash: 7, Score: 1.0}, {DocumentHash: 8, Score: 1.0},
		},
		tokenizer.Hash("uniq"): {{DocumentHash: 1, Score: 1.0}},
	}, nil)
	engine.DocCount = 8

	stats, total, err := engine.WordStats(context.Background(), "Meta Description Text")
	require.NoError(t, err)
	assert.Equal(t, 8, total)
	assert.Equal(t, 1.0, stats["meta"])

	stats2, _, err := engine.WordStats(context.Background(), "more uniq")
	require.NoError(t, err)
	assert.Equal(t, 0.125, stats2["uniq"])
}

func TestIdsReturnsBinaryPostings(t *testing.T) {
	docHash := tokenizer.Hash("http://url1.com/test")
	engine := newTestEngine(t, map[uint64][]shardfile.MainRecord{
		tokenizer.Hash("url1"): {{DocumentHash: docHash, Score: 1.0}},
	}, nil)

	body, err := engine.Ids(context.Background(), "url1")
	require.NoError(t, err)
	require.Len(t, body, shardfile.MainCodec.Width)

	rec := shardfile.MainCodec.Decode(body[:shardfile.MainCodec.Width])
	assert.Equal(t, docHash, rec.DocumentHash)
}

func TestSelectTopKMatchesSortedDescending(t *testing.T) {
	matches := []Match{
		{DocumentHash: 1, Score: 0.5},
		{DocumentHash: 2, Score: 0.9},
		{DocumentHash: 3, Score: 0.1},
		{DocumentHash: 4, Score: 0.7},
	}
	top := selectTopK(matches, 2)
	require.Len(t, top, 2)
	assert.Equal(t, uint64(2), top[0].DocumentHash)
	assert.Equal(t, uint64(4), top[1].DocumentHash)
}

func TestSelectTopKUnderLimitSortsAll(t *testing.T) {
	matches := []Match{
		{DocumentHash: 1, Score: 0.1},
		{DocumentHash: 2, Score: 0.9},
	}
	top := selectTopK(matches, 10)
	require.Len(t, top, 2)
	assert.Equal(t, uint64(2), top[0].DocumentHash)
}
