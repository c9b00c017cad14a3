// Package resolver implements the read-through document resolver (spec
// §4.7): given a document hash, it retrieves the document's snippet
// record from an external key-value store, with an in-process cache in
// front to absorb repeat lookups across queries.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/alexandria-go/alexidx/internal/apierr"
	"github.com/alexandria-go/alexidx/internal/logx"
	"github.com/alexandria-go/alexidx/internal/metrics"
)

// Snippet is the per-document record the resolver returns: URL, title,
// snippet text, and the corpus id it was crawled under.
type Snippet struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	CorpusID string `json:"corpus_id"`
}

// Store is the external key-value collaborator (spec §1 "the generic
// key-value store mapping document hash → snippet record"). Keys are
// string-encoded document hashes; values are JSON-encoded Snippet
// records. alexidx treats it as an opaque collaborator and never opens
// or manages it directly.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Resolver is a pure read-through resolver: it performs no ranking and
// returns results in the order requested (spec §4.7).
type Resolver struct {
	store Store
	cache *lru.Cache[uint64, Snippet]
}

// New builds a Resolver backed by store, caching up to cacheSize
// resolved snippets.
func New(store Store, cacheSize int) (*Resolver, error) {
	cache, err := lru.New[uint64, Snippet](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("resolver: building cache: %w", err)
	}
	return &Resolver{store: store, cache: cache}, nil
}

// Resolve looks up the snippet record for documentHash, checking the
// cache before falling through to the store.
func (r *Resolver) Resolve(ctx context.Context, documentHash uint64) (Snippet, bool, error) {
	if s, ok := r.cache.Get(documentHash); ok {
		metrics.ResolverCache.WithLabelValues("hit").Inc()
		return s, true, nil
	}
	metrics.ResolverCache.WithLabelValues("miss").Inc()

	raw, ok, err := r.store.Get(ctx, fmt.Sprintf("%d", documentHash))
	if err != nil {
		return Snippet{}, false, apierr.Wrap(apierr.KindIO, fmt.Sprintf("resolving document %d", documentHash), err)
	}
	if !ok {
		return Snippet{}, false, nil
	}

	var s Snippet
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		logx.Warn("resolver: malformed snippet record for document %d: %v", documentHash, err)
		return Snippet{}, false, nil
	}

	r.cache.Add(documentHash, s)
	return s, true, nil
}

// ResolveByURL looks up a snippet record by its exact URL rather than by
// document hash (spec §6 "u=<url> → snippet-record lookup by exact
// URL"). The store is expected to key URL lookups with a "url:" prefix
// distinguishing them from hash-keyed entries.
func (r *Resolver) ResolveByURL(ctx context.Context, url string) (Snippet, bool, error) {
	raw, ok, err := r.store.Get(ctx, "url:"+url)
	if err != nil {
		return Snippet{}, false, apierr.Wrap(apierr.KindIO, fmt.Sprintf("resolving url %q", url), err)
	}
	if !ok {
		return Snippet{}, false, nil
	}
	var s Snippet
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		logx.Warn("resolver: malformed snippet record for url %q: %v", url, err)
		return Snippet{}, false, nil
	}
	return s, true, nil
}

// ResolveAll resolves a batch of document hashes in the order supplied,
// skipping any that are not found rather than erroring the whole batch
// (spec §7: the query path degrades rather than fails on a single
// missing resolution).
func (r *Resolver) ResolveAll(ctx context.Context, documentHashes []uint64) ([]Snippet, error) {
	out := make([]Snippet, 0, len(documentHashes))
	for _, h := range documentHashes {
		s, ok, err := r.Resolve(ctx, h)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
