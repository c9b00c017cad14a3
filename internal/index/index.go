// Package index implements the fixed set of N shards that make up one
// logical index family (spec §4.4): textual, URL-link, or domain-link.
// Routing a token to a shard is a single modulo; fan-out for a query's k
// tokens is k independent shard lookups.
package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexandria-go/alexidx/internal/apierr"
	"github.com/alexandria-go/alexidx/internal/logx"
	"github.com/alexandria-go/alexidx/internal/resultset"
	"github.com/alexandria-go/alexidx/internal/shardfile"
)

// Index is a fixed-size, read-only fan-out over N shard files sharing one
// directory and one posting record layout.
type Index[R any] struct {
	name    string
	dir     string
	codec   shardfile.Codec[R]
	shards  []*shardfile.Reader
	missing []uint32
}

// Open opens every shard under dir/<name>/ for a family of numShards
// shards, named "<shard_id>.idx". A missing shard file is logged and
// treated as permanently empty at runtime (spec §7 IndexMissing policy);
// Open itself does not fail because of it, so a partially built index can
// still serve queries against the shards that exist.
func Open[R any](dir, name string, numShards int, codec shardfile.Codec[R]) (*Index[R], error) {
	idx := &Index[R]{
		name:   name,
		dir:    filepath.Join(dir, name),
		codec:  codec,
		shards: make([]*shardfile.Reader, numShards),
	}

	for id := 0; id < numShards; id++ {
		path := idx.shardPath(uint32(id))
		r, err := shardfile.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				logx.Warn("index %s: shard %d missing at %s, treating as empty", name, id, path)
				idx.missing = append(idx.missing, uint32(id))
				continue
			}
			return nil, apierr.Wrap(apierr.KindIndexMissing, fmt.Sprintf("opening shard %d of index %s", id, name), err)
		}
		if r.RecordWidth() != uint32(codec.Width) {
			r.Close()
			return nil, apierr.Wrap(apierr.KindIndexMissing, fmt.Sprintf("opening shard %d of index %s", id, name), shardfile.ErrRecordWidthMismatch)
		}
		idx.shards[id] = r
	}
	return idx, nil
}

func (idx *Index[R]) shardPath(shardID uint32) string {
	return filepath.Join(idx.dir, fmt.Sprintf("%d.idx", shardID))
}

// NumShards returns N, the fixed shard count of this index family.
func (idx *Index[R]) NumShards() int { return len(idx.shards) }

// shardFor routes tokenHash to its owning shard id (spec §4.4 "Routing").
func (idx *Index[R]) shardFor(tokenHash uint64) int {
	return int(tokenHash % uint64(len(idx.shards)))
}

// Lookup returns a ResultSet view over tokenHash's posting list. A token
// never indexed, or routed to a missing shard, yields a valid empty
// ResultSet rather than an error — the query engine degrades gracefully
// per spec §7.
func (idx *Index[R]) Lookup(tokenHash uint64) (*resultset.ResultSet[R], error) {
	shardID := idx.shardFor(tokenHash)
	reader := idx.shards[shardID]
	if reader == nil {
		return resultset.Empty[R](), nil
	}

	slot, ok := reader.Find(tokenHash)
	if !ok {
		return resultset.Empty[R](), nil
	}

	raw, err := reader.Load(slot.Offset, int(slot.LengthRecords)*idx.codec.Width)
	if err != nil {
		// spec §7: IoError on read retries once at the caller's
		// discretion; here we surface the error so the query engine can
		// retry or degrade to empty per its own policy.
		return nil, apierr.Wrap(apierr.KindIO, fmt.Sprintf("loading posting list for token %d in shard %d", tokenHash, shardID), err)
	}

	records := make([]R, slot.LengthRecords)
	for i := range records {
		records[i] = idx.codec.Decode(raw[i*idx.codec.Width : (i+1)*idx.codec.Width])
	}
	return resultset.New(records, slot.TotalCount, idx.codec.Key, idx.codec.Score), nil
}

// DiskSize sums the on-disk size of every open shard.
func (idx *Index[R]) DiskSize() (int64, error) {
	var total int64
	for _, r := range idx.shards {
		if r == nil {
			continue
		}
		n, err := r.DiskSize()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Close releases every open shard's file descriptor.
func (idx *Index[R]) Close() error {
	var firstErr error
	for _, r := range idx.shards {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
