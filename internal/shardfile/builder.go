package shardfile

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/alexandria-go/alexidx/internal/logx"
)

// Builder accumulates postings for one shard in memory, then seals them
// into an immutable shard file (spec §4.3). A Builder is not safe for
// concurrent Add calls from multiple goroutines without external
// synchronization; callers typically own one Builder per in-flight shard
// per ingestion worker.
type Builder[R any] struct {
	codec   Codec[R]
	shardID uint32
	dir     string

	postCap   int   // C_post: per-token in-memory posting cap
	memBudget int64 // resident-bytes threshold that triggers a spill

	postings   map[uint64][]R
	totalCount map[uint64]uint32
	resident   int64

	spillPaths []string
}

// NewBuilder creates a Builder for shardID, writing its final (and any
// spilled partial) files under dir.
func NewBuilder[R any](codec Codec[R], shardID uint32, dir string, postCap int, memBudgetBytes int64) *Builder[R] {
	return &Builder[R]{
		codec:      codec,
		shardID:    shardID,
		dir:        dir,
		postCap:    postCap,
		memBudget:  memBudgetBytes,
		postings:   make(map[uint64][]R),
		totalCount: make(map[uint64]uint32),
	}
}

// Add appends a posting for tokenHash. If the token's buffer then exceeds
// C_post, the lowest-scoring postings are dropped to keep the top C_post
// by score (spec §4.3); the total-count estimator is incremented
// regardless of truncation, so it always reflects how many postings were
// ever added for this token in this shard.
func (b *Builder[R]) Add(tokenHash uint64, rec R) error {
	b.totalCount[tokenHash]++

	list := append(b.postings[tokenHash], rec)
	if len(list) > b.postCap {
		sort.Slice(list, func(i, j int) bool {
			return b.codec.Score(list[i]) > b.codec.Score(list[j])
		})
		list = list[:b.postCap]
	}
	b.postings[tokenHash] = list
	b.resident += int64(b.codec.Width)

	if b.memBudget > 0 && b.resident >= b.memBudget {
		if err := b.spill(); err != nil {
			return err
		}
	}
	return nil
}

// spill writes the current in-memory state to a partial shard file and
// resets the builder's resident state, bounding memory use during very
// large builds (spec §4.3 "Cache policy during very large builds").
func (b *Builder[R]) spill() error {
	path := filepath.Join(b.dir, fmt.Sprintf(".partial-%d-%s", b.shardID, uuid.NewString()))
	if err := writePartial(path, b.codec, b.postings, b.totalCount); err != nil {
		return fmt.Errorf("shardfile: spilling partial shard: %w", err)
	}
	logx.Info("shardfile: spilled partial shard %s (%s resident)", path, humanize.Bytes(uint64(b.resident)))

	b.spillPaths = append(b.spillPaths, path)
	b.postings = make(map[uint64][]R)
	b.totalCount = make(map[uint64]uint32)
	b.resident = 0
	return nil
}

// Flush finalises the shard: if any partials were spilled, merges them
// with the remaining in-memory state via a k-way merge keyed by
// (token_hash, primary_key) with score-max on duplicates; otherwise seals
// directly from memory. The shard is written to a temp file and
// atomically renamed into place (spec §4.2/§4.3/§4.8). Any I/O failure
// aborts the flush, deletes the temp file, and leaves a prior sealed
// shard at path untouched.
func (b *Builder[R]) Flush(path string) (err error) {
	if len(b.spillPaths) > 0 {
		if err := b.spill(); err != nil {
			return err
		}
		return b.flushMerged(path)
	}
	return b.flushFromMemory(path)
}

func (b *Builder[R]) flushFromMemory(path string) error {
	tokens := make([]uint64, 0, len(b.postings))
	for tok := range b.postings {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	lists := make(map[uint64][]R, len(tokens))
	for _, tok := range tokens {
		lists[tok] = dedupeSorted(b.codec, b.postings[tok])
	}
	return b.writeSealed(path, tokens, lists, b.totalCount)
}

func (b *Builder[R]) flushMerged(path string) error {
	defer func() {
		for _, p := range b.spillPaths {
			os.Remove(p)
		}
	}()

	merged, totals, err := mergePartials(b.codec, b.spillPaths)
	if err != nil {
		return err
	}
	tokens := make([]uint64, 0, len(merged))
	for tok := range merged {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return b.writeSealed(path, tokens, merged, totals)
}

// writeSealed builds the hash table and data region from already sorted,
// deduplicated per-token lists and atomically publishes the file at path.
func (b *Builder[R]) writeSealed(path string, tokens []uint64, lists map[uint64][]R, totals map[uint64]uint32) (err error) {
	slotCount := nextTableSize(len(tokens))
	slots := make([]Slot, slotCount)

	tmpPath := filepath.Join(filepath.Dir(path), fmt.Sprintf(".build-%s", uuid.NewString()))
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("shardfile: creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	// Reserve space for header + hash table; data region follows.
	dataStart := uint64(HeaderSize + slotCount*SlotSize)
	if _, err = f.Seek(int64(dataStart), io.SeekStart); err != nil {
		return fmt.Errorf("shardfile: seeking to data region: %w", err)
	}

	recordBuf := make([]byte, b.codec.Width)
	offset := dataStart
	for _, tok := range tokens {
		list := lists[tok]
		for _, rec := range list {
			b.codec.Encode(rec, recordBuf)
			if _, err = f.Write(recordBuf); err != nil {
				return fmt.Errorf("shardfile: writing data region: %w", err)
			}
		}
		slot := Slot{
			TokenHash:     tok,
			Offset:        offset,
			LengthRecords: uint32(len(list)),
			TotalCount:    totals[tok],
		}
		placeSlot(slots, slot)
		offset += uint64(len(list)) * uint64(b.codec.Width)
	}
	dataSize := offset - dataStart

	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("shardfile: seeking to header: %w", err)
	}
	hdr := Header{
		ShardID:     b.shardID,
		SlotCount:   uint32(slotCount),
		RecordWidth: uint32(b.codec.Width),
		DataSize:    dataSize,
	}
	if err = hdr.Write(f); err != nil {
		return fmt.Errorf("shardfile: writing header: %w", err)
	}

	tableBuf := make([]byte, SlotSize)
	for _, s := range slots {
		encodeSlot(tableBuf, s)
		if _, err = f.Write(tableBuf); err != nil {
			return fmt.Errorf("shardfile: writing hash table: %w", err)
		}
	}

	if err = f.Sync(); err != nil {
		return fmt.Errorf("shardfile: syncing temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("shardfile: closing temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("shardfile: renaming into place: %w", err)
	}

	logx.Info("shardfile: sealed %s: %d tokens, %s data, %d slots", path, len(tokens), humanize.Bytes(dataSize), slotCount)
	return nil
}

// placeSlot inserts slot into the open-addressed table via linear probing
// starting at TokenHash mod len(slots).
func placeSlot(slots []Slot, slot Slot) {
	h := len(slots)
	start := int(slot.TokenHash % uint64(h))
	for i := 0; i < h; i++ {
		idx := (start + i) % h
		if slots[idx].Empty() {
			slots[idx] = slot
			return
		}
	}
	panic("shardfile: hash table full, load factor invariant violated")
}

// nextTableSize returns the smallest power of two H such that
// n / H <= 0.7 (spec §4.3 "load factor stays below 0.7").
func nextTableSize(n int) int {
	if n == 0 {
		return 1
	}
	h := 1
	for float64(n)/float64(h) > 0.7 {
		h *= 2
	}
	return h
}

// dedupeSorted sorts list ascending by primary key and collapses
// duplicate keys, keeping the max-scoring record on ties (spec §4.3
// "flush" step).
func dedupeSorted[R any](codec Codec[R], list []R) []R {
	sort.Slice(list, func(i, j int) bool { return codec.Key(list[i]) < codec.Key(list[j]) })

	out := list[:0:0]
	for i := 0; i < len(list); {
		j := i + 1
		best := list[i]
		for j < len(list) && codec.Key(list[j]) == codec.Key(best) {
			if codec.Score(list[j]) > codec.Score(best) {
				best = list[j]
			}
			j++
		}
		out = append(out, best)
		i = j
	}
	return out
}

// --- partial shard spill format ---
//
// A partial file is a simple sequential encoding, not a sealed shard:
// for each token, in ascending token-hash order:
//
//	u64 token_hash
//	u32 total_count
//	u32 record_count
//	record_count * width bytes (sorted, deduped)

func writePartial[R any](path string, codec Codec[R], postings map[uint64][]R, totals map[uint64]uint32) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		cerr := f.Close()
		if err == nil {
			err = cerr
		}
	}()

	tokens := make([]uint64, 0, len(postings))
	for tok := range postings {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })

	hdr := make([]byte, 16)
	recordBuf := make([]byte, codec.Width)
	for _, tok := range tokens {
		list := dedupeSorted(codec, postings[tok])
		binary.LittleEndian.PutUint64(hdr[0:8], tok)
		binary.LittleEndian.PutUint32(hdr[8:12], totals[tok])
		binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(list)))
		if _, err = f.Write(hdr); err != nil {
			return err
		}
		for _, rec := range list {
			codec.Encode(rec, recordBuf)
			if _, err = f.Write(recordBuf); err != nil {
				return err
			}
		}
	}
	return nil
}

// partialCursor streams one token section at a time from a partial file.
type partialCursor[R any] struct {
	f         *os.File
	codec     Codec[R]
	hasNext   bool
	tokenHash uint64
	total     uint32
	records   []R
}

func newPartialCursor[R any](path string, codec Codec[R]) (*partialCursor[R], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	c := &partialCursor[R]{f: f, codec: codec}
	if err := c.advance(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func (c *partialCursor[R]) advance() error {
	hdr := make([]byte, 16)
	_, err := io.ReadFull(c.f, hdr)
	if err == io.EOF {
		c.hasNext = false
		return nil
	}
	if err != nil {
		return err
	}
	c.tokenHash = binary.LittleEndian.Uint64(hdr[0:8])
	c.total = binary.LittleEndian.Uint32(hdr[8:12])
	count := binary.LittleEndian.Uint32(hdr[12:16])

	buf := make([]byte, int(count)*c.codec.Width)
	if _, err := io.ReadFull(c.f, buf); err != nil {
		return err
	}
	c.records = make([]R, count)
	for i := range c.records {
		c.records[i] = c.codec.Decode(buf[i*c.codec.Width : (i+1)*c.codec.Width])
	}
	c.hasNext = true
	return nil
}

func (c *partialCursor[R]) close() { c.f.Close() }

// cursorHeap orders partialCursors by their current token hash for the
// k-way merge across spilled partials (spec §4.3 "merge partial shards by
// a k-way merge keyed by (token_hash, primary_key)").
type cursorHeap[R any] []*partialCursor[R]

func (h cursorHeap[R]) Len() int            { return len(h) }
func (h cursorHeap[R]) Less(i, j int) bool  { return h[i].tokenHash < h[j].tokenHash }
func (h cursorHeap[R]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap[R]) Push(x interface{}) { *h = append(*h, x.(*partialCursor[R])) }
func (h *cursorHeap[R]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergePartials streams every spilled partial file and folds tokens that
// appear in more than one partial into a single sorted, deduped list plus
// a summed total-count estimator.
func mergePartials[R any](codec Codec[R], paths []string) (map[uint64][]R, map[uint64]uint32, error) {
	cursors := make(cursorHeap[R], 0, len(paths))
	defer func() {
		for _, c := range cursors {
			c.close()
		}
	}()

	for _, p := range paths {
		c, err := newPartialCursor(p, codec)
		if err != nil {
			return nil, nil, fmt.Errorf("shardfile: opening partial %s: %w", p, err)
		}
		if c.hasNext {
			cursors = append(cursors, c)
		} else {
			c.close()
		}
	}
	heap.Init(&cursors)

	merged := make(map[uint64][]R)
	totals := make(map[uint64]uint32)

	for cursors.Len() > 0 {
		tok := cursors[0].tokenHash
		var combined []R
		for cursors.Len() > 0 && cursors[0].tokenHash == tok {
			c := cursors[0]
			combined = append(combined, c.records...)
			totals[tok] += c.total
			if err := c.advance(); err != nil {
				return nil, nil, err
			}
			if c.hasNext {
				heap.Fix(&cursors, 0)
			} else {
				heap.Pop(&cursors)
				c.close()
			}
		}
		merged[tok] = dedupeSorted(codec, combined)
	}
	return merged, totals, nil
}
