package shardfile

import (
	"fmt"
	"os"

	"github.com/alexandria-go/alexidx/internal/logx"
)

// Reader is an open, sealed shard file (spec §4.8: a shard is always
// Building or Sealed; a Reader only ever observes Sealed shards). The file
// is opened once and kept open; the hash table is loaded into memory at
// open time so Find never touches disk, and the data region is read with
// single positional reads (pread) per spec §4.2.
type Reader struct {
	file   *os.File
	path   string
	header Header
	slots  []Slot
}

// Open opens path as a sealed shard file, reading its header and full
// hash table into memory.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{file: f, path: path}
	if err := r.header.Read(f); err != nil {
		f.Close()
		return nil, err
	}

	tableBytes := make([]byte, int(r.header.SlotCount)*SlotSize)
	if _, err := f.ReadAt(tableBytes, HeaderSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("shardfile: reading hash table of %s: %w", path, err)
	}

	r.slots = make([]Slot, r.header.SlotCount)
	for i := range r.slots {
		r.slots[i] = decodeSlot(tableBytes[i*SlotSize : (i+1)*SlotSize])
	}

	logx.TraceIf("shardfile", "opened %s: shard=%d slots=%d data=%dB", path, r.header.ShardID, r.header.SlotCount, r.header.DataSize)
	return r, nil
}

// ShardID returns the shard identifier recorded in the header.
func (r *Reader) ShardID() uint32 { return r.header.ShardID }

// RecordWidth returns the posting record width this shard was built with,
// so a caller can assert it matches the codec it intends to use.
func (r *Reader) RecordWidth() uint32 { return r.header.RecordWidth }

// Stats reports the hash table's slot count, how many slots are
// occupied, and how many occupied slots carry a truncated posting list
// (spec §4.3 load-factor invariant and §4.5 OR-pool classification), for
// operational inspection of a sealed shard.
func (r *Reader) Stats() (slots, occupied, truncated int) {
	slots = len(r.slots)
	for _, s := range r.slots {
		if s.Empty() {
			continue
		}
		occupied++
		if s.Truncated() {
			truncated++
		}
	}
	return slots, occupied, truncated
}

// Find probes the hash table for tokenHash by linear probing starting at
// slot tokenHash mod H (spec §4.2). Returns ok=false if the token was
// never indexed in this shard.
func (r *Reader) Find(tokenHash uint64) (slot Slot, ok bool) {
	h := len(r.slots)
	if h == 0 {
		return Slot{}, false
	}
	start := int(tokenHash % uint64(h))
	for i := 0; i < h; i++ {
		idx := (start + i) % h
		s := r.slots[idx]
		if s.Empty() {
			return Slot{}, false
		}
		if s.TokenHash == tokenHash {
			return s, true
		}
	}
	return Slot{}, false
}

// Load performs a single positional read of length bytes at offset,
// returning the raw posting-list bytes. The OS page cache absorbs hot
// regions across repeated calls; no in-process decompression happens
// here (spec §4.2).
func (r *Reader) Load(offset uint64, length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := r.file.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("shardfile: reading data region of %s at %d: %w", r.path, offset, err)
	}
	return buf, nil
}

// DiskSize returns the shard file's total size on disk.
func (r *Reader) DiskSize() (int64, error) {
	info, err := r.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close releases the underlying file descriptor.
func (r *Reader) Close() error {
	return r.file.Close()
}
