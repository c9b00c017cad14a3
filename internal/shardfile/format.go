// Package shardfile implements the on-disk container for one
// (token_hash -> posting list) mapping (spec §4.2): a shard file.
//
// # File Structure
//
//	+----------------+ 0x00
//	|     Header     | 32 bytes
//	+----------------+ 0x20
//	|   Hash table   | H * 32 bytes
//	+----------------+
//	|   Data region  | sum of posting-list byte lengths
//	+----------------+
//
// The header is self-describing: it carries the slot count H and the
// record width for the posting family stored in this shard, so a reader
// never needs out-of-band schema knowledge to open a file.
package shardfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MagicNumber identifies an alexidx shard file ("ALEX" in ASCII, as
	// a little-endian uint32).
	MagicNumber uint32 = 0x58454c41

	// FormatVersion is the current on-disk format version.
	FormatVersion uint32 = 1

	// HeaderSize is the fixed size of the shard header in bytes.
	HeaderSize = 32

	// SlotSize is the fixed size of one hash-table slot in bytes.
	// 8 (token hash) + 8 (offset) + 4 (length_records) +
	// 4 (total_count_estimator) + 8 reserved = 32.
	SlotSize = 32
)

var (
	// ErrInvalidFormat is returned when a file's magic number doesn't match.
	ErrInvalidFormat = errors.New("shardfile: invalid magic number")
	// ErrVersionMismatch is returned when a file's format version is unsupported.
	ErrVersionMismatch = errors.New("shardfile: unsupported format version")
	// ErrRecordWidthMismatch is returned when a reader's expected record
	// width doesn't match what the shard header declares.
	ErrRecordWidthMismatch = errors.New("shardfile: record width mismatch")
)

// Header is the fixed 32-byte block at the start of every shard file.
//
// # Binary Layout (little-endian)
//
//	Offset  Size  Field
//	0x00    4     Magic
//	0x04    4     Version
//	0x08    4     ShardID
//	0x0C    4     SlotCount (H)
//	0x10    4     RecordWidth (bytes per posting record)
//	0x14    4     Flags (reserved)
//	0x18    8     DataSize (bytes in the data region)
type Header struct {
	Magic       uint32
	Version     uint32
	ShardID     uint32
	SlotCount   uint32
	RecordWidth uint32
	Flags       uint32
	DataSize    uint64
}

// Write serializes the header in little-endian form.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], MagicNumber)
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], h.ShardID)
	binary.LittleEndian.PutUint32(buf[12:16], h.SlotCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.RecordWidth)
	binary.LittleEndian.PutUint32(buf[20:24], h.Flags)
	binary.LittleEndian.PutUint64(buf[24:32], h.DataSize)
	_, err := w.Write(buf)
	return err
}

// Read deserializes the header, validating magic and version.
func (h *Header) Read(r io.Reader) error {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("shardfile: reading header: %w", err)
	}
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	h.ShardID = binary.LittleEndian.Uint32(buf[8:12])
	h.SlotCount = binary.LittleEndian.Uint32(buf[12:16])
	h.RecordWidth = binary.LittleEndian.Uint32(buf[16:20])
	h.Flags = binary.LittleEndian.Uint32(buf[20:24])
	h.DataSize = binary.LittleEndian.Uint64(buf[24:32])

	if h.Magic != MagicNumber {
		return ErrInvalidFormat
	}
	if h.Version != FormatVersion {
		return ErrVersionMismatch
	}
	return nil
}

// Slot is one entry of the open-addressed hash table mapping a token hash
// to the location of its posting list in the data region.
//
// # Binary Layout (32 bytes, little-endian)
//
//	Offset  Size  Field
//	0x00    8     TokenHash (0 = empty sentinel)
//	0x08    8     Offset (absolute file offset of the posting list)
//	0x10    4     LengthRecords (records materialised in the list)
//	0x14    4     TotalCount (estimator; > LengthRecords iff truncated)
//	0x18    8     Reserved
type Slot struct {
	TokenHash     uint64
	Offset        uint64
	LengthRecords uint32
	TotalCount    uint32
}

// Empty reports whether the slot is the sentinel "no entry" value.
func (s Slot) Empty() bool { return s.TokenHash == 0 }

// Truncated reports whether the posting list was capped during build
// (spec §4.3/§4.5): TotalCount exceeds the records actually materialised.
func (s Slot) Truncated() bool { return s.TotalCount > s.LengthRecords }

func encodeSlot(buf []byte, s Slot) {
	binary.LittleEndian.PutUint64(buf[0:8], s.TokenHash)
	binary.LittleEndian.PutUint64(buf[8:16], s.Offset)
	binary.LittleEndian.PutUint32(buf[16:20], s.LengthRecords)
	binary.LittleEndian.PutUint32(buf[20:24], s.TotalCount)
	// buf[24:32] reserved, left zero.
}

func decodeSlot(buf []byte) Slot {
	return Slot{
		TokenHash:     binary.LittleEndian.Uint64(buf[0:8]),
		Offset:        binary.LittleEndian.Uint64(buf[8:16]),
		LengthRecords: binary.LittleEndian.Uint32(buf[16:20]),
		TotalCount:    binary.LittleEndian.Uint32(buf[20:24]),
	}
}
