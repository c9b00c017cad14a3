package shardfile

import "encoding/binary"
import "math"

// Codec describes how to serialize a posting record type R and which
// field of it is the primary key for sorted intersection (spec §4.5,
// glossary "Primary key").
type Codec[R any] struct {
	Width     int
	Key       func(R) uint64
	Score     func(R) float32
	Encode    func(R, []byte)
	Decode    func([]byte) R
}

// MainRecord is a posting in the textual index: (document_hash, score).
// 12 bytes on disk.
type MainRecord struct {
	DocumentHash uint64
	Score        float32
}

// MainCodec encodes/decodes MainRecord, keyed by DocumentHash.
var MainCodec = Codec[MainRecord]{
	Width: 12,
	Key:   func(r MainRecord) uint64 { return r.DocumentHash },
	Score: func(r MainRecord) float32 { return r.Score },
	Encode: func(r MainRecord, buf []byte) {
		binary.LittleEndian.PutUint64(buf[0:8], r.DocumentHash)
		binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(r.Score))
	},
	Decode: func(buf []byte) MainRecord {
		return MainRecord{
			DocumentHash: binary.LittleEndian.Uint64(buf[0:8]),
			Score:        math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
		}
	},
}

// LinkRecord is a posting in the URL-link or domain-link index:
// (value, source_hash, target_hash, source_domain, target_domain, score).
// 44 bytes on disk. The URL-link index intersects on TargetHash; the
// domain-link index intersects on TargetDomain — same layout, different
// primary key (spec glossary).
type LinkRecord struct {
	Value        uint64
	SourceHash   uint64
	TargetHash   uint64
	SourceDomain uint64
	TargetDomain uint64
	Score        float32
}

func encodeLinkRecord(r LinkRecord, buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], r.Value)
	binary.LittleEndian.PutUint64(buf[8:16], r.SourceHash)
	binary.LittleEndian.PutUint64(buf[16:24], r.TargetHash)
	binary.LittleEndian.PutUint64(buf[24:32], r.SourceDomain)
	binary.LittleEndian.PutUint64(buf[32:40], r.TargetDomain)
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(r.Score))
}

func decodeLinkRecord(buf []byte) LinkRecord {
	return LinkRecord{
		Value:        binary.LittleEndian.Uint64(buf[0:8]),
		SourceHash:   binary.LittleEndian.Uint64(buf[8:16]),
		TargetHash:   binary.LittleEndian.Uint64(buf[16:24]),
		SourceDomain: binary.LittleEndian.Uint64(buf[24:32]),
		TargetDomain: binary.LittleEndian.Uint64(buf[32:40]),
		Score:        math.Float32frombits(binary.LittleEndian.Uint32(buf[40:44])),
	}
}

// URLLinkCodec encodes/decodes LinkRecord for the URL-link index, keyed
// by TargetHash.
var URLLinkCodec = Codec[LinkRecord]{
	Width:  44,
	Key:    func(r LinkRecord) uint64 { return r.TargetHash },
	Score:  func(r LinkRecord) float32 { return r.Score },
	Encode: encodeLinkRecord,
	Decode: decodeLinkRecord,
}

// DomainLinkCodec encodes/decodes LinkRecord for the domain-link index,
// keyed by TargetDomain.
var DomainLinkCodec = Codec[LinkRecord]{
	Width:  44,
	Key:    func(r LinkRecord) uint64 { return r.TargetDomain },
	Score:  func(r LinkRecord) float32 { return r.Score },
	Encode: encodeLinkRecord,
	Decode: decodeLinkRecord,
}
