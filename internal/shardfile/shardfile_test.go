package shardfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.idx")

	b := NewBuilder(MainCodec, 0, dir, 1000, 0)
	require.NoError(t, b.Add(100, MainRecord{DocumentHash: 3, Score: 1.0}))
	require.NoError(t, b.Add(100, MainRecord{DocumentHash: 1, Score: 2.0}))
	require.NoError(t, b.Add(100, MainRecord{DocumentHash: 2, Score: 0.5}))
	require.NoError(t, b.Add(200, MainRecord{DocumentHash: 9, Score: 1.0}))
	require.NoError(t, b.Flush(path))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	slot, ok := r.Find(100)
	require.True(t, ok)
	assert.EqualValues(t, 3, slot.LengthRecords)
	assert.False(t, slot.Truncated())

	raw, err := r.Load(slot.Offset, int(slot.LengthRecords)*MainCodec.Width)
	require.NoError(t, err)

	var docs []uint64
	for i := 0; i < int(slot.LengthRecords); i++ {
		rec := MainCodec.Decode(raw[i*MainCodec.Width : (i+1)*MainCodec.Width])
		docs = append(docs, rec.DocumentHash)
	}
	assert.Equal(t, []uint64{1, 2, 3}, docs, "posting lists are sorted ascending by primary key")

	_, ok = r.Find(999)
	assert.False(t, ok, "an unindexed token is not found")
}

func TestDedupeKeepsMaxScoreOnTies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.idx")

	b := NewBuilder(MainCodec, 0, dir, 1000, 0)
	require.NoError(t, b.Add(42, MainRecord{DocumentHash: 7, Score: 1.0}))
	require.NoError(t, b.Add(42, MainRecord{DocumentHash: 7, Score: 5.0}))
	require.NoError(t, b.Add(42, MainRecord{DocumentHash: 7, Score: 2.0}))
	require.NoError(t, b.Flush(path))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	slot, ok := r.Find(42)
	require.True(t, ok)
	assert.EqualValues(t, 1, slot.LengthRecords)

	raw, err := r.Load(slot.Offset, int(slot.LengthRecords)*MainCodec.Width)
	require.NoError(t, err)
	rec := MainCodec.Decode(raw)
	assert.Equal(t, float32(5.0), rec.Score)
}

func TestPerTokenCapTruncatesLowestScoring(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.idx")

	b := NewBuilder(MainCodec, 0, dir, 2, 0)
	require.NoError(t, b.Add(1, MainRecord{DocumentHash: 1, Score: 1.0}))
	require.NoError(t, b.Add(1, MainRecord{DocumentHash: 2, Score: 3.0}))
	require.NoError(t, b.Add(1, MainRecord{DocumentHash: 3, Score: 2.0}))
	require.NoError(t, b.Flush(path))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	slot, ok := r.Find(1)
	require.True(t, ok)
	assert.EqualValues(t, 2, slot.LengthRecords, "only the top C_post postings are kept")
	assert.EqualValues(t, 3, slot.TotalCount, "the estimator counts every Add regardless of truncation")
	assert.True(t, slot.Truncated())

	raw, err := r.Load(slot.Offset, int(slot.LengthRecords)*MainCodec.Width)
	require.NoError(t, err)
	var scores []float32
	for i := 0; i < int(slot.LengthRecords); i++ {
		rec := MainCodec.Decode(raw[i*MainCodec.Width : (i+1)*MainCodec.Width])
		scores = append(scores, rec.Score)
	}
	assert.ElementsMatch(t, []float32{2.0, 3.0}, scores, "the lowest-scoring posting (1.0) was dropped")
}

func TestSpillAndMergeAcrossPartials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.idx")

	// A tiny memory budget forces a spill after every Add.
	b := NewBuilder(MainCodec, 0, dir, 1000, int64(MainCodec.Width))
	require.NoError(t, b.Add(1, MainRecord{DocumentHash: 10, Score: 1.0}))
	require.NoError(t, b.Add(1, MainRecord{DocumentHash: 20, Score: 2.0}))
	require.NoError(t, b.Add(2, MainRecord{DocumentHash: 30, Score: 1.0}))
	require.NoError(t, b.Flush(path))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	slot, ok := r.Find(1)
	require.True(t, ok)
	assert.EqualValues(t, 2, slot.LengthRecords)

	slot2, ok := r.Find(2)
	require.True(t, ok)
	assert.EqualValues(t, 1, slot2.LengthRecords)
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.idx")
	// A full-size header of zero bytes: long enough to read, wrong magic.
	require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestLoadFactorStaysBelowThreshold(t *testing.T) {
	assert.Equal(t, 1, nextTableSize(0))
	assert.LessOrEqual(t, float64(100)/float64(nextTableSize(100)), 0.7)
	assert.LessOrEqual(t, float64(1)/float64(nextTableSize(1)), 0.7)
}
