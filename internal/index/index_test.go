package index

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandria-go/alexidx/internal/shardfile"
)

func buildShard(t *testing.T, dir, name string, shardID uint32, postings map[uint64][]shardfile.MainRecord) {
	t.Helper()
	shardDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(shardDir, 0o755))

	b := shardfile.NewBuilder(shardfile.MainCodec, shardID, shardDir, 1000, 0)
	for tok, recs := range postings {
		for _, r := range recs {
			require.NoError(t, b.Add(tok, r))
		}
	}
	path := filepath.Join(shardDir, fmt.Sprintf("%d.idx", shardID))
	require.NoError(t, b.Flush(path))
}

func TestIndexRoutingAndLookup(t *testing.T) {
	dir := t.TempDir()
	// With NumShards=2, token hash 4 routes to shard 0 (4 mod 2 == 0).
	buildShard(t, dir, "main", 0, map[uint64][]shardfile.MainRecord{
		4: {{DocumentHash: 1, Score: 1.0}, {DocumentHash: 2, Score: 2.0}},
	})
	// Shard 1 is never built; Open must treat it as permanently empty.

	idx, err := Open[shardfile.MainRecord](dir, "main", 2, shardfile.MainCodec)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, 2, idx.NumShards())

	rs, err := idx.Lookup(4)
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, uint64(1), rs.ValueAt(0))

	// Token 5 routes to the missing shard 1; Lookup must degrade to empty
	// rather than error (spec §7 IndexMissing runtime policy).
	rsMissing, err := idx.Lookup(5)
	require.NoError(t, err)
	assert.Equal(t, 0, rsMissing.Len())

	// Token never indexed but routed to an existing shard.
	rsUnknown, err := idx.Lookup(1000004) // also mod 2 == 0
	require.NoError(t, err)
	assert.Equal(t, 0, rsUnknown.Len())
}

func TestIndexDiskSizeAndClose(t *testing.T) {
	dir := t.TempDir()
	buildShard(t, dir, "main", 0, map[uint64][]shardfile.MainRecord{
		1: {{DocumentHash: 1, Score: 1.0}},
	})
	idx, err := Open[shardfile.MainRecord](dir, "main", 1, shardfile.MainCodec)
	require.NoError(t, err)

	size, err := idx.DiskSize()
	require.NoError(t, err)
	assert.Positive(t, size)

	require.NoError(t, idx.Close())
}
