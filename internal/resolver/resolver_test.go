package resolver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	values map[string]string
	calls  int
}

func (f *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	f.calls++
	v, ok := f.values[key]
	return v, ok, nil
}

func encode(t *testing.T, s Snippet) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}

func TestResolveHitsStoreThenCache(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		"42": encode(t, Snippet{URL: "http://example.com", Title: "Example"}),
	}}
	r, err := New(store, 10)
	require.NoError(t, err)

	s, ok, err := r.Resolve(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://example.com", s.URL)
	assert.Equal(t, 1, store.calls)

	// Second call hits the cache, not the store.
	_, ok, err = r.Resolve(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, store.calls)
}

func TestResolveMiss(t *testing.T) {
	store := &fakeStore{values: map[string]string{}}
	r, err := New(store, 10)
	require.NoError(t, err)

	_, ok, err := r.Resolve(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveByURL(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		"url:http://url1.com/test": encode(t, Snippet{URL: "http://url1.com/test", Title: "Test"}),
	}}
	r, err := New(store, 10)
	require.NoError(t, err)

	s, ok, err := r.ResolveByURL(context.Background(), "http://url1.com/test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Test", s.Title)
}

func TestResolveByURLNotFound(t *testing.T) {
	store := &fakeStore{values: map[string]string{}}
	r, err := New(store, 10)
	require.NoError(t, err)

	_, ok, err := r.ResolveByURL(context.Background(), "http://non-existing-url.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveAllSkipsMissing(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		"1": encode(t, Snippet{URL: "one"}),
		"3": encode(t, Snippet{URL: "three"}),
	}}
	r, err := New(store, 10)
	require.NoError(t, err)

	results, err := r.ResolveAll(context.Background(), []uint64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "one", results[0].URL)
	assert.Equal(t, "three", results[1].URL)
}
