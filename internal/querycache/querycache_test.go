package querycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New[int](4, time.Minute)
	defer c.Close()

	c.Set("q1", 42)
	v, ok := c.Get("q1")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestExpiry(t *testing.T) {
	c := New[int](4, 10*time.Millisecond)
	defer c.Close()

	c.Set("q1", 1)
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("q1")
	assert.False(t, ok)
}

func TestEvictionAtCapacity(t *testing.T) {
	c := New[int](2, time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	// a is accessed repeatedly so it outlives b under least-accessed eviction.
	c.Get("a")
	c.Get("a")
	c.Set("c", 3)

	_, aok := c.Get("a")
	_, cok := c.Get("c")
	assert.True(t, aok)
	assert.True(t, cok)

	total, _ := c.Stats()
	assert.LessOrEqual(t, total, 2)
}
