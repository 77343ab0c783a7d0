package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGet(t *testing.T) {
	c := New(time.Minute, 10)

	c.Set("a", []byte("payload"))

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCache_Expiry(t *testing.T) {
	c := New(10*time.Millisecond, 10)
	c.Set("a", "value")

	_, ok := c.Get("a")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(time.Minute, 3)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch a and c so b becomes the LRU entry.
	_, _ = c.Get("a")
	_, _ = c.Get("c")

	c.Set("d", 4)

	_, ok := c.Get("b")
	assert.False(t, ok)
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, key)
	}
}

func TestCache_SetExistingDoesNotEvict(t *testing.T) {
	c := New(time.Minute, 2)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Set("a", 10)
	assert.Equal(t, 2, c.Len())

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, got)
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("repo1:a.go", 1)
	c.Set("repo1:b.go", 2)
	c.Set("repo2:a.go", 3)

	removed := c.InvalidatePrefix("repo1:")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("repo2:a.go")
	assert.True(t, ok)
}

func TestCache_Clear(t *testing.T) {
	c := New(time.Minute, 10)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Delete(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("a", 1)
	c.Delete("a")
	c.Delete("a") // no-op on absent key

	_, ok := c.Get("a")
	assert.False(t, ok)
}
