package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetGetExpire(t *testing.T) {
	now := time.Date(2025, 11, 24, 21, 0, 0, 0, time.UTC)
	c := New(0)
	c.now = func() time.Time { return now }
	defer c.Close()

	c.Set("a", []float32{1, 2}, time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []float32{1, 2}, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_GetKeepsValueSetAfterExpiryCheck(t *testing.T) {
	now := time.Date(2025, 11, 24, 21, 0, 0, 0, time.UTC)
	c := New(0)
	defer c.Close()
	c.Set("a", "stale", time.Minute)

	calls := 0
	c.now = func() time.Time {
		calls++
		if calls == 1 {
			// Expire the old entry and refresh it before Get takes the write lock.
			now = now.Add(2 * time.Minute)
			c.Set("a", "fresh", time.Minute)
		}
		return now
	}

	_, ok := c.Get("a")
	assert.False(t, ok)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestCache_Cleanup(t *testing.T) {
	now := time.Date(2025, 11, 24, 21, 0, 0, 0, time.UTC)
	c := New(0)
	c.now = func() time.Time { return now }

	c.Set("old", 1, time.Second)
	c.Set("new", 2, time.Hour)
	now = now.Add(time.Minute)
	c.cleanup()

	assert.Equal(t, 1, c.Len())
	c.Close()
	c.Close()
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("model", "title"), Key("model", "title"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 64)
}
