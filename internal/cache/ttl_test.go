package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL_GetSetPop(t *testing.T) {
	c := New[string, int](time.Minute)
	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	popped, ok := c.Pop("a")
	assert.True(t, ok)
	assert.Equal(t, 1, popped)

	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTL_ExpiryIsLazy(t *testing.T) {
	c := New[string, string](10 * time.Millisecond)
	c.Set("k", "v")

	now := time.Now()
	c.nowFunc = func() time.Time { return now }
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	c.nowFunc = func() time.Time { return now.Add(time.Hour) }
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTL_NonPositiveTTLPanics(t *testing.T) {
	assert.Panics(t, func() {
		New[string, int](0)
	})
}

func TestTTL_Clear(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
