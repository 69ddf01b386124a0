package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/sk-go/agentflow/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	t.Run("SetAndGet", func(t *testing.T) {
		c := cache.NewMemoryCache()
		require.NoError(t, c.Set("k", []byte("v"), 0))
		got, err := c.Get("k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)
	})

	t.Run("MissingKeyReturnsErrNotFound", func(t *testing.T) {
		c := cache.NewMemoryCache()
		_, err := c.Get("missing")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		c := cache.NewMemoryCache()
		require.NoError(t, c.Set("k", []byte("old"), 0))
		require.NoError(t, c.Set("k", []byte("new"), 0))
		got, err := c.Get("k")
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), got)
	})

	t.Run("Delete", func(t *testing.T) {
		c := cache.NewMemoryCache()
		require.NoError(t, c.Set("k", []byte("v"), 0))
		require.NoError(t, c.Delete("k"))
		_, err := c.Get("k")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("DeleteMissingKeyIsNoOp", func(t *testing.T) {
		c := cache.NewMemoryCache()
		assert.NoError(t, c.Delete("missing"))
	})

	t.Run("ExpiredEntryIsEvicted", func(t *testing.T) {
		c := cache.NewMemoryCache()
		require.NoError(t, c.Set("k", []byte("v"), 10*time.Millisecond))
		got, err := c.Get("k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)

		time.Sleep(30 * time.Millisecond)
		_, err = c.Get("k")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("ZeroTTLNeverExpires", func(t *testing.T) {
		c := cache.NewMemoryCache()
		require.NoError(t, c.Set("k", []byte("v"), 0))
		time.Sleep(20 * time.Millisecond)
		_, err := c.Get("k")
		assert.NoError(t, err)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		c := cache.NewMemoryCache()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				key := string(rune('a' + n%5))
				_ = c.Set(key, []byte{byte(n)}, time.Minute)
				_, _ = c.Get(key)
				if n%5 == 0 {
					_ = c.Delete(key)
				}
			}(i)
		}
		wg.Wait()
	})
}
