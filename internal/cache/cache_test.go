package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		c := NewLRUCache(10)
		require.NoError(t, c.Set(ctx, domain.CacheNamespaceModels, "OAP", []byte("model"), time.Minute))

		got, err := c.Get(ctx, domain.CacheNamespaceModels, "OAP")
		require.NoError(t, err)
		assert.Equal(t, []byte("model"), got)

		// Namespaces do not collide.
		got, err = c.Get(ctx, domain.CacheNamespaceEvents, "OAP")
		require.NoError(t, err)
		assert.Nil(t, got)

		st := c.Stats()
		assert.Equal(t, uint64(1), st.Hits)
		assert.Equal(t, uint64(1), st.Misses)
	})

	t.Run("NamespaceRequired", func(t *testing.T) {
		c := NewLRUCache(10)
		_, err := c.Get(ctx, "", "k")
		assert.Error(t, err)
		assert.Error(t, c.Set(ctx, "", "k", nil, time.Minute))
	})

	t.Run("Expiry", func(t *testing.T) {
		c := NewLRUCache(10)
		now := time.Now()
		c.now = func() time.Time { return now }
		require.NoError(t, c.Set(ctx, "ml", "k", []byte("v"), time.Second))

		now = now.Add(2 * time.Second)
		got, err := c.Get(ctx, "ml", "k")
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, 0, c.Stats().Size)
	})

	t.Run("EvictsLeastRecentlyUsed", func(t *testing.T) {
		c := NewLRUCache(3)
		for i := 0; i < 3; i++ {
			require.NoError(t, c.Set(ctx, "ml", fmt.Sprintf("k%d", i), []byte{byte(i)}, time.Minute))
		}
		// Touch k0 so k1 becomes the eviction candidate.
		_, _ = c.Get(ctx, "ml", "k0")
		require.NoError(t, c.Set(ctx, "ml", "k3", []byte{3}, time.Minute))

		got, _ := c.Get(ctx, "ml", "k1")
		assert.Nil(t, got)
		got, _ = c.Get(ctx, "ml", "k0")
		assert.NotNil(t, got)
		assert.Equal(t, 3, c.Stats().Size)
	})

	t.Run("CounterWindow", func(t *testing.T) {
		c := NewLRUCache(10)
		now := time.Now()
		c.now = func() time.Time { return now }

		n, err := c.IncrementCounter(ctx, "events", "F-1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, _ = c.IncrementCounter(ctx, "events", "F-1", time.Minute)
		assert.Equal(t, int64(2), n)

		now = now.Add(2 * time.Minute)
		n, _ = c.IncrementCounter(ctx, "events", "F-1", time.Minute)
		assert.Equal(t, int64(1), n)
	})

	t.Run("Delete", func(t *testing.T) {
		c := NewLRUCache(10)
		require.NoError(t, c.Set(ctx, "ml", "k", []byte("v"), time.Minute))
		require.NoError(t, c.Delete(ctx, "ml", "k"))
		got, _ := c.Get(ctx, "ml", "k")
		assert.Nil(t, got)
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	local := NewLRUCache(10)
	remote := NewLRUCache(10)
	c := NewTwoPhaseCache(local, remote, time.Minute)

	t.Run("WritesBothTiers", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "ml", "OAP", []byte("m1"), time.Hour))
		got, _ := local.Get(ctx, "ml", "OAP")
		assert.Equal(t, []byte("m1"), got)
		got, _ = remote.Get(ctx, "ml", "OAP")
		assert.Equal(t, []byte("m1"), got)
	})

	t.Run("PopulatesL1FromL2", func(t *testing.T) {
		require.NoError(t, remote.Set(ctx, "ml", "WIDOW", []byte("m2"), time.Hour))
		got, err := c.Get(ctx, "ml", "WIDOW")
		require.NoError(t, err)
		assert.Equal(t, []byte("m2"), got)

		got, _ = local.Get(ctx, "ml", "WIDOW")
		assert.Equal(t, []byte("m2"), got)
	})

	t.Run("DeleteBothTiers", func(t *testing.T) {
		require.NoError(t, c.Delete(ctx, "ml", "OAP"))
		got, _ := c.Get(ctx, "ml", "OAP")
		assert.Nil(t, got)
	})

	t.Run("CountersUseL2", func(t *testing.T) {
		_, err := c.IncrementCounter(ctx, "events", "F-9", time.Minute)
		require.NoError(t, err)
		n, _ := remote.IncrementCounter(ctx, "events", "F-9", time.Minute)
		assert.Equal(t, int64(2), n)
	})

	assert.NoError(t, c.Ping(ctx))
}

func TestNewMemoryCache(t *testing.T) {
	c, err := New(context.Background(), domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
	require.NoError(t, err)
	assert.IsType(t, &LRUCache{}, c)

	_, err = New(context.Background(), domain.CacheConfig{Type: "memcached"})
	assert.Error(t, err)
}
