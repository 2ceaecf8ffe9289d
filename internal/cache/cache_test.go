package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omicsearch/discovery-service/internal/domain"
)

func TestCache_GetOrFetch(t *testing.T) {
	t.Run("fetches on miss and caches the value", func(t *testing.T) {
		c := New[string](16, time.Minute)
		calls := 0

		value, err := c.GetOrFetch(context.Background(), "key", func(ctx context.Context) (string, error) {
			calls++
			return "value", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "value", value)
		assert.Equal(t, 1, calls)

		// Second call is served from cache.
		value, err = c.GetOrFetch(context.Background(), "key", func(ctx context.Context) (string, error) {
			calls++
			return "other", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "value", value)
		assert.Equal(t, 1, calls)
	})

	t.Run("concurrent callers collapse into one fetch", func(t *testing.T) {
		c := New[string](16, time.Minute)

		var fetches atomic.Int32
		release := make(chan struct{})

		const callers = 50
		var wg sync.WaitGroup
		results := make([]string, callers)
		errs := make([]error, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = c.GetOrFetch(context.Background(), "shared", func(ctx context.Context) (string, error) {
					fetches.Add(1)
					<-release
					return "fetched", nil
				})
			}(i)
		}

		// Let every caller reach the flight before the fetch completes.
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), fetches.Load())
		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "fetched", results[i])
		}
	})

	t.Run("different keys do not block each other", func(t *testing.T) {
		c := New[int](16, time.Minute)

		blocked := make(chan struct{})
		done := make(chan struct{})
		go func() {
			_, _ = c.GetOrFetch(context.Background(), "slow", func(ctx context.Context) (int, error) {
				<-blocked
				return 1, nil
			})
			close(done)
		}()

		value, err := c.GetOrFetch(context.Background(), "fast", func(ctx context.Context) (int, error) {
			return 2, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, value)

		close(blocked)
		<-done
	})

	t.Run("failed fetches are not cached", func(t *testing.T) {
		c := New[string](16, time.Minute)
		calls := 0

		_, err := c.GetOrFetch(context.Background(), "key", func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("provider down")
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrCacheFetch))
		assert.Equal(t, 0, c.Len())

		// Next caller retries instead of observing a cached failure.
		value, err := c.GetOrFetch(context.Background(), "key", func(ctx context.Context) (string, error) {
			calls++
			return "recovered", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "recovered", value)
		assert.Equal(t, 2, calls)
	})

	t.Run("fetch error keeps the cause", func(t *testing.T) {
		c := New[string](16, time.Minute)
		cause := errors.New("boom")

		_, err := c.GetOrFetch(context.Background(), "key", func(ctx context.Context) (string, error) {
			return "", cause
		})
		assert.True(t, errors.Is(err, cause))
	})
}

func TestCache_TTL(t *testing.T) {
	c := New[string](16, 50*time.Millisecond)
	c.Put("key", "value")

	value, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", value)

	time.Sleep(80 * time.Millisecond)

	_, ok = c.Get("key")
	assert.False(t, ok)
}

func TestCache_KeyNormalization(t *testing.T) {
	c := New[string](16, time.Minute)
	c.Put("Liver  Atlas", "value")

	value, ok := c.Get("liver atlas")
	require.True(t, ok)
	assert.Equal(t, "value", value)
}

func TestCache_Remove(t *testing.T) {
	c := New[string](16, time.Minute)
	c.Put("key", "value")
	require.Equal(t, 1, c.Len())

	c.Remove("key")
	_, ok := c.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "liver atlas", NormalizeKey("  Liver   Atlas "))
	assert.Equal(t, "", NormalizeKey("   "))
}
