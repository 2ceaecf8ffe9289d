package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("burst is honored", func(t *testing.T) {
		limiter := NewRateLimiter(1, 3)

		assert.True(t, limiter.Allow())
		assert.True(t, limiter.Allow())
		assert.True(t, limiter.Allow())
		assert.False(t, limiter.Allow())
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		limiter := NewRateLimiter(100, 1)
		require.True(t, limiter.Allow())
		require.False(t, limiter.Allow())

		assert.Eventually(t, limiter.Allow, time.Second, time.Millisecond)
	})
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("does not block within burst", func(t *testing.T) {
		limiter := NewRateLimiter(1, 5)

		start := time.Now()
		for i := 0; i < 5; i++ {
			require.NoError(t, limiter.Wait(context.Background()))
		}
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("blocks once the burst is spent", func(t *testing.T) {
		limiter := NewRateLimiter(20, 1)
		require.NoError(t, limiter.Wait(context.Background()))

		start := time.Now()
		require.NoError(t, limiter.Wait(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		limiter := NewRateLimiter(0.001, 1)
		require.NoError(t, limiter.Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := limiter.Wait(ctx)
		assert.Error(t, err)
	})
}

func TestRateLimiter_SetRate(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())

	// Raising the rate shortens the refill noticeably.
	limiter.SetRate(1000)
	assert.Eventually(t, limiter.Allow, time.Second, time.Millisecond)
}

func TestRateLimiter_Tokens(t *testing.T) {
	limiter := NewRateLimiter(1, 5)
	assert.InDelta(t, 5, limiter.Tokens(), 0.1)

	limiter.Allow()
	limiter.Allow()
	assert.InDelta(t, 3, limiter.Tokens(), 0.1)
}
