package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omicsearch/discovery-service/internal/domain"
)

func TestBreakerSource_PassThrough(t *testing.T) {
	inner := &stubClient{source: domain.SourceTypeGEO, enabled: true}
	breaker := WithBreaker(inner, BreakerConfig{})

	result, err := breaker.Search(context.Background(), SearchParams{Query: "liver"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceTypeGEO, result.Source)

	assert.Equal(t, domain.SourceTypeGEO, breaker.SourceType())
	assert.Equal(t, string(domain.SourceTypeGEO), breaker.Name())
	assert.True(t, breaker.IsEnabled())
}

func TestBreakerSource_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &stubClient{
		source:  domain.SourceTypeCrossref,
		enabled: true,
		searchFunc: func(ctx context.Context, params SearchParams) (*SearchResult, error) {
			return nil, errors.New("provider down")
		},
	}
	breaker := WithBreaker(inner, BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := breaker.Search(context.Background(), SearchParams{Query: "q"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrSourceUnavailable))
	}

	// The circuit is open: the provider is no longer called.
	before := inner.calls.Load()
	_, err := breaker.Search(context.Background(), SearchParams{Query: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSourceUnavailable))
	assert.Equal(t, before, inner.calls.Load())
}

func TestBreakerSource_RecoversAfterCooldown(t *testing.T) {
	var healthy bool
	inner := &stubClient{
		source:  domain.SourceTypeEuropePMC,
		enabled: true,
		searchFunc: func(ctx context.Context, params SearchParams) (*SearchResult, error) {
			if !healthy {
				return nil, errors.New("provider down")
			}
			return &SearchResult{Source: domain.SourceTypeEuropePMC}, nil
		},
	}
	breaker := WithBreaker(inner, BreakerConfig{
		FailureThreshold: 2,
		Cooldown:         50 * time.Millisecond,
		ProbeRequests:    1,
	})

	for i := 0; i < 2; i++ {
		_, _ = breaker.Search(context.Background(), SearchParams{Query: "q"})
	}
	_, err := breaker.Search(context.Background(), SearchParams{Query: "q"})
	require.True(t, errors.Is(err, domain.ErrSourceUnavailable))

	healthy = true
	time.Sleep(80 * time.Millisecond)

	// Half-open: the probe goes through and closes the circuit.
	result, err := breaker.Search(context.Background(), SearchParams{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceTypeEuropePMC, result.Source)

	result, err = breaker.Search(context.Background(), SearchParams{Query: "q"})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestBreakerSource_CancellationDoesNotTrip(t *testing.T) {
	inner := &stubClient{
		source:  domain.SourceTypeGEO,
		enabled: true,
		searchFunc: func(ctx context.Context, params SearchParams) (*SearchResult, error) {
			return nil, context.Canceled
		},
	}
	breaker := WithBreaker(inner, BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})

	for i := 0; i < 10; i++ {
		_, err := breaker.Search(context.Background(), SearchParams{Query: "q"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrSourceUnavailable))
	}

	// All ten reached the provider; cancellations never open the circuit.
	assert.Equal(t, int32(10), inner.calls.Load())
}

func TestBreakerSource_FetchByID(t *testing.T) {
	inner := &stubClient{source: domain.SourceTypeGEO, enabled: true}
	breaker := WithBreaker(inner, BreakerConfig{})

	_, err := breaker.FetchByID(context.Background(), "GSE1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
