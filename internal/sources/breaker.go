package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// BreakerConfig configures the circuit breaker wrapped around a source.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens. Default: 5.
	FailureThreshold uint32

	// Cooldown is how long the circuit stays open before probing the
	// source again. Default: 30s.
	Cooldown time.Duration

	// ProbeRequests is the number of requests allowed through in the
	// half-open state. Default: 1.
	ProbeRequests uint32
}

func (c *BreakerConfig) applyDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown == 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.ProbeRequests == 0 {
		c.ProbeRequests = 1
	}
}

// BreakerSource decorates a SourceClient with a circuit breaker so that
// a provider failing repeatedly is short-circuited instead of hammered.
// Context cancellation and deadline expiry do not count as source
// failures; only genuine provider errors trip the circuit.
type BreakerSource struct {
	inner  SourceClient
	search *gobreaker.CircuitBreaker[*SearchResult]
	fetch  *gobreaker.CircuitBreaker[*domain.SourceRecord]
}

// Compile-time check that BreakerSource implements SourceClient.
var _ SourceClient = (*BreakerSource)(nil)

// WithBreaker wraps a SourceClient with a circuit breaker.
func WithBreaker(inner SourceClient, cfg BreakerConfig) *BreakerSource {
	cfg.applyDefaults()

	settings := gobreaker.Settings{
		Name:        string(inner.SourceType()),
		MaxRequests: cfg.ProbeRequests,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Cancellation is the caller's doing, not the provider's.
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	}

	return &BreakerSource{
		inner:  inner,
		search: gobreaker.NewCircuitBreaker[*SearchResult](settings),
		fetch:  gobreaker.NewCircuitBreaker[*domain.SourceRecord](settings),
	}
}

// Search executes the inner search through the circuit breaker.
func (b *BreakerSource) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	result, err := b.search.Execute(func() (*SearchResult, error) {
		return b.inner.Search(ctx, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s circuit open", domain.ErrSourceUnavailable, b.inner.Name())
		}
		return nil, err
	}
	return result, nil
}

// FetchByID executes the inner fetch through the circuit breaker.
func (b *BreakerSource) FetchByID(ctx context.Context, id string) (*domain.SourceRecord, error) {
	record, err := b.fetch.Execute(func() (*domain.SourceRecord, error) {
		return b.inner.FetchByID(ctx, id)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s circuit open", domain.ErrSourceUnavailable, b.inner.Name())
		}
		return nil, err
	}
	return record, nil
}

// SourceType returns the wrapped client's source type.
func (b *BreakerSource) SourceType() domain.SourceType {
	return b.inner.SourceType()
}

// Name returns the wrapped client's name.
func (b *BreakerSource) Name() string {
	return b.inner.Name()
}

// IsEnabled returns whether the wrapped client is enabled.
func (b *BreakerSource) IsEnabled() bool {
	return b.inner.IsEnabled()
}
