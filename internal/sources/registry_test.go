package sources

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

// stubClient is a minimal SourceClient for registry tests.
type stubClient struct {
	source  domain.SourceType
	enabled bool
	calls   atomic.Int32

	searchFunc func(ctx context.Context, params SearchParams) (*SearchResult, error)
}

func (s *stubClient) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.calls.Add(1)
	if s.searchFunc != nil {
		return s.searchFunc(ctx, params)
	}
	return &SearchResult{Source: s.source}, nil
}

func (s *stubClient) FetchByID(ctx context.Context, id string) (*domain.SourceRecord, error) {
	return nil, domain.ErrNotFound
}

func (s *stubClient) SourceType() domain.SourceType { return s.source }
func (s *stubClient) Name() string                  { return string(s.source) }
func (s *stubClient) IsEnabled() bool               { return s.enabled }

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()
	client := &stubClient{source: domain.SourceTypeGEO, enabled: true}

	registry.Register(client)
	assert.Same(t, client, registry.Get(domain.SourceTypeGEO))

	// Registering again replaces the existing client.
	replacement := &stubClient{source: domain.SourceTypeGEO, enabled: false}
	registry.Register(replacement)
	assert.Same(t, replacement, registry.Get(domain.SourceTypeGEO))
}

func TestRegistry_Get_NotRegistered(t *testing.T) {
	registry := NewRegistry()
	assert.Nil(t, registry.Get(domain.SourceTypeCrossref))
}

func TestRegistry_Enabled(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubClient{source: domain.SourceTypeGEO, enabled: true})
	registry.Register(&stubClient{source: domain.SourceTypeEuropePMC, enabled: false})
	registry.Register(&stubClient{source: domain.SourceTypeCrossref, enabled: true})

	t.Run("skips disabled clients", func(t *testing.T) {
		clients := registry.Enabled(nil)
		require.Len(t, clients, 2)
		for _, c := range clients {
			assert.True(t, c.IsEnabled())
		}
	})

	t.Run("allow-list restricts further", func(t *testing.T) {
		clients := registry.Enabled([]domain.SourceType{domain.SourceTypeCrossref})
		require.Len(t, clients, 1)
		assert.Equal(t, domain.SourceTypeCrossref, clients[0].SourceType())
	})

	t.Run("allow-listing a disabled source yields nothing", func(t *testing.T) {
		clients := registry.Enabled([]domain.SourceType{domain.SourceTypeEuropePMC})
		assert.Empty(t, clients)
	})
}

func TestRegistry_SearchAll(t *testing.T) {
	t.Run("collects results from every client", func(t *testing.T) {
		registry := NewRegistry()
		geo := &stubClient{source: domain.SourceTypeGEO, enabled: true}
		epmc := &stubClient{source: domain.SourceTypeEuropePMC, enabled: true}
		registry.Register(geo)
		registry.Register(epmc)

		results := registry.SearchAll(context.Background(), registry.Enabled(nil), SearchParams{Query: "liver"})

		require.Len(t, results, 2)
		seen := map[domain.SourceType]bool{}
		for _, r := range results {
			require.NoError(t, r.Err)
			require.NotNil(t, r.Result)
			seen[r.Source] = true
		}
		assert.True(t, seen[domain.SourceTypeGEO])
		assert.True(t, seen[domain.SourceTypeEuropePMC])
	})

	t.Run("errors are collected, not filtered", func(t *testing.T) {
		registry := NewRegistry()
		failing := &stubClient{
			source:  domain.SourceTypeCrossref,
			enabled: true,
			searchFunc: func(ctx context.Context, params SearchParams) (*SearchResult, error) {
				return nil, errors.New("provider down")
			},
		}
		healthy := &stubClient{source: domain.SourceTypeGEO, enabled: true}
		registry.Register(failing)
		registry.Register(healthy)

		results := registry.SearchAll(context.Background(), registry.Enabled(nil), SearchParams{Query: "q"})

		require.Len(t, results, 2)
		var failures int
		for _, r := range results {
			if r.Err != nil {
				failures++
				assert.Equal(t, domain.SourceTypeCrossref, r.Source)
			}
		}
		assert.Equal(t, 1, failures)
	})

	t.Run("one slow client does not serialize the rest", func(t *testing.T) {
		registry := NewRegistry()
		release := make(chan struct{})
		slow := &stubClient{
			source:  domain.SourceTypeEuropePMC,
			enabled: true,
			searchFunc: func(ctx context.Context, params SearchParams) (*SearchResult, error) {
				select {
				case <-release:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				return &SearchResult{Source: domain.SourceTypeEuropePMC}, nil
			},
		}
		fast := &stubClient{source: domain.SourceTypeGEO, enabled: true}
		registry.Register(slow)
		registry.Register(fast)

		done := make(chan []FanOutResult, 1)
		go func() {
			done <- registry.SearchAll(context.Background(), registry.Enabled(nil), SearchParams{Query: "q"})
		}()

		// The fast client finishes while the slow one is still blocked.
		assert.Eventually(t, func() bool {
			return fast.calls.Load() == 1 && slow.calls.Load() == 1
		}, time.Second, 5*time.Millisecond)

		close(release)
		results := <-done
		assert.Len(t, results, 2)
	})

	t.Run("cancellation interrupts in-flight searches", func(t *testing.T) {
		registry := NewRegistry()
		blocked := &stubClient{
			source:  domain.SourceTypeGEO,
			enabled: true,
			searchFunc: func(ctx context.Context, params SearchParams) (*SearchResult, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		registry.Register(blocked)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan []FanOutResult, 1)
		go func() {
			done <- registry.SearchAll(ctx, registry.Enabled(nil), SearchParams{Query: "q"})
		}()

		cancel()
		results := <-done
		require.Len(t, results, 1)
		assert.True(t, errors.Is(results[0].Err, context.Canceled))
	})

	t.Run("no clients yields no results", func(t *testing.T) {
		registry := NewRegistry()
		assert.Nil(t, registry.SearchAll(context.Background(), nil, SearchParams{Query: "q"}))
	})
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.Register(&stubClient{source: domain.SourceTypeGEO, enabled: true})
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = registry.Enabled(nil)
			_ = registry.Get(domain.SourceTypeGEO)
		}()
	}
	wg.Wait()

	assert.NotNil(t, registry.Get(domain.SourceTypeGEO))
}
