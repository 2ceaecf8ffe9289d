package sources

import (
	"context"
	"sync"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// FanOutResult holds the outcome of a search against one source.
// Exactly one of Result and Err is set.
type FanOutResult struct {
	// Source identifies which client produced the result.
	Source domain.SourceType

	// Result contains the search results if the search succeeded.
	Result *SearchResult

	// Err contains the error if the search failed.
	Err error
}

// Registry manages source clients and coordinates concurrent searches.
// It provides thread-safe registration and retrieval of clients, and the
// fan-out primitive the orchestrator builds on.
type Registry struct {
	mu      sync.RWMutex
	clients map[domain.SourceType]SourceClient
}

// NewRegistry creates a new empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[domain.SourceType]SourceClient),
	}
}

// Register adds a client to the registry, replacing any existing client
// of the same source type.
func (r *Registry) Register(client SourceClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.SourceType()] = client
}

// Get returns a client by source type, or nil if not registered.
func (r *Registry) Get(sourceType domain.SourceType) SourceClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[sourceType]
}

// Enabled returns a snapshot of the enabled clients, optionally
// restricted to the given allow-list. The snapshot is safe to iterate
// even if clients are registered concurrently.
func (r *Registry) Enabled(allow []domain.SourceType) []SourceClient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allowed := func(domain.SourceType) bool { return true }
	if len(allow) > 0 {
		set := make(map[domain.SourceType]bool, len(allow))
		for _, st := range allow {
			set[st] = true
		}
		allowed = func(st domain.SourceType) bool { return set[st] }
	}

	clients := make([]SourceClient, 0, len(r.clients))
	for _, client := range r.clients {
		if client.IsEnabled() && allowed(client.SourceType()) {
			clients = append(clients, client)
		}
	}
	return clients
}

// SearchAll fans the query out to the given clients concurrently and
// collects every outcome, errors included. Errors are not filtered; the
// caller decides how to surface them. The search respects context
// cancellation: when the orchestration deadline elapses, in-flight
// searches are interrupted and return their context errors.
func (r *Registry) SearchAll(ctx context.Context, clients []SourceClient, params SearchParams) []FanOutResult {
	if len(clients) == 0 {
		return nil
	}

	resultChan := make(chan FanOutResult, len(clients))
	var wg sync.WaitGroup

	for _, client := range clients {
		wg.Add(1)
		go func(c SourceClient) {
			defer wg.Done()

			result, err := c.Search(ctx, params)
			resultChan <- FanOutResult{
				Source: c.SourceType(),
				Result: result,
				Err:    err,
			}
		}(client)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]FanOutResult, 0, len(clients))
	for result := range resultChan {
		results = append(results, result)
	}
	return results
}
