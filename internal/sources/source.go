// Package sources provides interfaces and types for external discovery
// source clients.
//
// Each external provider (the GEO dataset registry, Europe PMC, Crossref)
// implements the SourceClient interface, allowing the orchestrator to fan a
// query out to every enabled source concurrently with a unified API. Provider
// payloads are parsed at the client boundary into domain.SourceRecord
// immediately; nothing downstream sees provider-specific shapes.
//
// Example usage:
//
//	client := europepmc.New(cfg)
//	params := sources.SearchParams{
//		Query:      "single cell rna-seq liver",
//		MaxResults: 50,
//	}
//	result, err := client.Search(ctx, params)
package sources

import (
	"context"
	"time"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// SearchParams defines the parameters for querying a discovery source.
// All fields except Query are optional.
type SearchParams struct {
	// Query is the search query string (required). The format may vary
	// by source; clients translate it into their provider's syntax.
	Query string

	// Organism filters results to a single organism where the provider
	// supports it. Clients that cannot filter server-side ignore it.
	Organism string

	// YearFrom filters records published in or after this year.
	// Zero applies no lower bound.
	YearFrom int

	// YearTo filters records published in or before this year.
	// Zero applies no upper bound.
	YearTo int

	// MaxResults limits the number of records returned in a single
	// request. Sources may have their own maximum limits that override
	// this value. A value of 0 uses the source's default limit.
	MaxResults int
}

// SearchResult contains the results from one source search operation.
type SearchResult struct {
	// Records contains the records returned by the search.
	// May be empty if nothing matched.
	Records []*domain.SourceRecord

	// TotalResults is the total number of records matching the query,
	// regardless of the MaxResults cap. May be an estimate.
	TotalResults int

	// Source identifies which provider produced these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search,
	// including network latency and response parsing.
	SearchDuration time.Duration
}

// SourceClient defines the interface that all discovery source clients
// must implement.
type SourceClient interface {
	// Search queries the source for records matching the given
	// parameters. The context carries the per-source timeout and the
	// orchestration deadline; implementations must respect cancellation
	// and apply their own rate limiting.
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// FetchByID retrieves a specific record by a source-native
	// identifier (DOI, PMID, accession, ...). Returns
	// domain.ErrNotFound if the record does not exist.
	FetchByID(ctx context.Context, id string) (*domain.SourceRecord, error)

	// SourceType returns the type identifier for this source.
	// Used for attribution, deduplication, and routing.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logging and warnings.
	Name() string

	// IsEnabled returns whether this source is currently enabled. A
	// source may be disabled by configuration or a missing API key.
	IsEnabled() bool
}
