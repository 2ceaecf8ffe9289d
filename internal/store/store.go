package store

import (
	"context"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// ResultSink persists completed search outcomes. Persistence is
// best-effort: a sink failure is logged by the caller, never surfaced
// to the searcher.
type ResultSink interface {
	// SaveOutcome persists one search outcome together with the query
	// that produced it.
	SaveOutcome(ctx context.Context, query domain.Query, outcome *domain.SearchOutcome) error

	// Close releases the sink's resources.
	Close() error
}
