// Package fulltext resolves full-text access for canonical records by
// trying an ordered list of strategies until one succeeds or the list
// is exhausted.
package fulltext

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// ErrTransient marks a strategy failure that may succeed on retry
// (network error, 5xx). The resolver retries such failures once per
// strategy before moving on. Definitive failures (no identifier for the
// strategy, 404, no link found) move straight to the next strategy.
var ErrTransient = errors.New("transient failure")

// ErrNotApplicable marks a strategy that cannot apply to a record at
// all (e.g. the record has no DOI for a DOI-based strategy). Definitive.
var ErrNotApplicable = errors.New("strategy not applicable to record")

// Strategy locates a full-text copy of a record through one content
// source. Implementations own their per-source rate limiter; the
// resolver owns the global concurrency cap, the per-strategy timeout,
// and the retry policy.
type Strategy interface {
	// Name identifies the strategy in attempt logs and configuration.
	Name() string

	// Locate attempts to find a full-text location for the record.
	// Failures that may clear up on retry are wrapped with ErrTransient;
	// everything else is definitive.
	Locate(ctx context.Context, record *domain.CanonicalRecord) (*domain.FullTextLocation, error)
}

// classifyStatus maps an HTTP status code to the strategy error
// contract: 5xx and 429 are transient, everything else definitive.
func classifyStatus(source string, code int) error {
	if code == http.StatusTooManyRequests || (code >= 500 && code < 600) {
		return fmt.Errorf("%w: %s returned status %d", ErrTransient, source, code)
	}
	return fmt.Errorf("%w: %s returned status %d", domain.ErrStrategyFailed, source, code)
}
