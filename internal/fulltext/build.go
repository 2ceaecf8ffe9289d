package fulltext

import (
	"fmt"
	"net/http"
	"time"

	"github.com/omicsearch/discovery-service/internal/sources"
)

// WaterfallConfig describes the strategy list to build. The order is
// the waterfall order.
type WaterfallConfig struct {
	// Order lists strategy names in waterfall order. Empty uses
	// DefaultStrategyOrder.
	Order []string

	// UnpaywallBaseURL overrides the Unpaywall API base URL (tests).
	UnpaywallBaseURL string

	// UnpaywallEmail is the contact email the Unpaywall API requires.
	UnpaywallEmail string

	// EuropePMCRenderURL overrides the PMC PDF render URL template (tests).
	EuropePMCRenderURL string

	// DOIResolverURL overrides the DOI resolver base URL (tests).
	DOIResolverURL string

	// HTTPTimeout is the underlying HTTP client timeout shared by the
	// strategies. Default: 30s.
	HTTPTimeout time.Duration

	// RateLimits maps strategy name to requests/second for that
	// content source. Unlisted strategies default to 2 req/s.
	RateLimits map[string]float64
}

// DefaultStrategyOrder is the default waterfall: structured metadata
// link, then Unpaywall, then the PMC repository mirror, then
// landing-page scraping as the last resort.
var DefaultStrategyOrder = []string{
	StrategyNameMetadata,
	StrategyNameUnpaywall,
	StrategyNameEuropePMC,
	StrategyNameScrape,
}

// defaultStrategyRateLimit applies when a strategy has no configured
// per-source rate limit.
const defaultStrategyRateLimit = 2.0

// BuildStrategies constructs the ordered strategy list from
// configuration. Each strategy gets its own rate limiter singleton;
// they all share one HTTP client.
func BuildStrategies(cfg WaterfallConfig) ([]Strategy, error) {
	order := cfg.Order
	if len(order) == 0 {
		order = DefaultStrategyOrder
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{Timeout: timeout}

	limiter := func(name string) *sources.RateLimiter {
		rps := cfg.RateLimits[name]
		if rps == 0 {
			rps = defaultStrategyRateLimit
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		return sources.NewRateLimiter(rps, burst)
	}

	strategies := make([]Strategy, 0, len(order))
	for _, name := range order {
		switch name {
		case StrategyNameMetadata:
			strategies = append(strategies, NewMetadataStrategy(client, limiter(name)))
		case StrategyNameUnpaywall:
			strategies = append(strategies, NewUnpaywallStrategy(cfg.UnpaywallBaseURL, cfg.UnpaywallEmail, client, limiter(name)))
		case StrategyNameEuropePMC:
			strategies = append(strategies, NewEuropePMCStrategy(cfg.EuropePMCRenderURL, client, limiter(name)))
		case StrategyNameScrape:
			strategies = append(strategies, NewScrapeStrategy(cfg.DOIResolverURL, client, limiter(name)))
		default:
			return nil, fmt.Errorf("unknown full-text strategy %q", name)
		}
	}
	return strategies, nil
}
