package fulltext

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/omicsearch/discovery-service/internal/domain"
	"github.com/omicsearch/discovery-service/internal/sources"
)

// StrategyNameMetadata is the configuration name of the metadata-link
// strategy.
const StrategyNameMetadata = "metadata"

// MetadataStrategy resolves records whose discovery metadata already
// carries a structured open-access link. Cheapest and most reliable
// strategy, so it runs first by default: the link was reported by the
// provider itself and only needs verification.
type MetadataStrategy struct {
	client  *http.Client
	limiter *sources.RateLimiter
}

// NewMetadataStrategy creates the metadata-link strategy. The limiter
// bounds verification requests, which hit arbitrary publisher hosts.
func NewMetadataStrategy(client *http.Client, limiter *sources.RateLimiter) *MetadataStrategy {
	return &MetadataStrategy{client: client, limiter: limiter}
}

// Name implements Strategy.
func (s *MetadataStrategy) Name() string { return StrategyNameMetadata }

// Locate verifies the record's structured OA link, if present.
func (s *MetadataStrategy) Locate(ctx context.Context, record *domain.CanonicalRecord) (*domain.FullTextLocation, error) {
	if record.OAURL == "" {
		return nil, fmt.Errorf("%w: no structured OA link in metadata", ErrNotApplicable)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter wait: %w", ErrTransient, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, record.OAURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid OA URL: %w", domain.ErrStrategyFailed, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: verifying OA link: %w", ErrTransient, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("metadata link", resp.StatusCode)
	}

	oaStatus := record.OAStatus
	if oaStatus == "" {
		oaStatus = domain.OAStatusUnknown
	}
	return &domain.FullTextLocation{
		URL:      record.OAURL,
		Source:   StrategyNameMetadata,
		OAStatus: oaStatus,
	}, nil
}
