package fulltext

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/omicsearch/discovery-service/internal/domain"
	"github.com/omicsearch/discovery-service/internal/sources"
)

// StrategyNameEuropePMC is the configuration name of the Europe PMC
// repository-mirror strategy.
const StrategyNameEuropePMC = "europepmc"

// DefaultEuropePMCRenderURL is the URL template serving rendered PDFs
// for PMC articles.
const DefaultEuropePMCRenderURL = "https://europepmc.org/articles/%s?pdf=render"

// EuropePMCStrategy fetches full text from the Europe PMC repository
// mirror for records that carry a PMCID. Repository copies are green
// open access by definition.
type EuropePMCStrategy struct {
	renderURL string
	client    *http.Client
	limiter   *sources.RateLimiter
}

// NewEuropePMCStrategy creates the Europe PMC mirror strategy.
// renderURL must contain one %s verb for the PMCID; empty uses the default.
func NewEuropePMCStrategy(renderURL string, client *http.Client, limiter *sources.RateLimiter) *EuropePMCStrategy {
	if renderURL == "" {
		renderURL = DefaultEuropePMCRenderURL
	}
	return &EuropePMCStrategy{
		renderURL: renderURL,
		client:    client,
		limiter:   limiter,
	}
}

// Name implements Strategy.
func (s *EuropePMCStrategy) Name() string { return StrategyNameEuropePMC }

// Locate checks whether the PMC mirror serves a copy of the record.
func (s *EuropePMCStrategy) Locate(ctx context.Context, record *domain.CanonicalRecord) (*domain.FullTextLocation, error) {
	pmcid := strings.ToUpper(strings.TrimSpace(record.IDs.PMCID))
	if pmcid == "" {
		return nil, fmt.Errorf("%w: record has no PMCID", ErrNotApplicable)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter wait: %w", ErrTransient, err)
	}

	pdfURL := fmt.Sprintf(s.renderURL, pmcid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", domain.ErrStrategyFailed, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: europepmc request: %w", ErrTransient, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: no PMC copy for %s", domain.ErrStrategyFailed, pmcid)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("europepmc", resp.StatusCode)
	}

	return &domain.FullTextLocation{
		URL:      pdfURL,
		Source:   StrategyNameEuropePMC,
		OAStatus: domain.OAStatusGreen,
	}, nil
}
