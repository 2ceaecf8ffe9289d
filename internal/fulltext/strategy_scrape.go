package fulltext

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/omicsearch/discovery-service/internal/domain"
	"github.com/omicsearch/discovery-service/internal/sources"
)

// StrategyNameScrape is the configuration name of the landing-page
// scrape strategy.
const StrategyNameScrape = "scrape"

// maxLandingPageBytes bounds how much of a publisher landing page is
// parsed. Landing pages past 2MB are not worth scraping.
const maxLandingPageBytes = 2 << 20

// ScrapeStrategy follows the DOI resolver to the publisher landing page
// and looks for the citation_pdf_url meta tag that most publishers emit
// for indexing crawlers. Last resort: slowest, least reliable, and the
// found copy's licensing is unknown.
type ScrapeStrategy struct {
	resolverURL string
	client      *http.Client
	limiter     *sources.RateLimiter
}

// NewScrapeStrategy creates the landing-page scrape strategy.
// resolverURL defaults to the public DOI resolver.
func NewScrapeStrategy(resolverURL string, client *http.Client, limiter *sources.RateLimiter) *ScrapeStrategy {
	if resolverURL == "" {
		resolverURL = "https://doi.org"
	}
	return &ScrapeStrategy{
		resolverURL: resolverURL,
		client:      client,
		limiter:     limiter,
	}
}

// Name implements Strategy.
func (s *ScrapeStrategy) Name() string { return StrategyNameScrape }

// Locate scrapes the record's DOI landing page for a PDF link.
func (s *ScrapeStrategy) Locate(ctx context.Context, record *domain.CanonicalRecord) (*domain.FullTextLocation, error) {
	doi := domain.NormalizeDOI(record.IDs.DOI)
	if doi == "" {
		return nil, fmt.Errorf("%w: record has no DOI", ErrNotApplicable)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter wait: %w", ErrTransient, err)
	}

	landingURL := strings.TrimSuffix(s.resolverURL, "/") + "/" + doi
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, landingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", domain.ErrStrategyFailed, err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching landing page: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("landing page", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxLandingPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing landing page: %w", domain.ErrStrategyFailed, err)
	}

	pdfURL, ok := doc.Find(`meta[name="citation_pdf_url"]`).Attr("content")
	if !ok || strings.TrimSpace(pdfURL) == "" {
		return nil, fmt.Errorf("%w: no citation_pdf_url on landing page", domain.ErrStrategyFailed)
	}
	pdfURL = strings.TrimSpace(pdfURL)

	// Publisher pages sometimes emit relative PDF paths.
	if resolved, err := resolveRelative(resp.Request, pdfURL); err == nil {
		pdfURL = resolved
	}

	return &domain.FullTextLocation{
		URL:      pdfURL,
		Source:   StrategyNameScrape,
		OAStatus: domain.OAStatusUnknown,
	}, nil
}

// resolveRelative resolves a possibly relative URL against the final
// request URL after redirects.
func resolveRelative(req *http.Request, raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.IsAbs() {
		return raw, nil
	}
	if req == nil || req.URL == nil {
		return raw, nil
	}
	return req.URL.ResolveReference(parsed).String(), nil
}
