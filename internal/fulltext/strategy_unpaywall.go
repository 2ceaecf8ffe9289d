package fulltext

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/omicsearch/discovery-service/internal/domain"
	"github.com/omicsearch/discovery-service/internal/sources"
)

// StrategyNameUnpaywall is the configuration name of the Unpaywall strategy.
const StrategyNameUnpaywall = "unpaywall"

// DefaultUnpaywallBaseURL is the Unpaywall REST API base URL.
const DefaultUnpaywallBaseURL = "https://api.unpaywall.org/v2"

// unpaywallResponse is the subset of the Unpaywall record we consume.
type unpaywallResponse struct {
	IsOA           bool                `json:"is_oa"`
	OAStatus       string              `json:"oa_status"`
	BestOALocation *unpaywallLocation  `json:"best_oa_location"`
	OALocations    []unpaywallLocation `json:"oa_locations"`
}

type unpaywallLocation struct {
	URLForPDF string `json:"url_for_pdf"`
	URL       string `json:"url"`
}

// UnpaywallStrategy queries the Unpaywall API by DOI for a structured
// open-access location. High-coverage and returns the OA flavor
// directly, so it is the first fallback after provider metadata.
type UnpaywallStrategy struct {
	baseURL string
	email   string
	client  *http.Client
	limiter *sources.RateLimiter
}

// NewUnpaywallStrategy creates the Unpaywall strategy. The email is
// required by the Unpaywall API terms.
func NewUnpaywallStrategy(baseURL, email string, client *http.Client, limiter *sources.RateLimiter) *UnpaywallStrategy {
	if baseURL == "" {
		baseURL = DefaultUnpaywallBaseURL
	}
	return &UnpaywallStrategy{
		baseURL: baseURL,
		email:   email,
		client:  client,
		limiter: limiter,
	}
}

// Name implements Strategy.
func (s *UnpaywallStrategy) Name() string { return StrategyNameUnpaywall }

// Locate looks the record's DOI up in Unpaywall.
func (s *UnpaywallStrategy) Locate(ctx context.Context, record *domain.CanonicalRecord) (*domain.FullTextLocation, error) {
	doi := domain.NormalizeDOI(record.IDs.DOI)
	if doi == "" {
		return nil, fmt.Errorf("%w: record has no DOI", ErrNotApplicable)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter wait: %w", ErrTransient, err)
	}

	reqURL := strings.TrimSuffix(s.baseURL, "/") + "/" + doi + "?email=" + url.QueryEscape(s.email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", domain.ErrStrategyFailed, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: unpaywall request: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: DOI not indexed by unpaywall", domain.ErrStrategyFailed)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("unpaywall", resp.StatusCode)
	}

	var payload unpaywallResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding unpaywall response: %w", domain.ErrStrategyFailed, err)
	}

	if !payload.IsOA {
		return nil, fmt.Errorf("%w: no open-access copy known", domain.ErrStrategyFailed)
	}

	location := payload.BestOALocation
	if location == nil && len(payload.OALocations) > 0 {
		location = &payload.OALocations[0]
	}
	if location == nil {
		return nil, fmt.Errorf("%w: OA flagged but no location returned", domain.ErrStrategyFailed)
	}

	pdfURL := location.URLForPDF
	if pdfURL == "" {
		pdfURL = location.URL
	}
	if pdfURL == "" {
		return nil, fmt.Errorf("%w: OA location has no URL", domain.ErrStrategyFailed)
	}

	return &domain.FullTextLocation{
		URL:      pdfURL,
		Source:   StrategyNameUnpaywall,
		OAStatus: domain.ParseOAStatus(payload.OAStatus),
	}, nil
}
