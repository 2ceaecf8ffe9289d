// Package crossref implements a SourceClient for the Crossref REST API.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/omicsearch/discovery-service/internal/domain"
	"github.com/omicsearch/discovery-service/internal/sources"
)

const (
	// DefaultBaseURL is the default Crossref REST API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	// DefaultRateLimit is the default rate limit for requests per
	// second. The polite pool (with mailto) tolerates higher rates.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 50

	// sourceName is the human-readable name for this source.
	sourceName = "Crossref"
)

// jatsTags strips JATS markup that Crossref embeds in abstracts.
var jatsTags = regexp.MustCompile(`</?jats:[^>]+>`)

// Config holds configuration for the Crossref client.
type Config struct {
	// BaseURL is the Crossref REST base URL.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Email is the contact email for the polite pool. Providing one
	// routes requests to better-provisioned servers.
	Email string

	// Timeout is the request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the default maximum results per search.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the sources.SourceClient interface for Crossref.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Compile-time check that Client implements SourceClient.
var _ sources.SourceClient = (*Client)(nil)

// New creates a new Crossref client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	userAgent := "OmniSearch-DiscoveryService/1.0"
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
			UserAgent: userAgent,
		}),
	}
}

// NewWithHTTPClient creates a new Crossref client with a custom HTTP
// client. Useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries Crossref for works matching the given parameters.
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	startTime := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var resp worksResponse
	if err := c.getJSON(ctx, searchURL, &resp); err != nil {
		return nil, err
	}

	records := make([]*domain.SourceRecord, 0, len(resp.Message.Items))
	for i := range resp.Message.Items {
		if record := c.workToRecord(&resp.Message.Items[i]); record != nil {
			records = append(records, record)
		}
	}

	return &sources.SearchResult{
		Records:        records,
		TotalResults:   resp.Message.TotalResults,
		Source:         domain.SourceTypeCrossref,
		SearchDuration: time.Since(startTime),
	}, nil
}

// FetchByID retrieves a single work by DOI.
func (c *Client) FetchByID(ctx context.Context, id string) (*domain.SourceRecord, error) {
	doi := domain.NormalizeDOI(id)
	if doi == "" {
		return nil, domain.ErrInvalidInput
	}

	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/works/" + doi
	if c.config.Email != "" {
		query := url.Values{}
		query.Set("mailto", c.config.Email)
		base.RawQuery = query.Encode()
	}

	var resp workResponse
	if err := c.getJSON(ctx, base.String(), &resp); err != nil {
		return nil, err
	}

	record := c.workToRecord(&resp.Message)
	if record == nil {
		return nil, domain.NewNotFoundError("work", id)
	}
	return record, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeCrossref
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the /works search URL.
func (c *Client) buildSearchURL(params sources.SearchParams) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/works"

	queryStr := params.Query
	if params.Organism != "" {
		// Crossref has no organism facet; fold it into the free-text query.
		queryStr += " " + params.Organism
	}

	maxResults := params.MaxResults
	if maxResults == 0 || maxResults > c.config.MaxResults {
		maxResults = c.config.MaxResults
	}

	query := url.Values{}
	query.Set("query", queryStr)
	query.Set("rows", strconv.Itoa(maxResults))

	var filters []string
	if params.YearFrom != 0 {
		filters = append(filters, fmt.Sprintf("from-pub-date:%d-01-01", params.YearFrom))
	}
	if params.YearTo != 0 {
		filters = append(filters, fmt.Sprintf("until-pub-date:%d-12-31", params.YearTo))
	}
	if len(filters) > 0 {
		query.Set("filter", strings.Join(filters, ","))
	}
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	base.RawQuery = query.Encode()

	return base.String(), nil
}

// getJSON performs a GET request and decodes the JSON response body.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// workToRecord converts a Crossref work to a domain SourceRecord.
func (c *Client) workToRecord(w *work) *domain.SourceRecord {
	doi := domain.NormalizeDOI(w.DOI)
	if doi == "" {
		return nil
	}

	title := ""
	if len(w.Title) > 0 {
		title = strings.TrimSpace(w.Title[0])
	}

	year := 0
	if len(w.Issued.DateParts) > 0 && len(w.Issued.DateParts[0]) > 0 {
		year = w.Issued.DateParts[0][0]
	}

	authors := make([]string, 0, len(w.Author))
	for _, a := range w.Author {
		name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
		if name != "" {
			authors = append(authors, name)
		}
	}

	record := &domain.SourceRecord{
		Source:          domain.SourceTypeCrossref,
		IDs:             domain.Identifiers{DOI: doi},
		Title:           title,
		Summary:         cleanAbstract(w.Abstract),
		Authors:         authors,
		PublicationYear: year,
		OAStatus:        domain.OAStatusUnknown,
		FetchedAt:       time.Now().UTC(),
	}

	for _, l := range w.Link {
		if strings.Contains(strings.ToLower(l.ContentType), "pdf") && l.URL != "" {
			record.OAURL = l.URL
			break
		}
	}

	return record
}

// cleanAbstract strips JATS markup from Crossref abstracts.
func cleanAbstract(s string) string {
	return strings.TrimSpace(jatsTags.ReplaceAllString(s, ""))
}
