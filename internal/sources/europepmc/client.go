// Package europepmc implements a SourceClient for the Europe PMC
// REST API.
package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/omicsearch/discovery-service/internal/domain"
	"github.com/omicsearch/discovery-service/internal/sources"
)

const (
	// DefaultBaseURL is the default Europe PMC REST API base URL.
	DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	// The API caps pageSize at 1000.
	DefaultMaxResults = 50

	// sourceName is the human-readable name for this source.
	sourceName = "Europe PMC"
)

// Config holds configuration for the Europe PMC client.
type Config struct {
	// BaseURL is the Europe PMC REST base URL.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Email is a contact email included in requests, as the API
	// operators request for high-volume clients. Optional.
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

// Client implements the sources.SourceClient interface for Europe PMC.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Compile-time check that Client implements SourceClient.
var _ sources.SourceClient = (*Client)(nil)

// New creates a new Europe PMC client with the given configuration.
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

// NewWithHTTPClient creates a new Europe PMC client with a custom HTTP
// client. Useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries Europe PMC for publications matching the parameters.
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	startTime := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var resp searchResponse
	if err := c.getJSON(ctx, searchURL, &resp); err != nil {
		return nil, err
	}

	records := make([]*domain.SourceRecord, 0, len(resp.ResultList.Result))
	for i := range resp.ResultList.Result {
		if record := c.resultToRecord(&resp.ResultList.Result[i]); record != nil {
			records = append(records, record)
		}
	}

	return &sources.SearchResult{
		Records:        records,
		TotalResults:   resp.HitCount,
		Source:         domain.SourceTypeEuropePMC,
		SearchDuration: time.Since(startTime),
	}, nil
}

// FetchByID retrieves a single publication by DOI, PMID, or PMCID.
func (c *Client) FetchByID(ctx context.Context, id string) (*domain.SourceRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidInput
	}

	var query string
	switch {
	case strings.HasPrefix(strings.ToUpper(id), "PMC"):
		query = fmt.Sprintf("PMCID:%q", strings.ToUpper(id))
	case strings.HasPrefix(id, "10.") || strings.HasPrefix(id, "doi:"):
		query = fmt.Sprintf("DOI:%q", domain.NormalizeDOI(id))
	default:
		query = fmt.Sprintf("EXT_ID:%q AND SRC:MED", id)
	}

	result, err := c.Search(ctx, sources.SearchParams{Query: query, MaxResults: 1})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, domain.NewNotFoundError("publication", id)
	}
	return result.Records[0], nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeEuropePMC
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the search endpoint URL.
func (c *Client) buildSearchURL(params sources.SearchParams) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/search"

	queryStr := params.Query
	if params.Organism != "" {
		queryStr += fmt.Sprintf(" AND %q", params.Organism)
	}
	if params.YearFrom != 0 || params.YearTo != 0 {
		from := params.YearFrom
		if from == 0 {
			from = 1900
		}
		to := params.YearTo
		if to == 0 {
			to = time.Now().Year()
		}
		queryStr += fmt.Sprintf(" AND PUB_YEAR:[%d TO %d]", from, to)
	}

	maxResults := params.MaxResults
	if maxResults == 0 || maxResults > c.config.MaxResults {
		maxResults = c.config.MaxResults
	}

	query := url.Values{}
	query.Set("query", queryStr)
	query.Set("format", "json")
	query.Set("resultType", "core")
	query.Set("pageSize", strconv.Itoa(maxResults))
	if c.config.Email != "" {
		query.Set("email", c.config.Email)
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

// resultToRecord converts a Europe PMC result to a domain SourceRecord.
func (c *Client) resultToRecord(r *result) *domain.SourceRecord {
	ids := domain.Identifiers{
		DOI:   domain.NormalizeDOI(r.DOI),
		PMID:  strings.TrimSpace(r.PMID),
		PMCID: strings.ToUpper(strings.TrimSpace(r.PMCID)),
	}
	// Skip records with no identifier at all; they cannot be
	// deduplicated or resolved.
	if ids.IsEmpty() {
		return nil
	}

	year := 0
	if r.PubYear != "" {
		year, _ = strconv.Atoi(r.PubYear)
	}

	record := &domain.SourceRecord{
		Source:          domain.SourceTypeEuropePMC,
		IDs:             ids,
		Title:           strings.TrimSpace(r.Title),
		Summary:         strings.TrimSpace(r.AbstractText),
		Authors:         splitAuthors(r.AuthorString),
		PublicationYear: year,
		OAStatus:        domain.OAStatusUnknown,
		FetchedAt:       time.Now().UTC(),
	}

	if strings.EqualFold(r.IsOpenAccess, "Y") {
		// Europe PMC flags OA but not its flavor; hosted PMC copies
		// are green by definition.
		record.OAStatus = domain.OAStatusGreen
	}
	if r.FullTextURLList != nil {
		for _, ft := range r.FullTextURLList.FullTextURL {
			if strings.EqualFold(ft.DocumentStyle, "pdf") && ft.URL != "" {
				record.OAURL = ft.URL
				break
			}
		}
	}

	return record
}

// splitAuthors breaks the Europe PMC author string ("A, B, C.") into
// individual names.
func splitAuthors(s string) []string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	authors := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}
