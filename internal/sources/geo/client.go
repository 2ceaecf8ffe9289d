// Package geo implements a SourceClient for the NCBI GEO DataSets
// registry via the E-utilities API.
package geo

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
	// DefaultBaseURL is the base URL for the NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key.
	// NCBI policy allows 3 requests/second; 10 with an API key.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 50

	// eutilsDB is the Entrez database queried for GEO DataSets.
	eutilsDB = "gds"

	// sourceName is the human-readable name for this source.
	sourceName = "GEO DataSets"
)

// Config holds the configuration for the GEO client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits. Optional.
	APIKey string

	// Timeout is the request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit per NCBI policy.
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

// Client implements the sources.SourceClient interface for GEO DataSets.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Compile-time check that Client implements SourceClient.
var _ sources.SourceClient = (*Client)(nil)

// New creates a new GEO client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
		}),
	}
}

// NewWithHTTPClient creates a new GEO client with a custom HTTP client.
// Useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries GEO DataSets for series matching the given parameters.
// It performs the standard two-step E-utilities flow:
//  1. esearch.fcgi retrieves UIDs matching the query
//  2. esummary.fcgi retrieves document summaries for those UIDs
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	startTime := time.Now()

	uids, total, err := c.esearch(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}

	if len(uids) == 0 {
		return &sources.SearchResult{
			Records:        []*domain.SourceRecord{},
			TotalResults:   total,
			Source:         domain.SourceTypeGEO,
			SearchDuration: time.Since(startTime),
		}, nil
	}

	records, err := c.esummary(ctx, uids)
	if err != nil {
		return nil, fmt.Errorf("esummary failed: %w", err)
	}

	return &sources.SearchResult{
		Records:        records,
		TotalResults:   total,
		Source:         domain.SourceTypeGEO,
		SearchDuration: time.Since(startTime),
	}, nil
}

// FetchByID retrieves a single GEO series by accession (e.g. GSE123456)
// or Entrez UID.
func (c *Client) FetchByID(ctx context.Context, id string) (*domain.SourceRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidInput
	}

	// Accessions need an esearch round-trip to resolve the UID;
	// numeric IDs go straight to esummary.
	uid := id
	if !isNumeric(id) {
		uids, _, err := c.esearch(ctx, sources.SearchParams{Query: id + "[Accession]", MaxResults: 1})
		if err != nil {
			return nil, fmt.Errorf("resolving accession: %w", err)
		}
		if len(uids) == 0 {
			return nil, domain.NewNotFoundError("geo series", id)
		}
		uid = uids[0]
	}

	records, err := c.esummary(ctx, []string{uid})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.NewNotFoundError("geo series", id)
	}
	return records[0], nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeGEO
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// esearch runs the UID search step and returns the matching UIDs and
// the total match count.
func (c *Client) esearch(ctx context.Context, params sources.SearchParams) ([]string, int, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/esearch.fcgi"

	term := params.Query
	if params.Organism != "" {
		term += fmt.Sprintf(" AND %q[Organism]", params.Organism)
	}
	// Restrict to series entries; GDS and profile entries duplicate them.
	term += " AND gse[Entry Type]"

	maxResults := params.MaxResults
	if maxResults == 0 || maxResults > c.config.MaxResults {
		maxResults = c.config.MaxResults
	}

	query := url.Values{}
	query.Set("db", eutilsDB)
	query.Set("term", term)
	query.Set("retmode", "json")
	query.Set("retmax", strconv.Itoa(maxResults))
	if params.YearFrom != 0 || params.YearTo != 0 {
		query.Set("datetype", "pdat")
		if params.YearFrom != 0 {
			query.Set("mindate", strconv.Itoa(params.YearFrom))
		} else {
			query.Set("mindate", "1900")
		}
		if params.YearTo != 0 {
			query.Set("maxdate", strconv.Itoa(params.YearTo))
		} else {
			query.Set("maxdate", strconv.Itoa(time.Now().Year()))
		}
	}
	if c.config.APIKey != "" {
		query.Set("api_key", c.config.APIKey)
	}
	base.RawQuery = query.Encode()

	var resp esearchResponse
	if err := c.getJSON(ctx, base.String(), &resp); err != nil {
		return nil, 0, err
	}

	total, _ := strconv.Atoi(resp.ESearchResult.Count)
	return resp.ESearchResult.IDList, total, nil
}

// esummary fetches document summaries for the given UIDs and converts
// them into source records.
func (c *Client) esummary(ctx context.Context, uids []string) ([]*domain.SourceRecord, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/esummary.fcgi"

	query := url.Values{}
	query.Set("db", eutilsDB)
	query.Set("id", strings.Join(uids, ","))
	query.Set("retmode", "json")
	if c.config.APIKey != "" {
		query.Set("api_key", c.config.APIKey)
	}
	base.RawQuery = query.Encode()

	var resp esummaryResponse
	if err := c.getJSON(ctx, base.String(), &resp); err != nil {
		return nil, err
	}

	records := make([]*domain.SourceRecord, 0, len(uids))
	for _, uid := range uids {
		raw, ok := resp.Result[uid]
		if !ok {
			continue
		}
		// Round-trip through JSON to decode the per-UID summary object.
		buf, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var doc docSummary
		if err := json.Unmarshal(buf, &doc); err != nil {
			continue
		}
		if record := c.docToRecord(&doc); record != nil {
			records = append(records, record)
		}
	}
	return records, nil
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

// docToRecord converts a GEO document summary to a domain SourceRecord.
func (c *Client) docToRecord(doc *docSummary) *domain.SourceRecord {
	if doc == nil || strings.TrimSpace(doc.Accession) == "" {
		return nil
	}

	ids := domain.Identifiers{
		Accession: strings.ToUpper(strings.TrimSpace(doc.Accession)),
	}
	// GEO series link back to their publication by PMID; carrying the
	// PMID lets the deduplicator join the dataset with its paper.
	for _, raw := range doc.PubMedIDs {
		if pmid := pubmedIDString(raw); pmid != "" {
			ids.PMID = pmid
			break
		}
	}

	year := 0
	if len(doc.PDat) >= 4 {
		year, _ = strconv.Atoi(doc.PDat[:4])
	}

	return &domain.SourceRecord{
		Source:          domain.SourceTypeGEO,
		IDs:             ids,
		Title:           strings.TrimSpace(doc.Title),
		Summary:         strings.TrimSpace(doc.Summary),
		Organism:        strings.ToLower(strings.TrimSpace(doc.Taxon)),
		SampleCount:     doc.NSamples,
		PublicationYear: year,
		FetchedAt:       time.Now().UTC(),
	}
}

// pubmedIDString normalizes a pubmedids entry, which esummary returns
// as either a JSON number or a string depending on the record.
func pubmedIDString(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// isNumeric reports whether s consists solely of ASCII digits.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
