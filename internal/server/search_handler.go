package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// Request validation constants.
const (
	maxTerms           = 25
	maxTermLength      = 200
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// searchRequest is the JSON request body for POST /api/v1/search.
type searchRequest struct {
	Terms      []string `json:"terms"`
	Organism   string   `json:"organism,omitempty"`
	YearFrom   int      `json:"year_from,omitempty"`
	YearTo     int      `json:"year_to,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

// searchResponse is the JSON response body for a completed search.
type searchResponse struct {
	Results     []resultResponse  `json:"results"`
	Warnings    []warningResponse `json:"warnings,omitempty"`
	FromCache   bool              `json:"from_cache"`
	CompletedAt time.Time         `json:"completed_at"`
}

type resultResponse struct {
	ID          string             `json:"id"`
	CanonicalID string             `json:"canonical_id"`
	Title       string             `json:"title"`
	Summary     string             `json:"summary,omitempty"`
	Authors     []string           `json:"authors,omitempty"`
	Organism    string             `json:"organism,omitempty"`
	Year        int                `json:"year,omitempty"`
	SampleCount int                `json:"sample_count,omitempty"`
	DOI         string             `json:"doi,omitempty"`
	PMID        string             `json:"pmid,omitempty"`
	PMCID       string             `json:"pmcid,omitempty"`
	Accession   string             `json:"accession,omitempty"`
	Sources     []string           `json:"sources"`
	Score       float64            `json:"score"`
	Reasons     []reasonResponse   `json:"reasons,omitempty"`
	FullText    *fullTextResponse  `json:"full_text,omitempty"`
	Attempts    []attemptResponse  `json:"full_text_attempts,omitempty"`
}

type reasonResponse struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Detail  string  `json:"detail,omitempty"`
}

type fullTextResponse struct {
	Status   string `json:"status"`
	URL      string `json:"url,omitempty"`
	Source   string `json:"source,omitempty"`
	OAStatus string `json:"oa_status,omitempty"`
}

type attemptResponse struct {
	Strategy      string `json:"strategy"`
	URL           string `json:"url,omitempty"`
	Succeeded     bool   `json:"succeeded"`
	FailureReason string `json:"failure_reason,omitempty"`
	Retried       bool   `json:"retried"`
	DurationMS    int64  `json:"duration_ms"`
}

type warningResponse struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// searchHandler handles POST /api/v1/search.
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req searchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	query, err := req.toQuery()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := s.search.Search(r.Context(), query)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSearchResponse(outcome))
}

// writeSearchError maps orchestration errors to HTTP status codes.
func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	var failed *domain.AllSourcesFailedError
	switch {
	case errors.As(err, &failed):
		warnings := make([]warningResponse, len(failed.Warnings))
		for i, warning := range failed.Warnings {
			warnings[i] = toWarningResponse(warning)
		}
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":    "all sources failed",
			"warnings": warnings,
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "search deadline exceeded")
	default:
		s.logger.Error().Err(err).Msg("search failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// toQuery validates the request and converts it to a domain query.
func (r *searchRequest) toQuery() (domain.Query, error) {
	terms := make([]string, 0, len(r.Terms))
	for _, term := range r.Terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if len(term) > maxTermLength {
			return domain.Query{}, fmt.Errorf("term exceeds %d characters", maxTermLength)
		}
		terms = append(terms, term)
	}
	if len(terms) == 0 {
		return domain.Query{}, fmt.Errorf("at least one search term is required")
	}
	if len(terms) > maxTerms {
		return domain.Query{}, fmt.Errorf("at most %d search terms are allowed", maxTerms)
	}

	var allowed []domain.SourceType
	for _, name := range r.Sources {
		st := domain.SourceType(strings.ToLower(strings.TrimSpace(name)))
		switch st {
		case domain.SourceTypeGEO, domain.SourceTypeEuropePMC, domain.SourceTypeCrossref:
			allowed = append(allowed, st)
		default:
			return domain.Query{}, fmt.Errorf("unsupported source: %s", name)
		}
	}

	if r.MaxResults < 0 {
		return domain.Query{}, fmt.Errorf("max_results must not be negative")
	}

	return domain.Query{
		Terms:      terms,
		Organism:   strings.TrimSpace(r.Organism),
		YearFrom:   r.YearFrom,
		YearTo:     r.YearTo,
		Sources:    allowed,
		MaxResults: r.MaxResults,
	}, nil
}

func toSearchResponse(outcome *domain.SearchOutcome) searchResponse {
	resp := searchResponse{
		Results:     make([]resultResponse, 0, len(outcome.Results)),
		FromCache:   outcome.FromCache,
		CompletedAt: outcome.CompletedAt,
	}
	for _, result := range outcome.Results {
		resp.Results = append(resp.Results, toResultResponse(result))
	}
	for _, warning := range outcome.Warnings {
		resp.Warnings = append(resp.Warnings, toWarningResponse(warning))
	}
	return resp
}

func toResultResponse(result domain.RankedResult) resultResponse {
	record := result.Record
	sources := make([]string, 0, len(record.Contributions))
	for _, st := range record.SourceNames() {
		sources = append(sources, string(st))
	}
	out := resultResponse{
		ID:          record.ID.String(),
		CanonicalID: record.CanonicalID,
		Title:       record.Title,
		Summary:     record.Summary,
		Authors:     record.Authors,
		Organism:    record.Organism,
		Year:        record.PublicationYear,
		SampleCount: record.SampleCount,
		DOI:         record.IDs.DOI,
		PMID:        record.IDs.PMID,
		PMCID:       record.IDs.PMCID,
		Accession:   record.IDs.Accession,
		Sources:     sources,
		Score:       result.Score,
	}
	for _, reason := range result.Reasons {
		out.Reasons = append(out.Reasons, reasonResponse{
			Feature: reason.Feature,
			Value:   reason.Value,
			Detail:  reason.Detail,
		})
	}
	if record.FullText != domain.FullTextUnresolved {
		ft := &fullTextResponse{Status: string(record.FullText)}
		if record.FullTextLocation != nil {
			ft.URL = record.FullTextLocation.URL
			ft.Source = record.FullTextLocation.Source
			ft.OAStatus = string(record.FullTextLocation.OAStatus)
		}
		out.FullText = ft
	}
	for _, attempt := range record.Attempts {
		out.Attempts = append(out.Attempts, attemptResponse{
			Strategy:      attempt.Strategy,
			URL:           attempt.URL,
			Succeeded:     attempt.Succeeded,
			FailureReason: attempt.FailureReason,
			Retried:       attempt.Retried,
			DurationMS:    attempt.Duration.Milliseconds(),
		})
	}
	return out
}

func toWarningResponse(warning domain.SourceWarning) warningResponse {
	return warningResponse{
		Source: string(warning.Source),
		Kind:   warning.Kind,
		Error:  warning.Err,
	}
}
