package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Query is a normalized search intent. It is immutable once submitted:
// the orchestrator never mutates a Query after receiving it, and the
// cache key is derived purely from its fields.
type Query struct {
	// Terms is the ordered list of search terms. Term extraction and
	// entity annotation happen upstream; the orchestrator receives the
	// terms already normalized.
	Terms []string

	// Organism optionally restricts results to a single organism
	// (e.g. "homo sapiens").
	Organism string

	// YearFrom and YearTo optionally bound the publication year.
	// Zero means unbounded.
	YearFrom int
	YearTo   int

	// Sources optionally restricts the fan-out to an allow-list of
	// source types. Empty means all enabled sources.
	Sources []SourceType

	// MaxResults caps the number of ranked results returned.
	// Zero uses the orchestrator default.
	MaxResults int
}

// Text returns the query terms joined into a single search string.
func (q Query) Text() string {
	return strings.Join(q.Terms, " ")
}

// CacheKey returns the content-addressed cache key for this query:
// lower-cased, whitespace-collapsed terms followed by the sorted filter
// set. Two queries that differ only in term casing, surrounding
// whitespace, or source allow-list order produce the same key.
func (q Query) CacheKey() string {
	parts := make([]string, 0, len(q.Terms)+4)
	for _, term := range q.Terms {
		t := strings.Join(strings.Fields(strings.ToLower(term)), " ")
		if t != "" {
			parts = append(parts, t)
		}
	}

	var filters []string
	if q.Organism != "" {
		filters = append(filters, "organism="+strings.ToLower(strings.TrimSpace(q.Organism)))
	}
	if q.YearFrom != 0 {
		filters = append(filters, "from="+strconv.Itoa(q.YearFrom))
	}
	if q.YearTo != 0 {
		filters = append(filters, "to="+strconv.Itoa(q.YearTo))
	}
	if len(q.Sources) > 0 {
		sources := make([]string, 0, len(q.Sources))
		for _, s := range q.Sources {
			sources = append(sources, string(s))
		}
		sort.Strings(sources)
		filters = append(filters, "sources="+strings.Join(sources, ","))
	}
	if q.MaxResults > 0 {
		filters = append(filters, "max="+strconv.Itoa(q.MaxResults))
	}
	sort.Strings(filters)

	key := strings.Join(parts, " ")
	if len(filters) > 0 {
		key += "|" + strings.Join(filters, "|")
	}
	return key
}
