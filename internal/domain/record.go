package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies one external provider of dataset or publication
// metadata.
type SourceType string

// Known source types.
const (
	// SourceTypeGEO is the NCBI GEO DataSets registry.
	SourceTypeGEO SourceType = "geo"

	// SourceTypeEuropePMC is the Europe PMC bibliographic API.
	SourceTypeEuropePMC SourceType = "europepmc"

	// SourceTypeCrossref is the Crossref bibliographic API.
	SourceTypeCrossref SourceType = "crossref"
)

// OAStatus classifies how a full-text copy is licensed and hosted.
type OAStatus string

// Open-access status values.
const (
	OAStatusGold    OAStatus = "gold"
	OAStatusGreen   OAStatus = "green"
	OAStatusBronze  OAStatus = "bronze"
	OAStatusHybrid  OAStatus = "hybrid"
	OAStatusUnknown OAStatus = "unknown"
)

// ParseOAStatus maps a provider-reported status string to an OAStatus,
// defaulting to unknown for unrecognized values.
func ParseOAStatus(s string) OAStatus {
	switch OAStatus(strings.ToLower(strings.TrimSpace(s))) {
	case OAStatusGold:
		return OAStatusGold
	case OAStatusGreen:
		return OAStatusGreen
	case OAStatusBronze:
		return OAStatusBronze
	case OAStatusHybrid:
		return OAStatusHybrid
	default:
		return OAStatusUnknown
	}
}

// Identifiers holds the provider-native identifiers of a record.
// Any subset may be populated; strong identifiers are DOI, PMID, PMCID,
// and accession.
type Identifiers struct {
	DOI       string
	PMID      string
	PMCID     string
	Accession string
}

// Keys returns the populated identifiers as namespaced strings
// (e.g. "doi:10.1000/x"). Used by the deduplicator for exact matching.
func (i Identifiers) Keys() []string {
	var keys []string
	if doi := NormalizeDOI(i.DOI); doi != "" {
		keys = append(keys, "doi:"+doi)
	}
	if pmid := strings.TrimSpace(i.PMID); pmid != "" {
		keys = append(keys, "pmid:"+pmid)
	}
	if pmcid := strings.TrimSpace(i.PMCID); pmcid != "" {
		keys = append(keys, "pmcid:"+strings.ToUpper(pmcid))
	}
	if acc := strings.TrimSpace(i.Accession); acc != "" {
		keys = append(keys, "accession:"+strings.ToUpper(acc))
	}
	return keys
}

// IsEmpty returns true if no identifier is populated.
func (i Identifiers) IsEmpty() bool {
	return len(i.Keys()) == 0
}

// Canonical returns the canonical identifier derived from the strongest
// available identifier. Priority: DOI > PMID > PMCID > accession.
// Returns empty string if no identifier is available.
func (i Identifiers) Canonical() string {
	if doi := NormalizeDOI(i.DOI); doi != "" {
		return "doi:" + doi
	}
	if pmid := strings.TrimSpace(i.PMID); pmid != "" {
		return "pmid:" + pmid
	}
	if pmcid := strings.TrimSpace(i.PMCID); pmcid != "" {
		return "pmcid:" + strings.ToUpper(pmcid)
	}
	if acc := strings.TrimSpace(i.Accession); acc != "" {
		return "accession:" + strings.ToUpper(acc)
	}
	return ""
}

// Merge returns the union of two identifier sets. Existing values are
// never overwritten: once an identifier has been merged into a record
// it is kept even if a later contribution disagrees.
func (i Identifiers) Merge(other Identifiers) Identifiers {
	merged := i
	if merged.DOI == "" {
		merged.DOI = other.DOI
	}
	if merged.PMID == "" {
		merged.PMID = other.PMID
	}
	if merged.PMCID == "" {
		merged.PMCID = other.PMCID
	}
	if merged.Accession == "" {
		merged.Accession = other.Accession
	}
	return merged
}

// NormalizeDOI strips URL and scheme prefixes from a DOI and lowercases it.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// SourceRecord is the raw record returned by one source client. It is
// short-lived: created per provider call, owned by the orchestrator, and
// discarded after the deduplicator merges it into a CanonicalRecord.
type SourceRecord struct {
	Source          SourceType
	IDs             Identifiers
	Title           string
	Summary         string
	Authors         []string
	Organism        string
	SampleCount     int
	PublicationYear int

	// OAURL is a structured open-access link if the provider reported
	// one with the discovery metadata.
	OAURL    string
	OAStatus OAStatus

	FetchedAt time.Time
}

// FullTextStatus is the resolution state of a canonical record.
type FullTextStatus string

// Full-text resolution states. Transitions are one-way:
// unresolved -> resolved or unresolved -> exhausted.
const (
	FullTextUnresolved FullTextStatus = "unresolved"
	FullTextResolved   FullTextStatus = "resolved"
	FullTextExhausted  FullTextStatus = "exhausted"
)

// FullTextLocation records where a resolved full text lives and how it
// is licensed.
type FullTextLocation struct {
	URL      string
	Source   string
	OAStatus OAStatus
}

// FullTextAttempt is one resolver strategy execution. Attempts are
// append-only: the resolver appends, nothing mutates or deletes them.
type FullTextAttempt struct {
	Strategy      string
	URL           string
	Succeeded     bool
	FailureReason string
	Retried       bool
	Duration      time.Duration
}

// CanonicalRecord is the deduplicated, merged view of one logical
// publication or dataset.
type CanonicalRecord struct {
	// ID is the stable internal identifier assigned at first merge.
	ID uuid.UUID

	// CanonicalID is derived from the strongest merged identifier.
	CanonicalID string

	// IDs is the union of provider identifiers across all
	// contributions. Append-only.
	IDs Identifiers

	Title           string
	Summary         string
	Authors         []string
	Organism        string
	SampleCount     int
	PublicationYear int
	OAURL           string
	OAStatus        OAStatus

	// Contributions lists the source records merged into this one, in
	// source-priority order, for provenance and explainability.
	Contributions []*SourceRecord

	// FullText tracks resolution state. Mutated only by the resolver.
	FullText         FullTextStatus
	FullTextLocation *FullTextLocation
	Attempts         []FullTextAttempt
}

// NewCanonicalRecord creates a record in the unresolved state.
func NewCanonicalRecord() *CanonicalRecord {
	return &CanonicalRecord{
		ID:       uuid.New(),
		FullText: FullTextUnresolved,
	}
}

// SourceNames returns the distinct contributing source types in
// contribution order.
func (r *CanonicalRecord) SourceNames() []SourceType {
	seen := make(map[SourceType]bool, len(r.Contributions))
	var out []SourceType
	for _, c := range r.Contributions {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	return out
}

// MarkResolved transitions the record to resolved. Returns an error if
// the record already left the unresolved state.
func (r *CanonicalRecord) MarkResolved(loc FullTextLocation) error {
	if r.FullText != FullTextUnresolved {
		return fmt.Errorf("%w: cannot resolve record in state %q", ErrInvalidTransition, r.FullText)
	}
	r.FullText = FullTextResolved
	r.FullTextLocation = &loc
	return nil
}

// MarkExhausted transitions the record to exhausted. Returns an error
// if the record already left the unresolved state.
func (r *CanonicalRecord) MarkExhausted() error {
	if r.FullText != FullTextUnresolved {
		return fmt.Errorf("%w: cannot exhaust record in state %q", ErrInvalidTransition, r.FullText)
	}
	r.FullText = FullTextExhausted
	return nil
}

// ScoreReason itemizes one contribution to a ranked result's score.
type ScoreReason struct {
	Feature string
	Value   float64
	Detail  string
}

// RankedResult pairs a canonical record with its relevance score and
// the itemized reasons that explain it. The sum of reason values,
// capped at 1.0, always equals Score.
type RankedResult struct {
	Record  *CanonicalRecord
	Score   float64
	Reasons []ScoreReason
}

// SourceWarning records a source that failed during an orchestration
// pass. Failed sources are surfaced, never silently dropped.
type SourceWarning struct {
	Source SourceType
	Kind   string
	Err    string
}

// SearchOutcome is the result of one orchestration pass: ranked results
// plus the warnings explaining which sources did not contribute.
type SearchOutcome struct {
	Results     []RankedResult
	Warnings    []SourceWarning
	FromCache   bool
	CompletedAt time.Time
}

// SortWarnings orders warnings by source name for deterministic output.
func SortWarnings(warnings []SourceWarning) {
	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].Source < warnings[j].Source
	})
}
