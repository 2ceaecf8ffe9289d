// Package dedup merges source records that refer to the same logical
// publication or dataset across heterogeneous identifier schemes.
package dedup

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// DefaultTitleSimilarityThreshold is the default normalized title
// similarity above which two records with compatible years are fuzzily
// merged. Tunable; requires calibration against real provider data.
const DefaultTitleSimilarityThreshold = 0.90

// DefaultSourcePriority is the default field-resolution order: the
// registry is authoritative for dataset fields, Europe PMC beats
// Crossref for abstracts.
var DefaultSourcePriority = []domain.SourceType{
	domain.SourceTypeGEO,
	domain.SourceTypeEuropePMC,
	domain.SourceTypeCrossref,
}

// Config holds deduplicator configuration.
type Config struct {
	// TitleSimilarityThreshold is the normalized title similarity
	// (0..1) above which records with no shared strong identifier but
	// matching years (±1) merge. Defaults to
	// DefaultTitleSimilarityThreshold if zero.
	TitleSimilarityThreshold float64

	// SourcePriority is the field-resolution order, highest authority
	// first. Defaults to DefaultSourcePriority if empty.
	SourcePriority []domain.SourceType
}

// Merger builds equivalence classes over source records and merges each
// class into one canonical record.
type Merger struct {
	threshold float64
	priority  map[domain.SourceType]int
}

// NewMerger creates a Merger with the given configuration.
func NewMerger(cfg Config) *Merger {
	threshold := cfg.TitleSimilarityThreshold
	if threshold == 0 {
		threshold = DefaultTitleSimilarityThreshold
	}

	order := cfg.SourcePriority
	if len(order) == 0 {
		order = DefaultSourcePriority
	}
	priority := make(map[domain.SourceType]int, len(order))
	for i, st := range order {
		priority[st] = i
	}

	return &Merger{
		threshold: threshold,
		priority:  priority,
	}
}

// Merge groups the given source records into equivalence classes and
// returns one canonical record per class. Two records belong to the
// same class if they share any strong identifier (DOI, PMID, PMCID,
// accession) exactly, or, lacking any shared strong identifier, if
// their normalized titles are similar above the threshold and their
// publication years differ by at most one.
//
// The result is independent of input order: records are canonically
// sorted before class construction, and output is sorted by canonical
// identifier.
func (m *Merger) Merge(records []*domain.SourceRecord) []*domain.CanonicalRecord {
	if len(records) == 0 {
		return nil
	}

	// Canonical processing order makes union-find results, and
	// therefore field resolution, permutation-independent.
	sorted := make([]*domain.SourceRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := recordSortKey(sorted[i]), recordSortKey(sorted[j])
		return a < b
	})

	uf := newUnionFind(len(sorted))

	// Exact phase: union records sharing any strong identifier.
	byKey := make(map[string]int)
	for i, record := range sorted {
		for _, key := range record.IDs.Keys() {
			if j, ok := byKey[key]; ok {
				uf.union(i, j)
			} else {
				byKey[key] = i
			}
		}
	}

	// Fuzzy phase: pairs with no shared strong identifier merge on
	// title similarity plus year proximity. Quadratic, but bounded by
	// the per-pass result cap.
	titles := make([]string, len(sorted))
	for i, record := range sorted {
		titles[i] = NormalizeTitle(record.Title)
	}
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			if sharesStrongID(sorted[i].IDs, sorted[j].IDs) {
				continue
			}
			if conflictingStrongID(sorted[i].IDs, sorted[j].IDs) {
				continue
			}
			if !yearsCompatible(sorted[i].PublicationYear, sorted[j].PublicationYear) {
				continue
			}
			if TitleSimilarity(titles[i], titles[j]) >= m.threshold {
				uf.union(i, j)
			}
		}
	}

	// Collect classes in deterministic order.
	classes := make(map[int][]*domain.SourceRecord)
	var roots []int
	for i, record := range sorted {
		root := uf.find(i)
		if _, seen := classes[root]; !seen {
			roots = append(roots, root)
		}
		classes[root] = append(classes[root], record)
	}
	sort.Ints(roots)

	merged := make([]*domain.CanonicalRecord, 0, len(roots))
	for _, root := range roots {
		merged = append(merged, m.resolve(classes[root]))
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CanonicalID < merged[j].CanonicalID
	})
	return merged
}

// resolve merges one equivalence class into a canonical record. Field
// values come from the highest-priority contributing source that has a
// non-null value; the identifier set is the union over the whole class.
func (m *Merger) resolve(class []*domain.SourceRecord) *domain.CanonicalRecord {
	// Priority order, ties broken by the canonical sort key.
	sort.SliceStable(class, func(i, j int) bool {
		pi, pj := m.rank(class[i].Source), m.rank(class[j].Source)
		if pi != pj {
			return pi < pj
		}
		return recordSortKey(class[i]) < recordSortKey(class[j])
	})

	record := &domain.CanonicalRecord{
		FullText:      domain.FullTextUnresolved,
		Contributions: class,
	}

	for _, contrib := range class {
		record.IDs = record.IDs.Merge(contrib.IDs)
		if record.Title == "" {
			record.Title = contrib.Title
		}
		if record.Summary == "" {
			record.Summary = contrib.Summary
		}
		if len(record.Authors) == 0 {
			record.Authors = contrib.Authors
		}
		if record.Organism == "" {
			record.Organism = contrib.Organism
		}
		if record.SampleCount == 0 {
			record.SampleCount = contrib.SampleCount
		}
		if record.PublicationYear == 0 {
			record.PublicationYear = contrib.PublicationYear
		}
		if record.OAURL == "" {
			record.OAURL = contrib.OAURL
		}
		if record.OAStatus == "" || record.OAStatus == domain.OAStatusUnknown {
			if contrib.OAStatus != "" {
				record.OAStatus = contrib.OAStatus
			}
		}
	}
	if record.OAStatus == "" {
		record.OAStatus = domain.OAStatusUnknown
	}

	record.CanonicalID = record.IDs.Canonical()
	if record.CanonicalID == "" {
		// No identifier anywhere in the class; fall back to the
		// normalized title so the record still sorts deterministically.
		record.CanonicalID = "title:" + NormalizeTitle(record.Title)
	}
	// Deterministic internal ID: the same class always produces the
	// same UUID, which keeps repeated passes reproducible.
	record.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("omicsearch:"+record.CanonicalID))

	return record
}

// rank returns the priority index of a source, with unknown sources
// sorting last.
func (m *Merger) rank(st domain.SourceType) int {
	if r, ok := m.priority[st]; ok {
		return r
	}
	return len(m.priority)
}

// sharesStrongID reports whether two identifier sets have any
// namespaced key in common.
func sharesStrongID(a, b domain.Identifiers) bool {
	bKeys := b.Keys()
	set := make(map[string]bool, len(bKeys))
	for _, k := range bKeys {
		set[k] = true
	}
	for _, k := range a.Keys() {
		if set[k] {
			return true
		}
	}
	return false
}

// conflictingStrongID reports whether two identifier sets populate the
// same scheme with different values. Such records are distinct entities
// no matter how similar their titles: a preprint and its published
// version carry different DOIs, and fuzzily merging them would drop one
// identifier from the union.
func conflictingStrongID(a, b domain.Identifiers) bool {
	if x, y := domain.NormalizeDOI(a.DOI), domain.NormalizeDOI(b.DOI); x != "" && y != "" && x != y {
		return true
	}
	if x, y := strings.TrimSpace(a.PMID), strings.TrimSpace(b.PMID); x != "" && y != "" && x != y {
		return true
	}
	if x, y := normalizeUpper(a.PMCID), normalizeUpper(b.PMCID); x != "" && y != "" && x != y {
		return true
	}
	if x, y := normalizeUpper(a.Accession), normalizeUpper(b.Accession); x != "" && y != "" && x != y {
		return true
	}
	return false
}

func normalizeUpper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// yearsCompatible reports whether two publication years are within ±1.
// Unknown years (zero) never fuzzily match.
func yearsCompatible(a, b int) bool {
	if a == 0 || b == 0 {
		return false
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1
}

// recordSortKey produces the canonical processing order key for a record.
func recordSortKey(r *domain.SourceRecord) string {
	return r.IDs.Canonical() + "\x00" + NormalizeTitle(r.Title) + "\x00" + string(r.Source)
}

// NormalizeTitle lower-cases a title, strips punctuation, and collapses
// whitespace for fuzzy comparison.
func NormalizeTitle(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// TitleSimilarity computes 1 - levenshtein/maxlen over two normalized
// titles. Empty titles never match.
func TitleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// unionFind is a standard disjoint-set with path compression.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union attaches the larger root to the smaller so class roots are
// stable under the canonical processing order.
func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri == rj {
		return
	}
	if ri < rj {
		u.parent[rj] = ri
	} else {
		u.parent[ri] = rj
	}
}
