// Package ranking computes deterministic relevance scores for canonical
// records. Scoring is a pure weighted-feature function, not a learned
// model: the same record and query always produce the same score, and
// every contribution is itemized so the score is fully explainable.
package ranking

import (
	"fmt"
	"strings"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// Feature weights. Contributions per feature are capped so no single
// feature can dominate; the capped sum is the score, clamped to 1.0.
const (
	// titleMatchWeight is the contribution per query term found in the title.
	titleMatchWeight = 0.12
	// titleMatchCap bounds the total title contribution.
	titleMatchCap = 0.36

	// summaryMatchWeight is the contribution per query term found in the summary.
	summaryMatchWeight = 0.05
	// summaryMatchCap bounds the total summary contribution.
	summaryMatchCap = 0.15

	// organismBonus is awarded for an exact organism match.
	organismBonus = 0.15

	// agreementBonusPerSource is awarded per contributing source beyond
	// the first, capped by agreementCap. Independent sources agreeing on
	// one record is a quality signal.
	agreementBonusPerSource = 0.05
	agreementCap            = 0.15
)

// richnessTiers maps sample-count thresholds to their bonus. Discrete
// tiers, not a continuous function: richness saturates quickly.
var richnessTiers = []struct {
	MinSamples int
	Bonus      float64
}{
	{1000, 0.20},
	{100, 0.15},
	{10, 0.10},
	{1, 0.05},
}

// Scorer computes relevance scores. It is stateless; the zero value is
// ready to use.
type Scorer struct{}

// NewScorer creates a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes the relevance score of a record for a query, returning
// the score in [0,1] and the itemized reasons. The sum of reason values,
// capped at 1.0, equals the score.
func (s *Scorer) Score(record *domain.CanonicalRecord, query domain.Query) (float64, []domain.ScoreReason) {
	var reasons []domain.ScoreReason

	terms := normalizeTerms(query.Terms)
	title := " " + foldText(record.Title) + " "
	summary := " " + foldText(record.Summary) + " "

	titleMatches := 0
	for _, term := range terms {
		if strings.Contains(title, " "+term+" ") {
			titleMatches++
		}
	}
	if titleMatches > 0 {
		value := capValue(float64(titleMatches)*titleMatchWeight, titleMatchCap)
		reasons = append(reasons, domain.ScoreReason{
			Feature: "title_match",
			Value:   value,
			Detail:  fmt.Sprintf("%d query term(s) in title", titleMatches),
		})
	}

	summaryMatches := 0
	for _, term := range terms {
		if strings.Contains(summary, " "+term+" ") {
			summaryMatches++
		}
	}
	if summaryMatches > 0 {
		value := capValue(float64(summaryMatches)*summaryMatchWeight, summaryMatchCap)
		reasons = append(reasons, domain.ScoreReason{
			Feature: "summary_match",
			Value:   value,
			Detail:  fmt.Sprintf("%d query term(s) in summary", summaryMatches),
		})
	}

	if query.Organism != "" && record.Organism != "" &&
		strings.EqualFold(strings.TrimSpace(query.Organism), strings.TrimSpace(record.Organism)) {
		reasons = append(reasons, domain.ScoreReason{
			Feature: "organism_match",
			Value:   organismBonus,
			Detail:  "exact organism match: " + record.Organism,
		})
	}

	for _, tier := range richnessTiers {
		if record.SampleCount >= tier.MinSamples {
			reasons = append(reasons, domain.ScoreReason{
				Feature: "richness",
				Value:   tier.Bonus,
				Detail:  fmt.Sprintf("%d samples (tier >= %d)", record.SampleCount, tier.MinSamples),
			})
			break
		}
	}

	if n := len(record.SourceNames()); n > 1 {
		value := capValue(float64(n-1)*agreementBonusPerSource, agreementCap)
		reasons = append(reasons, domain.ScoreReason{
			Feature: "source_agreement",
			Value:   value,
			Detail:  fmt.Sprintf("%d independent sources agree", n),
		})
	}

	return SumReasons(reasons), reasons
}

// SumReasons computes the score implied by a reason list: the sum of
// itemized values capped at 1.0. Exposed so callers and tests can
// verify the explainability invariant.
func SumReasons(reasons []domain.ScoreReason) float64 {
	sum := 0.0
	for _, r := range reasons {
		sum += r.Value
	}
	if sum > 1.0 {
		return 1.0
	}
	return sum
}

// capValue clamps v to the given cap.
func capValue(v, cap float64) float64 {
	if v > cap {
		return cap
	}
	return v
}

// normalizeTerms lower-cases and deduplicates query terms.
func normalizeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// foldText lower-cases text and replaces punctuation with spaces so
// term containment checks match on word boundaries.
func foldText(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
