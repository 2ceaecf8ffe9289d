package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain DOI", "10.1038/s41586-021-03819-2", "10.1038/s41586-021-03819-2"},
		{"https URL prefix", "https://doi.org/10.1038/S41586", "10.1038/s41586"},
		{"http URL prefix", "http://doi.org/10.1000/X", "10.1000/x"},
		{"doi scheme prefix", "doi:10.1000/x", "10.1000/x"},
		{"surrounding whitespace", "  10.1000/x  ", "10.1000/x"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDOI(tt.input))
		})
	}
}

func TestIdentifiers_Canonical(t *testing.T) {
	t.Run("DOI wins over everything", func(t *testing.T) {
		ids := Identifiers{DOI: "10.1/a", PMID: "123", PMCID: "PMC9", Accession: "GSE1"}
		assert.Equal(t, "doi:10.1/a", ids.Canonical())
	})

	t.Run("PMID wins over PMCID and accession", func(t *testing.T) {
		ids := Identifiers{PMID: "123", PMCID: "PMC9", Accession: "GSE1"}
		assert.Equal(t, "pmid:123", ids.Canonical())
	})

	t.Run("accession is last resort", func(t *testing.T) {
		ids := Identifiers{Accession: "gse1234"}
		assert.Equal(t, "accession:GSE1234", ids.Canonical())
	})

	t.Run("empty identifiers have no canonical form", func(t *testing.T) {
		assert.Equal(t, "", Identifiers{}.Canonical())
		assert.True(t, Identifiers{}.IsEmpty())
	})
}

func TestIdentifiers_Keys(t *testing.T) {
	ids := Identifiers{DOI: "https://doi.org/10.1/A", PMCID: "pmc42"}
	assert.Equal(t, []string{"doi:10.1/a", "pmcid:PMC42"}, ids.Keys())
}

func TestIdentifiers_Merge(t *testing.T) {
	t.Run("fills missing fields", func(t *testing.T) {
		a := Identifiers{DOI: "10.1/a"}
		b := Identifiers{PMID: "123", Accession: "GSE1"}

		merged := a.Merge(b)
		assert.Equal(t, "10.1/a", merged.DOI)
		assert.Equal(t, "123", merged.PMID)
		assert.Equal(t, "GSE1", merged.Accession)
	})

	t.Run("existing values win on disagreement", func(t *testing.T) {
		a := Identifiers{PMID: "123"}
		b := Identifiers{PMID: "999"}
		assert.Equal(t, "123", a.Merge(b).PMID)
	})
}

func TestParseOAStatus(t *testing.T) {
	assert.Equal(t, OAStatusGold, ParseOAStatus("Gold"))
	assert.Equal(t, OAStatusGreen, ParseOAStatus(" green "))
	assert.Equal(t, OAStatusBronze, ParseOAStatus("bronze"))
	assert.Equal(t, OAStatusHybrid, ParseOAStatus("hybrid"))
	assert.Equal(t, OAStatusUnknown, ParseOAStatus("closed"))
	assert.Equal(t, OAStatusUnknown, ParseOAStatus(""))
}

func TestCanonicalRecord_Transitions(t *testing.T) {
	t.Run("resolve from unresolved", func(t *testing.T) {
		record := NewCanonicalRecord()
		loc := FullTextLocation{URL: "https://example.org/a.pdf", Source: "unpaywall", OAStatus: OAStatusGold}

		require.NoError(t, record.MarkResolved(loc))
		assert.Equal(t, FullTextResolved, record.FullText)
		require.NotNil(t, record.FullTextLocation)
		assert.Equal(t, loc.URL, record.FullTextLocation.URL)
	})

	t.Run("exhaust from unresolved", func(t *testing.T) {
		record := NewCanonicalRecord()
		require.NoError(t, record.MarkExhausted())
		assert.Equal(t, FullTextExhausted, record.FullText)
	})

	t.Run("resolved record cannot be exhausted", func(t *testing.T) {
		record := NewCanonicalRecord()
		require.NoError(t, record.MarkResolved(FullTextLocation{URL: "u"}))

		err := record.MarkExhausted()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("exhausted record cannot be resolved", func(t *testing.T) {
		record := NewCanonicalRecord()
		require.NoError(t, record.MarkExhausted())

		err := record.MarkResolved(FullTextLocation{URL: "u"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("double resolve is rejected", func(t *testing.T) {
		record := NewCanonicalRecord()
		require.NoError(t, record.MarkResolved(FullTextLocation{URL: "first"}))

		err := record.MarkResolved(FullTextLocation{URL: "second"})
		require.Error(t, err)
		assert.Equal(t, "first", record.FullTextLocation.URL)
	})
}

func TestCanonicalRecord_SourceNames(t *testing.T) {
	record := NewCanonicalRecord()
	record.Contributions = []*SourceRecord{
		{Source: SourceTypeGEO},
		{Source: SourceTypeEuropePMC},
		{Source: SourceTypeGEO},
	}
	assert.Equal(t, []SourceType{SourceTypeGEO, SourceTypeEuropePMC}, record.SourceNames())
}

func TestAllSourcesFailedError(t *testing.T) {
	err := &AllSourcesFailedError{Warnings: []SourceWarning{
		{Source: SourceTypeGEO, Kind: "timeout", Err: "deadline exceeded"},
		{Source: SourceTypeCrossref, Kind: "error", Err: "status 500"},
	}}

	assert.True(t, errors.Is(err, ErrAllSourcesFailed))
	assert.Contains(t, err.Error(), "2 source(s)")
}
