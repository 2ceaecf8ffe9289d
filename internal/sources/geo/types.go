package geo

// esearchResponse is the JSON envelope returned by esearch.fcgi.
type esearchResponse struct {
	ESearchResult esearchResult `json:"esearchresult"`
}

type esearchResult struct {
	Count    string   `json:"count"`
	RetMax   string   `json:"retmax"`
	RetStart string   `json:"retstart"`
	IDList   []string `json:"idlist"`
}

// esummaryResponse is the JSON envelope returned by esummary.fcgi for
// the gds database. The result object maps each UID to its document
// summary, plus a "uids" array preserving order.
type esummaryResponse struct {
	Result map[string]any `json:"result"`
}

// docSummary is one GEO DataSets document summary. Fields are a subset
// of what esummary returns; everything else is ignored.
type docSummary struct {
	Accession string   `json:"accession"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Taxon     string   `json:"taxon"`
	GDSType   string   `json:"gdstype"`
	NSamples  int      `json:"n_samples"`
	PDat      string   `json:"pdat"`
	PubMedIDs []any    `json:"pubmedids"`
	FTPLink   string   `json:"ftplink"`
	Entries   []string `json:"-"`
}
