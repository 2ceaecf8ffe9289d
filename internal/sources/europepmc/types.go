package europepmc

// searchResponse is the JSON envelope returned by the Europe PMC
// REST search endpoint.
type searchResponse struct {
	HitCount   int        `json:"hitCount"`
	ResultList resultList `json:"resultList"`
}

type resultList struct {
	Result []result `json:"result"`
}

// result is one Europe PMC search result in "core" result type.
// Fields are a subset of what the API returns.
type result struct {
	ID              string           `json:"id"`
	Source          string           `json:"source"`
	PMID            string           `json:"pmid"`
	PMCID           string           `json:"pmcid"`
	DOI             string           `json:"doi"`
	Title           string           `json:"title"`
	AbstractText    string           `json:"abstractText"`
	AuthorString    string           `json:"authorString"`
	PubYear         string           `json:"pubYear"`
	IsOpenAccess    string           `json:"isOpenAccess"`
	FullTextURLList *fullTextURLList `json:"fullTextUrlList"`
}

type fullTextURLList struct {
	FullTextURL []fullTextURL `json:"fullTextUrl"`
}

type fullTextURL struct {
	Availability  string `json:"availability"`
	DocumentStyle string `json:"documentStyle"`
	Site          string `json:"site"`
	URL           string `json:"url"`
}
