package crossref

// worksResponse is the JSON envelope returned by the /works endpoint.
type worksResponse struct {
	Status  string       `json:"status"`
	Message worksMessage `json:"message"`
}

type worksMessage struct {
	TotalResults int    `json:"total-results"`
	Items        []work `json:"items"`
}

// workResponse is the envelope for a single-work lookup (/works/{doi}).
type workResponse struct {
	Status  string `json:"status"`
	Message work   `json:"message"`
}

// work is one Crossref work. Fields are a subset of the full schema.
type work struct {
	DOI      string   `json:"DOI"`
	Title    []string `json:"title"`
	Abstract string   `json:"abstract"`
	Author   []author `json:"author"`
	Issued   dateVal  `json:"issued"`
	Link     []link   `json:"link"`
	License  []any    `json:"license"`
}

type author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type dateVal struct {
	DateParts [][]int `json:"date-parts"`
}

type link struct {
	URL                 string `json:"URL"`
	ContentType         string `json:"content-type"`
	IntendedApplication string `json:"intended-application"`
}
