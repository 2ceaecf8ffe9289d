package crossref

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omicsearch/discovery-service/internal/domain"
	"github.com/omicsearch/discovery-service/internal/sources"
)

const worksBody = `{
	"status": "ok",
	"message": {
		"total-results": 2,
		"items": [
			{
				"DOI": "10.1038/S41586-022-1",
				"title": ["A single-cell atlas of the human liver"],
				"abstract": "<jats:p>We profiled 100,000 cells.</jats:p>",
				"author": [
					{"given": "Jane", "family": "Doe"},
					{"given": "", "family": "Roe"}
				],
				"issued": {"date-parts": [[2022, 3, 15]]},
				"link": [
					{"URL": "https://publisher.example.org/xml", "content-type": "application/xml"},
					{"URL": "https://publisher.example.org/a.pdf", "content-type": "application/pdf"}
				]
			},
			{
				"DOI": "10.1016/j.cell.2021.2",
				"title": ["Cardiac fibroblast states"],
				"issued": {"date-parts": [[2021]]}
			}
		]
	}
}`

func testClient(serverURL string) *Client {
	return New(Config{
		BaseURL:   serverURL,
		RateLimit: 1000,
		BurstSize: 1000,
		Enabled:   true,
	})
}

func TestClient_Search(t *testing.T) {
	t.Run("parses works into source records", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works", r.URL.Path)
			assert.Equal(t, "liver atlas", r.URL.Query().Get("query"))
			fmt.Fprint(w, worksBody)
		}))
		defer server.Close()

		client := testClient(server.URL)
		result, err := client.Search(context.Background(), sources.SearchParams{Query: "liver atlas"})
		require.NoError(t, err)

		assert.Equal(t, 2, result.TotalResults)
		assert.Equal(t, domain.SourceTypeCrossref, result.Source)
		require.Len(t, result.Records, 2)

		first := result.Records[0]
		assert.Equal(t, "10.1038/s41586-022-1", first.IDs.DOI)
		assert.Equal(t, "A single-cell atlas of the human liver", first.Title)
		assert.Equal(t, "We profiled 100,000 cells.", first.Summary)
		assert.Equal(t, []string{"Jane Doe", "Roe"}, first.Authors)
		assert.Equal(t, 2022, first.PublicationYear)
		assert.Equal(t, "https://publisher.example.org/a.pdf", first.OAURL)

		second := result.Records[1]
		assert.Equal(t, 2021, second.PublicationYear)
		assert.Empty(t, second.OAURL)
	})

	t.Run("year filters map to pub-date filter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "from-pub-date:2020-01-01,until-pub-date:2023-12-31", r.URL.Query().Get("filter"))
			fmt.Fprint(w, `{"status":"ok","message":{"total-results":0,"items":[]}}`)
		}))
		defer server.Close()

		client := testClient(server.URL)
		_, err := client.Search(context.Background(), sources.SearchParams{
			Query:    "liver",
			YearFrom: 2020,
			YearTo:   2023,
		})
		require.NoError(t, err)
	})

	t.Run("organism folds into the free-text query", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "liver Homo sapiens", r.URL.Query().Get("query"))
			fmt.Fprint(w, `{"status":"ok","message":{"total-results":0,"items":[]}}`)
		}))
		defer server.Close()

		client := testClient(server.URL)
		_, err := client.Search(context.Background(), sources.SearchParams{Query: "liver", Organism: "Homo sapiens"})
		require.NoError(t, err)
	})

	t.Run("polite pool email is sent as mailto", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "team@omicsearch.org", r.URL.Query().Get("mailto"))
			fmt.Fprint(w, `{"status":"ok","message":{"total-results":0,"items":[]}}`)
		}))
		defer server.Close()

		client := New(Config{
			BaseURL:   server.URL,
			Email:     "team@omicsearch.org",
			RateLimit: 1000,
			BurstSize: 1000,
			Enabled:   true,
		})
		_, err := client.Search(context.Background(), sources.SearchParams{Query: "q"})
		require.NoError(t, err)
	})

	t.Run("works without a DOI are dropped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status":"ok","message":{"total-results":1,"items":[{"title":["No DOI"]}]}}`)
		}))
		defer server.Close()

		client := testClient(server.URL)
		result, err := client.Search(context.Background(), sources.SearchParams{Query: "q"})
		require.NoError(t, err)
		assert.Empty(t, result.Records)
	})

	t.Run("provider error surfaces as an external API error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := testClient(server.URL)
		_, err := client.Search(context.Background(), sources.SearchParams{Query: "q"})
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		assert.True(t, errors.As(err, &apiErr))
	})
}

func TestClient_FetchByID(t *testing.T) {
	t.Run("fetches a single work by DOI", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works/10.1038/s41586-022-1", r.URL.Path)
			fmt.Fprint(w, `{
				"status": "ok",
				"message": {
					"DOI": "10.1038/s41586-022-1",
					"title": ["A single-cell atlas of the human liver"],
					"issued": {"date-parts": [[2022]]}
				}
			}`)
		}))
		defer server.Close()

		client := testClient(server.URL)
		record, err := client.FetchByID(context.Background(), "https://doi.org/10.1038/S41586-022-1")
		require.NoError(t, err)
		assert.Equal(t, "10.1038/s41586-022-1", record.IDs.DOI)
		assert.Equal(t, 2022, record.PublicationYear)
	})

	t.Run("unknown DOI is not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := testClient(server.URL)
		_, err := client.FetchByID(context.Background(), "10.1/missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("blank ID is invalid input", func(t *testing.T) {
		client := testClient("http://unused")
		_, err := client.FetchByID(context.Background(), "  ")
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestCleanAbstract(t *testing.T) {
	assert.Equal(t, "Plain text.", cleanAbstract("<jats:p>Plain text.</jats:p>"))
	assert.Equal(t, "Nested content", cleanAbstract(`<jats:sec><jats:title/>Nested content</jats:sec>`))
	assert.Equal(t, "", cleanAbstract(""))
}

func TestClient_Metadata(t *testing.T) {
	client := New(Config{Enabled: true})
	assert.Equal(t, domain.SourceTypeCrossref, client.SourceType())
	assert.Equal(t, "Crossref", client.Name())
	assert.True(t, client.IsEnabled())
}
