package europepmc

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

const searchBody = `{
	"hitCount": 2,
	"resultList": {
		"result": [
			{
				"id": "35123456",
				"source": "MED",
				"pmid": "35123456",
				"pmcid": "pmc8900001",
				"doi": "10.1038/s41586-022-1",
				"title": "A single-cell atlas of the human liver",
				"abstractText": "We profiled 100,000 cells.",
				"authorString": "Doe J, Roe R, Poe P.",
				"pubYear": "2022",
				"isOpenAccess": "Y",
				"fullTextUrlList": {
					"fullTextUrl": [
						{"documentStyle": "html", "url": "https://europepmc.org/article/MED/35123456"},
						{"documentStyle": "pdf", "url": "https://europepmc.org/articles/PMC8900001?pdf=render"}
					]
				}
			},
			{
				"id": "34987654",
				"source": "MED",
				"pmid": "34987654",
				"doi": "10.1016/j.cell.2021.2",
				"title": "Cardiac fibroblast states",
				"pubYear": "2021",
				"isOpenAccess": "N"
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
	t.Run("parses core results into source records", func(t *testing.T) {
		var gotQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/search", r.URL.Path)
			assert.Equal(t, "core", r.URL.Query().Get("resultType"))
			assert.Equal(t, "json", r.URL.Query().Get("format"))
			gotQuery = r.URL.Query().Get("query")
			fmt.Fprint(w, searchBody)
		}))
		defer server.Close()

		client := testClient(server.URL)
		result, err := client.Search(context.Background(), sources.SearchParams{Query: "liver atlas"})
		require.NoError(t, err)

		assert.Equal(t, "liver atlas", gotQuery)
		assert.Equal(t, 2, result.TotalResults)
		assert.Equal(t, domain.SourceTypeEuropePMC, result.Source)
		require.Len(t, result.Records, 2)

		first := result.Records[0]
		assert.Equal(t, "10.1038/s41586-022-1", first.IDs.DOI)
		assert.Equal(t, "35123456", first.IDs.PMID)
		assert.Equal(t, "PMC8900001", first.IDs.PMCID)
		assert.Equal(t, []string{"Doe J", "Roe R", "Poe P"}, first.Authors)
		assert.Equal(t, 2022, first.PublicationYear)
		assert.Equal(t, domain.OAStatusGreen, first.OAStatus)
		assert.Equal(t, "https://europepmc.org/articles/PMC8900001?pdf=render", first.OAURL)

		second := result.Records[1]
		assert.Equal(t, domain.OAStatusUnknown, second.OAStatus)
		assert.Empty(t, second.OAURL)
	})

	t.Run("filters fold into the provider query", func(t *testing.T) {
		var gotQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("query")
			fmt.Fprint(w, `{"hitCount":0,"resultList":{"result":[]}}`)
		}))
		defer server.Close()

		client := testClient(server.URL)
		_, err := client.Search(context.Background(), sources.SearchParams{
			Query:    "liver",
			Organism: "Homo sapiens",
			YearFrom: 2020,
			YearTo:   2023,
		})
		require.NoError(t, err)

		assert.Contains(t, gotQuery, `"Homo sapiens"`)
		assert.Contains(t, gotQuery, "PUB_YEAR:[2020 TO 2023]")
	})

	t.Run("records without identifiers are dropped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"hitCount":1,"resultList":{"result":[{"title":"No IDs at all"}]}}`)
		}))
		defer server.Close()

		client := testClient(server.URL)
		result, err := client.Search(context.Background(), sources.SearchParams{Query: "q"})
		require.NoError(t, err)
		assert.Empty(t, result.Records)
	})

	t.Run("page size is capped by the configured max", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "25", r.URL.Query().Get("pageSize"))
			fmt.Fprint(w, `{"hitCount":0,"resultList":{"result":[]}}`)
		}))
		defer server.Close()

		client := New(Config{
			BaseURL:    server.URL,
			RateLimit:  1000,
			BurstSize:  1000,
			MaxResults: 25,
			Enabled:    true,
		})
		_, err := client.Search(context.Background(), sources.SearchParams{Query: "q", MaxResults: 500})
		require.NoError(t, err)
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
	tests := []struct {
		name      string
		id        string
		wantQuery string
	}{
		{"PMCID lookup", "PMC8900001", `PMCID:"PMC8900001"`},
		{"DOI lookup", "10.1038/s41586-022-1", `DOI:"10.1038/s41586-022-1"`},
		{"PMID lookup", "35123456", `EXT_ID:"35123456" AND SRC:MED`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.Query().Get("query")
				fmt.Fprint(w, searchBody)
			}))
			defer server.Close()

			client := testClient(server.URL)
			record, err := client.FetchByID(context.Background(), tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, gotQuery)
			assert.NotNil(t, record)
		})
	}

	t.Run("no match is not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"hitCount":0,"resultList":{"result":[]}}`)
		}))
		defer server.Close()

		client := testClient(server.URL)
		_, err := client.FetchByID(context.Background(), "10.1/missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestSplitAuthors(t *testing.T) {
	assert.Equal(t, []string{"Doe J", "Roe R"}, splitAuthors("Doe J, Roe R."))
	assert.Nil(t, splitAuthors(""))
	assert.Nil(t, splitAuthors(" . "))
}

func TestClient_Metadata(t *testing.T) {
	client := New(Config{Enabled: true})
	assert.Equal(t, domain.SourceTypeEuropePMC, client.SourceType())
	assert.Equal(t, "Europe PMC", client.Name())
	assert.True(t, client.IsEnabled())
}
