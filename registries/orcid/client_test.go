package orcid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pid-hub/config"
	"pid-hub/models"
)

func TestResolvePrefersCreditName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0000-0002-1825-0097/personal-details", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"name": {
				"given-names": {"value": "Josiah"},
				"family-name": {"value": "Carberry"},
				"credit-name": {"value": "J. S. Carberry"}
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(&config.Config{OrcidBaseURL: server.URL}, zap.NewNop())
	ident := models.NormalizedIdentifier{
		Scheme:       models.SchemeORCID,
		RawValue:     "0000-0002-1825-0097",
		CanonicalURL: "https://orcid.org/0000-0002-1825-0097",
	}

	md, err := client.Resolve(context.Background(), ident)
	require.NoError(t, err)
	assert.Equal(t, "J. S. Carberry", md.DisplayName)
}

func TestResolveFallsBackToGivenAndFamilyName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"name": {
				"given-names": {"value": "Josiah"},
				"family-name": {"value": "Carberry"}
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(&config.Config{OrcidBaseURL: server.URL}, zap.NewNop())
	ident := models.NormalizedIdentifier{Scheme: models.SchemeORCID, CanonicalURL: "https://orcid.org/0000-0002-1825-0097"}

	md, err := client.Resolve(context.Background(), ident)
	require.NoError(t, err)
	assert.Equal(t, "Josiah Carberry", md.DisplayName)
}

func TestSearchParsesExpandedResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/expanded-search/", r.URL.Path)
		assert.Equal(t, "carberry", r.URL.Query().Get("q"))
		assert.Equal(t, "20", r.URL.Query().Get("rows"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"expanded-result": [
				{
					"orcid-id": "0000-0002-1825-0097",
					"given-names": "Josiah",
					"family-names": "Carberry",
					"institution-name": ["Brown University"]
				}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(&config.Config{OrcidBaseURL: server.URL}, zap.NewNop())

	candidates, err := client.Search(context.Background(), "carberry", nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	assert.Equal(t, "0000-0002-1825-0097", candidates[0].ID)
	assert.Equal(t, "https://orcid.org/0000-0002-1825-0097", candidates[0].CanonicalURL)
	assert.Equal(t, "Josiah Carberry", candidates[0].DisplayName)
	assert.Equal(t, []string{"Brown University"}, candidates[0].Extra["institutions"])
}
