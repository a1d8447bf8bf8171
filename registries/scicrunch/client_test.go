package scicrunch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pid-hub/config"
	"pid-hub/models"
)

const hitBody = `{
	"hits": {
		"hits": [
			{
				"_source": {
					"item": {"name": "ImageJ", "description": "Image analysis software", "curie": "RRID:SCR_003070"},
					"rrid": {"curie": "RRID:SCR_003070", "properCitation": "(ImageJ, RRID:SCR_003070)"}
				}
			}
		]
	}
}`

func TestSearchExactRRIDUsesTermQuery(t *testing.T) {
	var gotBody map[string]any
	var gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Exakte Lookups müssen als strukturierte Query kommen, nie als
		// interpolierter Freitext
		assert.Equal(t, http.MethodPost, r.Method)
		gotAPIKey = r.Header.Get("apikey")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(hitBody))
	}))
	defer server.Close()

	client := NewClient(&config.Config{
		ScicrunchSearchBaseURL: server.URL,
		ScicrunchAPIKey:        "test-key",
	}, zap.NewNop())

	candidates, err := client.Search(context.Background(), "RRID:SCR_003070", nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	assert.Equal(t, "test-key", gotAPIKey)
	require.Contains(t, gotBody, "query")
	query := gotBody["query"].(map[string]any)
	term := query["term"].(map[string]any)
	assert.Equal(t, "RRID:SCR_003070", term["rrid.curie"])

	assert.Equal(t, "RRID:SCR_003070", candidates[0].ID)
	assert.Equal(t, "https://scicrunch.org/resolver/RRID:SCR_003070", candidates[0].CanonicalURL)
	assert.Equal(t, "ImageJ", candidates[0].DisplayName)
}

func TestSearchFreeTextUsesQueryParam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "image analysis", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("size"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(hitBody))
	}))
	defer server.Close()

	client := NewClient(&config.Config{ScicrunchSearchBaseURL: server.URL}, zap.NewNop())

	candidates, err := client.Search(context.Background(), "image analysis", map[string]string{"size": "5"})
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestResolveParsesResolverResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Die API-Variante des Resolvers hängt .json an die Display-URL an
		assert.Equal(t, "/RRID:SCR_003070.json", r.URL.Path)
		assert.Empty(t, r.Header.Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(hitBody))
	}))
	defer server.Close()

	client := NewClient(&config.Config{
		ScicrunchResolverBaseURL: server.URL,
		ScicrunchAPIKey:          "test-key",
	}, zap.NewNop())

	ident := models.NormalizedIdentifier{
		Scheme:       models.SchemeRRID,
		RawValue:     "RRID:SCR_003070",
		CanonicalURL: "https://scicrunch.org/resolver/RRID:SCR_003070",
	}

	md, err := client.Resolve(context.Background(), ident)
	require.NoError(t, err)
	assert.Equal(t, "ImageJ", md.DisplayName)
	assert.Equal(t, "(ImageJ, RRID:SCR_003070)", md.ProperCitation)
	assert.Equal(t, "Image analysis software", md.Extra["description"])
}

func TestResolveEmptyHitsIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hits": {"hits": []}}`))
	}))
	defer server.Close()

	client := NewClient(&config.Config{ScicrunchResolverBaseURL: server.URL}, zap.NewNop())
	ident := models.NormalizedIdentifier{
		Scheme:       models.SchemeRRID,
		CanonicalURL: "https://scicrunch.org/resolver/RRID:SCR_999999",
	}

	_, err := client.Resolve(context.Background(), ident)
	var notFoundErr models.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}
