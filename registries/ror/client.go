// Package ror enthält den Client für die ROR-API (Research Organization Registry).
package ror

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"pid-hub/config"
	"pid-hub/models"
	"pid-hub/registries"
)

// Client implementiert Suche und Resolve gegen api.ror.org. Die ROR-API ist
// offen, keine Credentials nötig.
type Client struct {
	Config *config.Config
	Logger *zap.Logger

	searchHTTP  *http.Client
	resolveHTTP *http.Client
}

// NewClient erstellt einen neuen ROR-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:      cfg,
		Logger:      logger,
		searchHTTP:  registries.NewSearchClient(),
		resolveHTTP: registries.NewResolveClient(),
	}
}

func (c *Client) Name() string          { return "ror" }
func (c *Client) Scheme() models.Scheme { return models.SchemeROR }

// Search sucht Organisationen über den query-Parameter der ROR-API.
func (c *Client) Search(ctx context.Context, query string, filters map[string]string) ([]models.Candidate, error) {
	log := c.Logger.With(zap.String("registry", "ror"), zap.String("query", query))

	params := url.Values{}
	params.Set("query", query)
	// ROR unterstützt Filter wie types:funder oder country.country_code:DE.
	if v, ok := filters["filter"]; ok && v != "" {
		params.Set("filter", v)
	}

	searchURL := fmt.Sprintf("%s/organizations?%s", c.Config.RorBaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.searchHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("ror", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("ror", models.SchemeROR, "", resp.StatusCode)
	}

	var sr searchResponse
	if err := registries.DecodeJSON("ror", resp.Body, &sr); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(sr.Items))
	for _, org := range sr.Items {
		candidates = append(candidates, orgToCandidate(&org))
	}
	log.Info("ROR-Suche abgeschlossen", zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// Resolve holt den Organisations-Record zu einer ROR-ID.
func (c *Client) Resolve(ctx context.Context, ident models.NormalizedIdentifier) (*models.ResolvedMetadata, error) {
	id := strings.TrimPrefix(ident.CanonicalURL, "https://ror.org/")
	log := c.Logger.With(zap.String("registry", "ror"), zap.String("ror_id", id))

	resolveURL := fmt.Sprintf("%s/organizations/%s", c.Config.RorBaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.resolveHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("ror", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("ror", models.SchemeROR, ident.CanonicalURL, resp.StatusCode)
	}

	var org organization
	if err := registries.DecodeJSON("ror", resp.Body, &org); err != nil {
		return nil, err
	}

	cand := orgToCandidate(&org)
	log.Debug("ROR-Record aufgelöst", zap.String("name", cand.DisplayName))
	return &models.ResolvedMetadata{
		Identifier:  ident,
		DisplayName: cand.DisplayName,
		Extra:       cand.Extra,
		ResolvedAt:  time.Now().UTC(),
	}, nil
}

// orgToCandidate wählt den Display-Namen (Typ ror_display, sonst erster) und
// sammelt Zusatzinfos ein.
func orgToCandidate(org *organization) models.Candidate {
	name := ""
	for _, n := range org.Names {
		for _, t := range n.Types {
			if t == "ror_display" {
				name = n.Value
			}
		}
	}
	if name == "" && len(org.Names) > 0 {
		name = org.Names[0].Value
	}

	extra := map[string]any{}
	if len(org.Types) > 0 {
		extra["types"] = org.Types
	}
	if len(org.Locations) > 0 && org.Locations[0].GeonamesDetails.CountryName != "" {
		extra["country"] = org.Locations[0].GeonamesDetails.CountryName
	}

	return models.Candidate{
		Scheme:       models.SchemeROR,
		ID:           strings.TrimPrefix(org.ID, "https://ror.org/"),
		CanonicalURL: org.ID,
		DisplayName:  name,
		Extra:        extra,
	}
}
