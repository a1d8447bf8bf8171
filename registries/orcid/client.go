// Package orcid enthält den Client für die öffentliche ORCID-API.
package orcid

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

// Client implementiert Suche und Resolve gegen pub.orcid.org.
type Client struct {
	Config *config.Config
	Logger *zap.Logger

	searchHTTP  *http.Client
	resolveHTTP *http.Client
}

// NewClient erstellt einen neuen ORCID-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:      cfg,
		Logger:      logger,
		searchHTTP:  registries.NewSearchClient(),
		resolveHTTP: registries.NewResolveClient(),
	}
}

// Name gibt den Namen der Registry zurück.
func (c *Client) Name() string { return "orcid" }

// Scheme gibt das bediente Identifier-Schema zurück.
func (c *Client) Scheme() models.Scheme { return models.SchemeORCID }

// Search führt eine Expanded-Search auf der öffentlichen ORCID-API aus.
func (c *Client) Search(ctx context.Context, query string, filters map[string]string) ([]models.Candidate, error) {
	log := c.Logger.With(zap.String("registry", "orcid"), zap.String("query", query))
	log.Debug("Starte ORCID Expanded-Search.")

	params := url.Values{}
	params.Set("q", query)
	rows := "20"
	if v, ok := filters["rows"]; ok && v != "" {
		rows = v
	}
	params.Set("rows", rows)

	searchURL := fmt.Sprintf("%s/expanded-search/?%s", c.Config.OrcidBaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.searchHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("orcid", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("orcid", models.SchemeORCID, "", resp.StatusCode)
	}

	var sr searchResponse
	if err := registries.DecodeJSON("orcid", resp.Body, &sr); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(sr.ExpandedResult))
	for _, r := range sr.ExpandedResult {
		name := strings.TrimSpace(r.GivenNames + " " + r.FamilyNames)
		extra := map[string]any{}
		if len(r.InstitutionName) > 0 {
			extra["institutions"] = r.InstitutionName
		}
		candidates = append(candidates, models.Candidate{
			Scheme:       models.SchemeORCID,
			ID:           r.OrcidID,
			CanonicalURL: "https://orcid.org/" + r.OrcidID,
			DisplayName:  name,
			Extra:        extra,
		})
	}
	log.Info("ORCID-Suche abgeschlossen", zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// Resolve holt die Personendaten zu einer ORCID iD.
func (c *Client) Resolve(ctx context.Context, ident models.NormalizedIdentifier) (*models.ResolvedMetadata, error) {
	id := strings.TrimPrefix(ident.CanonicalURL, "https://orcid.org/")
	log := c.Logger.With(zap.String("registry", "orcid"), zap.String("orcid", id))

	resolveURL := fmt.Sprintf("%s/%s/personal-details", c.Config.OrcidBaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	log.Debug("Rufe ORCID Personal-Details ab", zap.Any("headers", registries.RedactedHeaders(req.Header)))

	resp, err := c.resolveHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("orcid", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("orcid", models.SchemeORCID, ident.CanonicalURL, resp.StatusCode)
	}

	var pd personalDetails
	if err := registries.DecodeJSON("orcid", resp.Body, &pd); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(pd.Name.GivenNames.Value + " " + pd.Name.FamilyName.Value)
	if pd.Name.CreditName.Value != "" {
		name = pd.Name.CreditName.Value
	}

	return &models.ResolvedMetadata{
		Identifier:  ident,
		DisplayName: name,
		Extra:       map[string]any{"path": id},
		ResolvedAt:  time.Now().UTC(),
	}, nil
}
