// Package crossref enthält den DOI-Client gegen die Crossref-REST-API.
package crossref

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

// Client implementiert Suche und Resolve gegen api.crossref.org.
type Client struct {
	Config *config.Config
	Logger *zap.Logger

	searchHTTP  *http.Client
	resolveHTTP *http.Client
}

// NewClient erstellt einen neuen Crossref-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:      cfg,
		Logger:      logger,
		searchHTTP:  registries.NewSearchClient(),
		resolveHTTP: registries.NewResolveClient(),
	}
}

func (c *Client) Name() string          { return "doi" }
func (c *Client) Scheme() models.Scheme { return models.SchemeDOI }

// Search führt eine bibliografische Suche über /works aus.
func (c *Client) Search(ctx context.Context, query string, filters map[string]string) ([]models.Candidate, error) {
	log := c.Logger.With(zap.String("registry", "doi"), zap.String("query", query))

	params := url.Values{}
	params.Set("query.bibliographic", query)
	params.Set("rows", "20")
	// Crossref-Filtersyntax, z.B. type:journal-article,from-pub-date:2020-01-01
	if v, ok := filters["filter"]; ok && v != "" {
		params.Set("filter", v)
	}
	if c.Config.CrossrefMailto != "" {
		// "Polite pool": Kontaktadresse beschleunigt die Anfragen.
		params.Set("mailto", c.Config.CrossrefMailto)
	}

	searchURL := fmt.Sprintf("%s/works?%s", c.Config.CrossrefBaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.searchHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("doi", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("doi", models.SchemeDOI, "", resp.StatusCode)
	}

	var sr worksResponse
	if err := registries.DecodeJSON("doi", resp.Body, &sr); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(sr.Message.Items))
	for _, w := range sr.Message.Items {
		doi := strings.ToLower(w.DOI)
		candidates = append(candidates, models.Candidate{
			Scheme:       models.SchemeDOI,
			ID:           doi,
			CanonicalURL: "https://doi.org/" + doi,
			DisplayName:  firstOrEmpty(w.Title),
			Extra: map[string]any{
				"journal": firstOrEmpty(w.ContainerTitle),
				"year":    w.issuedYear(),
			},
		})
	}
	log.Info("Crossref-Suche abgeschlossen", zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// Resolve holt die Werk-Metadaten zu einer DOI.
func (c *Client) Resolve(ctx context.Context, ident models.NormalizedIdentifier) (*models.ResolvedMetadata, error) {
	doi := strings.TrimPrefix(ident.CanonicalURL, "https://doi.org/")
	log := c.Logger.With(zap.String("registry", "doi"), zap.String("doi", doi))

	resolveURL := fmt.Sprintf("%s/works/%s", c.Config.CrossrefBaseURL, url.PathEscape(doi))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.resolveHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("doi", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("doi", models.SchemeDOI, ident.CanonicalURL, resp.StatusCode)
	}

	var wr workResponse
	if err := registries.DecodeJSON("doi", resp.Body, &wr); err != nil {
		return nil, err
	}

	w := wr.Message
	title := firstOrEmpty(w.Title)
	log.Debug("DOI aufgelöst", zap.String("title", title))

	return &models.ResolvedMetadata{
		Identifier:     ident,
		DisplayName:    title,
		ProperCitation: formatCitation(&w),
		Extra: map[string]any{
			"journal": firstOrEmpty(w.ContainerTitle),
			"year":    w.issuedYear(),
			"type":    w.Type,
		},
		ResolvedAt: time.Now().UTC(),
	}, nil
}

// formatCitation baut eine einfache Zitierzeile "Autoren (Jahr). Titel. Journal. URL".
func formatCitation(w *work) string {
	var parts []string

	var authors []string
	for i, a := range w.Author {
		if i >= 3 {
			authors = append(authors, "et al.")
			break
		}
		authors = append(authors, strings.TrimSpace(a.Family+" "+a.Given))
	}
	if len(authors) > 0 {
		parts = append(parts, strings.Join(authors, ", "))
	}
	if y := w.issuedYear(); y != 0 {
		parts = append(parts, fmt.Sprintf("(%d)", y))
	}
	if t := firstOrEmpty(w.Title); t != "" {
		parts = append(parts, t+".")
	}
	if j := firstOrEmpty(w.ContainerTitle); j != "" {
		parts = append(parts, j+".")
	}
	parts = append(parts, "https://doi.org/"+strings.ToLower(w.DOI))
	return strings.Join(parts, " ")
}

func firstOrEmpty(vals []string) string {
	if len(vals) > 0 {
		return vals[0]
	}
	return ""
}
