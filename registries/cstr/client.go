// Package cstr enthält den Client für die CSTR-OpenAPI (Common Science and
// Technology Resources, cstr.cn).
package cstr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"pid-hub/config"
	"pid-hub/models"
	"pid-hub/registries"
)

// Client implementiert Suche und Resolve gegen die CSTR-OpenAPI.
type Client struct {
	Config *config.Config
	Logger *zap.Logger

	searchHTTP  *http.Client
	resolveHTTP *http.Client
}

// detailResponse ist der relevante Ausschnitt von GET /detail.
type detailResponse struct {
	Code int `json:"code"`
	Data struct {
		Identifier string `json:"identifier"`
		Title      string `json:"title"`
		Name       string `json:"name"`
	} `json:"data"`
}

// queryResponse ist der relevante Ausschnitt von GET /query.
type queryResponse struct {
	Code int `json:"code"`
	Data struct {
		Records []struct {
			Identifier string `json:"identifier"`
			Title      string `json:"title"`
		} `json:"records"`
	} `json:"data"`
}

// NewClient erstellt einen neuen CSTR-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:      cfg,
		Logger:      logger,
		searchHTTP:  registries.NewSearchClient(),
		resolveHTTP: registries.NewResolveClient(),
	}
}

func (c *Client) Name() string          { return "cstr" }
func (c *Client) Scheme() models.Scheme { return models.SchemeCSTR }

// Search sucht CSTR-Ressourcen per Keyword.
func (c *Client) Search(ctx context.Context, query string, filters map[string]string) ([]models.Candidate, error) {
	log := c.Logger.With(zap.String("registry", "cstr"), zap.String("query", query))

	params := url.Values{}
	params.Set("keyword", query)
	if v, ok := filters["type"]; ok && v != "" {
		params.Set("type", v)
	}

	searchURL := fmt.Sprintf("%s/query?%s", c.Config.CstrBaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	c.injectKey(req)

	resp, err := c.searchHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("cstr", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("cstr", models.SchemeCSTR, "", resp.StatusCode)
	}

	var qr queryResponse
	if err := registries.DecodeJSON("cstr", resp.Body, &qr); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(qr.Data.Records))
	for _, rec := range qr.Data.Records {
		candidates = append(candidates, models.Candidate{
			Scheme:       models.SchemeCSTR,
			ID:           rec.Identifier,
			CanonicalURL: "https://www.cstr.cn/detail?identifier=" + rec.Identifier,
			DisplayName:  rec.Title,
		})
	}
	log.Info("CSTR-Suche abgeschlossen", zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// Resolve holt den Detail-Record zu einem CSTR-Code.
func (c *Client) Resolve(ctx context.Context, ident models.NormalizedIdentifier) (*models.ResolvedMetadata, error) {
	u, err := url.Parse(ident.CanonicalURL)
	if err != nil {
		return nil, models.InvalidIdentifierError{Scheme: models.SchemeCSTR, Reason: "unparseable canonical URL"}
	}
	code := u.Query().Get("identifier")
	log := c.Logger.With(zap.String("registry", "cstr"), zap.String("cstr", code))

	resolveURL := fmt.Sprintf("%s/detail?identifier=%s", c.Config.CstrBaseURL, url.QueryEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	if err != nil {
		return nil, err
	}
	c.injectKey(req)
	log.Debug("Rufe CSTR-Detail ab", zap.Any("headers", registries.RedactedHeaders(req.Header)))

	resp, err := c.resolveHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("cstr", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("cstr", models.SchemeCSTR, ident.CanonicalURL, resp.StatusCode)
	}

	var dr detailResponse
	if err := registries.DecodeJSON("cstr", resp.Body, &dr); err != nil {
		return nil, err
	}
	name := dr.Data.Title
	if name == "" {
		name = dr.Data.Name
	}
	if name == "" {
		return nil, models.NotFoundError{Scheme: models.SchemeCSTR, CanonicalURL: ident.CanonicalURL}
	}

	return &models.ResolvedMetadata{
		Identifier:  ident,
		DisplayName: name,
		ResolvedAt:  time.Now().UTC(),
	}, nil
}

// injectKey setzt den API-Key-Header, falls konfiguriert. Credentials bleiben
// im Client, Aufrufer und Logs sehen sie nicht.
func (c *Client) injectKey(req *http.Request) {
	if c.Config.CstrAPIKey != "" {
		req.Header.Set("apikey", c.Config.CstrAPIKey)
	}
}
