// Package scicrunch enthält den RRID-Client. Besonderheit dieser Registry:
// Suche (api.scicrunch.io, braucht API-Key) und Resolve (scicrunch.org/resolver,
// offen) laufen über verschiedene Hosts mit unterschiedlicher Auth. Die beiden
// Basis-URLs dürfen deshalb nie zusammengelegt werden.
package scicrunch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"pid-hub/config"
	"pid-hub/models"
	"pid-hub/registries"
)

var exactRRID = regexp.MustCompile(`^(RRID:)?(SCR_\d{6,9}|AB_\d{6,9}|CVCL_[A-Z0-9]{4,6})$`)

// Client implementiert Suche und Resolve für RRIDs.
type Client struct {
	Config *config.Config
	Logger *zap.Logger

	searchHTTP  *http.Client
	resolveHTTP *http.Client
}

// NewClient erstellt einen neuen SciCrunch-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:      cfg,
		Logger:      logger,
		searchHTTP:  registries.NewSearchClient(),
		resolveHTTP: registries.NewResolveClient(),
	}
}

func (c *Client) Name() string          { return "rrid" }
func (c *Client) Scheme() models.Scheme { return models.SchemeRRID }

// Search sucht im SciCrunch-Elastic-Index. Exakte RRID-Lookups gehen als
// strukturierte Term-Query raus, nie als interpolierter Freitext: der
// Doppelpunkt in "RRID:SCR_..." ist in der Query-Syntax reserviert und
// würde sonst stillschweigend leere Treffer liefern.
func (c *Client) Search(ctx context.Context, query string, filters map[string]string) ([]models.Candidate, error) {
	log := c.Logger.With(zap.String("registry", "rrid"), zap.String("query", query))

	searchURL := fmt.Sprintf("%s/RIN_Tool_pr/_search", c.Config.ScicrunchSearchBaseURL)

	var req *http.Request
	var err error
	if m := exactRRID.FindStringSubmatch(strings.TrimSpace(query)); m != nil {
		body, merr := json.Marshal(map[string]any{
			"query": map[string]any{
				"term": map[string]any{"rrid.curie": "RRID:" + m[2]},
			},
		})
		if merr != nil {
			return nil, merr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		params := url.Values{}
		params.Set("q", query)
		size := "20"
		if v, ok := filters["size"]; ok && v != "" {
			size = v
		}
		params.Set("size", size)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, err
	}

	// Credential-Injektion passiert nur hier im Client, nie beim Aufrufer.
	if c.Config.ScicrunchAPIKey != "" {
		req.Header.Set("apikey", c.Config.ScicrunchAPIKey)
	}
	log.Debug("Rufe SciCrunch-Suche auf", zap.Any("headers", registries.RedactedHeaders(req.Header)))

	resp, err := c.searchHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("rrid", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("rrid", models.SchemeRRID, "", resp.StatusCode)
	}

	var sr searchResponse
	if err := registries.DecodeJSON("rrid", resp.Body, &sr); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		curie := hit.Source.RRID.Curie
		if curie == "" {
			curie = hit.Source.Item.Curie
		}
		candidates = append(candidates, models.Candidate{
			Scheme:       models.SchemeRRID,
			ID:           curie,
			CanonicalURL: "https://scicrunch.org/resolver/" + curie,
			DisplayName:  hit.Source.Item.Name,
			Extra:        map[string]any{"description": hit.Source.Item.Description},
		})
	}
	log.Info("SciCrunch-Suche abgeschlossen", zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// Resolve löst eine RRID über den offenen Resolver auf. Die API-Variante
// hängt ".json" an die Display-URL an.
func (c *Client) Resolve(ctx context.Context, ident models.NormalizedIdentifier) (*models.ResolvedMetadata, error) {
	curie := strings.TrimPrefix(ident.CanonicalURL, "https://scicrunch.org/resolver/")
	log := c.Logger.With(zap.String("registry", "rrid"), zap.String("curie", curie))

	resolveURL := fmt.Sprintf("%s/%s.json", c.Config.ScicrunchResolverBaseURL, curie)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.resolveHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("rrid", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("rrid", models.SchemeRRID, ident.CanonicalURL, resp.StatusCode)
	}

	var rr resolverResponse
	if err := registries.DecodeJSON("rrid", resp.Body, &rr); err != nil {
		return nil, err
	}
	if len(rr.Hits.Hits) == 0 {
		return nil, models.NotFoundError{Scheme: models.SchemeRRID, CanonicalURL: ident.CanonicalURL}
	}

	src := rr.Hits.Hits[0].Source
	citation := src.RRID.ProperCitation
	if citation == "" && src.Item.Name != "" {
		citation = fmt.Sprintf("(%s, %s)", src.Item.Name, curie)
	}

	log.Debug("RRID aufgelöst", zap.String("name", src.Item.Name))
	return &models.ResolvedMetadata{
		Identifier:     ident,
		DisplayName:    src.Item.Name,
		ProperCitation: citation,
		Extra:          map[string]any{"description": src.Item.Description},
		ResolvedAt:     time.Now().UTC(),
	}, nil
}
