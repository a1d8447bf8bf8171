// Package handle enthält den Client für das Handle-System (hdl.handle.net)
// sowie die optionale Suche über eine CORDRA-Instanz.
package handle

import (
	"context"
	"encoding/json"
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

// Client implementiert Resolve über die Handle-HTTP-API. Suche gibt es nur,
// wenn eine CORDRA-Basis-URL konfiguriert ist; die globale Handle-Registry
// selbst ist nicht durchsuchbar.
type Client struct {
	Config *config.Config
	Logger *zap.Logger

	searchHTTP  *http.Client
	resolveHTTP *http.Client
}

// handleResponse ist die Antwort von GET /handles/{handle}.
type handleResponse struct {
	ResponseCode int    `json:"responseCode"`
	Handle       string `json:"handle"`
	Values       []struct {
		Type string `json:"type"`
		Data struct {
			Format string          `json:"format"`
			Value  json.RawMessage `json:"value"`
		} `json:"data"`
	} `json:"values"`
}

// cordraResponse ist der relevante Ausschnitt der CORDRA-Suche.
type cordraResponse struct {
	Results []struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Content struct {
			Name string `json:"name"`
		} `json:"content"`
	} `json:"results"`
}

// NewClient erstellt einen neuen Handle-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Config:      cfg,
		Logger:      logger,
		searchHTTP:  registries.NewSearchClient(),
		resolveHTTP: registries.NewResolveClient(),
	}
}

func (c *Client) Name() string          { return "handle" }
func (c *Client) Scheme() models.Scheme { return models.SchemeHandle }

// CanSearch meldet, ob eine CORDRA-Instanz für die Suche konfiguriert ist.
func (c *Client) CanSearch() bool { return c.Config.CordraBaseURL != "" }

// Search sucht digitale Objekte in der konfigurierten CORDRA-Instanz.
func (c *Client) Search(ctx context.Context, query string, filters map[string]string) ([]models.Candidate, error) {
	if !c.CanSearch() {
		return nil, registries.ErrSearchUnsupported
	}
	log := c.Logger.With(zap.String("registry", "handle"), zap.String("query", query))

	params := url.Values{}
	params.Set("query", query)
	params.Set("pageSize", "20")

	searchURL := fmt.Sprintf("%s/search?%s", c.Config.CordraBaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.searchHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("handle", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("handle", models.SchemeHandle, "", resp.StatusCode)
	}

	var cr cordraResponse
	if err := registries.DecodeJSON("handle", resp.Body, &cr); err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, len(cr.Results))
	for _, r := range cr.Results {
		candidates = append(candidates, models.Candidate{
			Scheme:       models.SchemeHandle,
			ID:           r.ID,
			CanonicalURL: "https://hdl.handle.net/" + r.ID,
			DisplayName:  r.Content.Name,
			Extra:        map[string]any{"type": r.Type},
		})
	}
	log.Info("CORDRA-Suche abgeschlossen", zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// Resolve löst ein Handle über die Handle-HTTP-API auf.
func (c *Client) Resolve(ctx context.Context, ident models.NormalizedIdentifier) (*models.ResolvedMetadata, error) {
	hdl := strings.TrimPrefix(ident.CanonicalURL, "https://hdl.handle.net/")
	log := c.Logger.With(zap.String("registry", "handle"), zap.String("handle", hdl))

	resolveURL := fmt.Sprintf("%s/handles/%s", c.Config.HandleBaseURL, hdl)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.resolveHTTP.Do(req)
	if err != nil {
		return nil, registries.TransportError("handle", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, registries.StatusError("handle", models.SchemeHandle, ident.CanonicalURL, resp.StatusCode)
	}

	var hr handleResponse
	if err := registries.DecodeJSON("handle", resp.Body, &hr); err != nil {
		return nil, err
	}
	// responseCode 1 = Erfolg, 100 = Handle unbekannt.
	if hr.ResponseCode != 1 {
		return nil, models.NotFoundError{Scheme: models.SchemeHandle, CanonicalURL: ident.CanonicalURL}
	}

	var desc, target string
	for _, v := range hr.Values {
		var s string
		if json.Unmarshal(v.Data.Value, &s) != nil {
			continue
		}
		switch strings.ToUpper(v.Type) {
		case "DESC", "TITLE":
			if desc == "" {
				desc = s
			}
		case "URL":
			if target == "" {
				target = s
			}
		}
	}
	if desc == "" {
		desc = hdl
	}

	extra := map[string]any{}
	if target != "" {
		extra["url"] = target
	}

	log.Debug("Handle aufgelöst", zap.String("target", target))
	return &models.ResolvedMetadata{
		Identifier:  ident,
		DisplayName: desc,
		Extra:       extra,
		ResolvedAt:  time.Now().UTC(),
	}, nil
}
