// Package registries bündelt die Clients für die externen PID-Registries.
// Jeder Client besitzt seine eigenen Basis-URLs, Credentials und Timeouts;
// insbesondere teilen sich Suche und Resolve NICHT zwangsläufig denselben
// Host (SciCrunch trennt beides inklusive Auth).
package registries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"pid-hub/models"
)

// ErrSearchUnsupported signalisiert, dass eine Registry (in dieser
// Konfiguration) keine Suche anbietet.
var ErrSearchUnsupported = errors.New("registry does not support search")

// Timeout-Paare: Connect kurz, Read länger, um langsame Upstreams zu tolerieren.
const (
	connectTimeout     = 5 * time.Second
	searchReadTimeout  = 20 * time.Second
	resolveReadTimeout = 15 * time.Second
)

// Client ist die Mindestfähigkeit jeder Registry: einen normalisierten
// Identifier zu Metadaten auflösen.
type Client interface {
	// Name gibt den eindeutigen Namen der Registry zurück (z.B. "ror").
	Name() string

	// Scheme gibt das Identifier-Schema an, das diese Registry bedient.
	Scheme() models.Scheme

	// Resolve löst einen Identifier zu Metadaten auf. Fehlerbild:
	// NotFoundError, InvalidIdentifierError oder UpstreamError.
	Resolve(ctx context.Context, ident models.NormalizedIdentifier) (*models.ResolvedMetadata, error)
}

// Searcher ist die optionale Suchfähigkeit. Suchergebnisse werden nie
// gecacht.
type Searcher interface {
	Search(ctx context.Context, query string, filters map[string]string) ([]models.Candidate, error)
}

// NewHTTPClient baut einen http.Client mit explizitem Connect/Read-Timeout-Paar.
func NewHTTPClient(connect, read time.Duration) *http.Client {
	return &http.Client{
		Timeout: read,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout: connect,
		},
	}
}

// NewSearchClient liefert den Standard-Client für Suchanfragen (5s/20s).
func NewSearchClient() *http.Client {
	return NewHTTPClient(connectTimeout, searchReadTimeout)
}

// NewResolveClient liefert den Standard-Client für Resolve-Anfragen (5s/15s).
func NewResolveClient() *http.Client {
	return NewHTTPClient(connectTimeout, resolveReadTimeout)
}

// RedactedHeaders liefert eine log-sichere Kopie der Header: alles, was nach
// Credentials aussieht, wird maskiert. Für Diagnose-Logging zu verwenden,
// API-Keys dürfen nie im Log landen.
func RedactedHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name := range h {
		switch http.CanonicalHeaderKey(name) {
		case "Authorization", "Apikey", "Api-Key", "X-Api-Key", "Cookie":
			out[name] = "***"
		default:
			out[name] = h.Get(name)
		}
	}
	return out
}

// TransportError übersetzt Transportfehler (Timeout, DNS, Connection Refused)
// in einen retrybaren UpstreamError. Timeouts werden nie stillschweigend
// verschluckt.
func TransportError(registry string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.UpstreamError{Registry: registry, Retryable: true, Err: fmt.Errorf("timeout: %w", err)}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.UpstreamError{Registry: registry, Retryable: true, Err: err}
	}
	return models.UpstreamError{Registry: registry, Retryable: true, Err: err}
}

// StatusError mappt einen Nicht-200-Status auf die Fehler-Taxonomie:
// 5xx -> UpstreamError (retryable), 404/410 -> NotFoundError,
// 400/422 -> InvalidIdentifierError, übrige 4xx -> NotFoundError.
func StatusError(registry string, scheme models.Scheme, canonicalURL string, status int) error {
	switch {
	case status >= 500:
		return models.UpstreamError{Registry: registry, Status: status, Retryable: true}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return models.InvalidIdentifierError{Scheme: scheme, Reason: fmt.Sprintf("%s rejected the identifier (status %d)", registry, status)}
	case status >= 400:
		return models.NotFoundError{Scheme: scheme, CanonicalURL: canonicalURL}
	}
	return models.UpstreamError{Registry: registry, Status: status, Retryable: false}
}

// DecodeJSON liest den Body und dekodiert ihn; Dekodierfehler gelten als
// Upstream-Problem (kaputte Antwort), nicht als Nutzerfehler.
func DecodeJSON(registry string, body io.Reader, v any) error {
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return models.UpstreamError{Registry: registry, Retryable: false, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}
