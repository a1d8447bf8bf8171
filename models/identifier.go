package models

import "time"

// Scheme bezeichnet das Identifier-Schema (ORCID, ROR, RRID, CSTR, DOI, Handle).
type Scheme string

const (
	SchemeORCID  Scheme = "orcid"
	SchemeROR    Scheme = "ror"
	SchemeRRID   Scheme = "rrid"
	SchemeCSTR   Scheme = "cstr"
	SchemeDOI    Scheme = "doi"
	SchemeHandle Scheme = "handle"
)

// AllSchemes listet alle unterstützten Schemata in stabiler Reihenfolge.
func AllSchemes() []Scheme {
	return []Scheme{SchemeORCID, SchemeROR, SchemeRRID, SchemeCSTR, SchemeDOI, SchemeHandle}
}

// Valid prüft, ob das Schema bekannt ist.
func (s Scheme) Valid() bool {
	switch s {
	case SchemeORCID, SchemeROR, SchemeRRID, SchemeCSTR, SchemeDOI, SchemeHandle:
		return true
	}
	return false
}

// NormalizedIdentifier ist ein unveränderlicher Wert: ein erfolgreich
// normalisierter Identifier. CanonicalURL ist immer eine voll qualifizierte,
// auflösbare URL (z.B. https://ror.org/0456r8d26), nie ein nackter Code.
type NormalizedIdentifier struct {
	Scheme       Scheme `json:"scheme"`
	RawValue     string `json:"raw_value"`
	CanonicalURL string `json:"canonical_url"`
}

// Candidate ist ein einzelner Suchtreffer eines Registry-Clients.
// Suchergebnisse werden nie gecacht.
type Candidate struct {
	Scheme       Scheme         `json:"scheme"`
	ID           string         `json:"id"`
	CanonicalURL string         `json:"canonical_url"`
	DisplayName  string         `json:"display_name"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// ResolvedMetadata ist der gecachte Payload eines erfolgreichen Resolve.
// Gehört exklusiv dem Resolution-Cache; ein fehlgeschlagener Refresh
// lässt den alten Wert unangetastet.
type ResolvedMetadata struct {
	Identifier     NormalizedIdentifier `json:"identifier"`
	DisplayName    string               `json:"display_name"`
	ProperCitation string               `json:"proper_citation,omitempty"`
	Extra          map[string]any       `json:"extra,omitempty"`
	ResolvedAt     time.Time            `json:"resolved_at"`
}
