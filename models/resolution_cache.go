package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ResolutionCacheEntry ist eine Zeile des persistenten Resolution-Caches,
// geschlüsselt über die kanonische URL. Der Cache liegt in derselben
// Datenbank wie der Association-Store und überlebt damit Prozess-Neustarts;
// alle App-Instanzen sehen denselben Stand.
type ResolutionCacheEntry struct {
	CanonicalURL   string `json:"canonical_url" gorm:"primaryKey;size:512"`
	Scheme         Scheme `json:"scheme" gorm:"size:16"`
	RawValue       string `json:"raw_value"`
	DisplayName    string `json:"display_name"`
	ProperCitation string `json:"proper_citation,omitempty" gorm:"type:text"`

	// Registry-spezifischer Rest-Payload als JSON.
	Extra datatypes.JSON `json:"extra,omitempty" gorm:"type:jsonb"`

	ResolvedAt time.Time `json:"resolved_at" gorm:"index;not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (ResolutionCacheEntry) TableName() string { return "resolution_cache" }

// Metadata wandelt die Cache-Zeile in das API-Modell zurück. Ein kaputter
// Extra-Payload macht die Zeile nicht unbrauchbar: die Metadaten kommen ohne
// Extra zurück, der Fehler wird gemeldet.
func (e *ResolutionCacheEntry) Metadata() (ResolvedMetadata, error) {
	md := ResolvedMetadata{
		Identifier: NormalizedIdentifier{
			Scheme:       e.Scheme,
			RawValue:     e.RawValue,
			CanonicalURL: e.CanonicalURL,
		},
		DisplayName:    e.DisplayName,
		ProperCitation: e.ProperCitation,
		ResolvedAt:     e.ResolvedAt,
	}
	if len(e.Extra) > 0 {
		if err := json.Unmarshal(e.Extra, &md.Extra); err != nil {
			return md, fmt.Errorf("corrupt extra payload for %s: %w", e.CanonicalURL, err)
		}
	}
	return md, nil
}

// NewCacheEntry baut aus aufgelösten Metadaten eine Cache-Zeile.
func NewCacheEntry(md *ResolvedMetadata) (*ResolutionCacheEntry, error) {
	entry := &ResolutionCacheEntry{
		CanonicalURL:   md.Identifier.CanonicalURL,
		Scheme:         md.Identifier.Scheme,
		RawValue:       md.Identifier.RawValue,
		DisplayName:    md.DisplayName,
		ProperCitation: md.ProperCitation,
		ResolvedAt:     md.ResolvedAt,
	}
	if len(md.Extra) > 0 {
		b, err := json.Marshal(md.Extra)
		if err != nil {
			return nil, err
		}
		entry.Extra = b
	}
	return entry, nil
}
