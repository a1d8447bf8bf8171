package models

import "time"

// IdentifierAssociation verknüpft einen externen Identifier mit genau einer
// internen Entität. EntityID ist bewusst KEIN Fremdschlüssel: je nach
// EntityKind zeigt er auf eine andere Tabelle. Referentielle Integrität
// stellt ausschließlich der Coordinator sicher (Existenzprüfung beim Attach,
// expliziter Cleanup beim Löschen der Entität).
type IdentifierAssociation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EntityKind   EntityKind `json:"entity_kind" gorm:"index:idx_assoc_entity_identifier,unique;size:32;not null"`
	EntityID     uint       `json:"entity_id" gorm:"index:idx_assoc_entity_identifier,unique;not null"`
	CanonicalURL string     `json:"canonical_url" gorm:"column:canonical_url;index:idx_assoc_entity_identifier,unique;size:512;not null"`

	Scheme   Scheme `json:"scheme" gorm:"size:16;index"`
	RawValue string `json:"raw_value"`

	// Wird beim Attach best-effort gefüllt und später aus dem Cache
	// nachgezogen, falls der Resolve erst danach gelingt.
	CachedDisplayName string `json:"cached_display_name,omitempty"`

	AttachedAt time.Time `json:"attached_at"`
	AttachedBy *uint     `json:"attached_by,omitempty"`
}

func (IdentifierAssociation) TableName() string { return "identifier_associations" }

// Identifier rekonstruiert den normalisierten Identifier aus der Zeile.
func (a *IdentifierAssociation) Identifier() NormalizedIdentifier {
	return NormalizedIdentifier{Scheme: a.Scheme, RawValue: a.RawValue, CanonicalURL: a.CanonicalURL}
}
