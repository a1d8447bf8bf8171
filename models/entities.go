package models

import "time"

// EntityKind bestimmt, auf welche Tabelle sich EntityID einer Association
// bezieht. Geschlossene Allowlist; alles andere wird abgelehnt.
type EntityKind string

const (
	EntityKindPublication  EntityKind = "publication"
	EntityKindOrganization EntityKind = "organization"
	EntityKindCreator      EntityKind = "creator"
	EntityKindFunder       EntityKind = "funder"
)

// Valid prüft das Kind gegen die Allowlist.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityKindPublication, EntityKindOrganization, EntityKindCreator, EntityKindFunder:
		return true
	}
	return false
}

// AllEntityKinds listet alle erlaubten Entity-Kinds.
func AllEntityKinds() []EntityKind {
	return []EntityKind{EntityKindPublication, EntityKindOrganization, EntityKindCreator, EntityKindFunder}
}

// Publication repräsentiert eine Publikation, an die Identifier gehängt werden können.
type Publication struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title    string     `json:"title" gorm:"not null"`
	Abstract string     `json:"abstract,omitempty" gorm:"type:text"`
	Year     int        `json:"year,omitempty"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
}

func (Publication) TableName() string { return "publications" }

// Creator repräsentiert eine Autorin/einen Autor.
type Creator struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string `json:"name" gorm:"not null"`
	Affiliation string `json:"affiliation,omitempty"`
}

func (Creator) TableName() string { return "creators" }

// Organization repräsentiert eine Forschungseinrichtung.
type Organization struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name    string `json:"name" gorm:"not null"`
	Country string `json:"country,omitempty"`
}

func (Organization) TableName() string { return "organizations" }

// Funder repräsentiert einen Fördergeber.
type Funder struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `json:"name" gorm:"not null"`
}

func (Funder) TableName() string { return "funders" }
