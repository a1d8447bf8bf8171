package models

import (
	"errors"
	"fmt"
)

// ErrUnknownEntityKind wird zurückgegeben, wenn ein Entity-Kind nicht in der
// geschlossenen Allowlist steht.
var ErrUnknownEntityKind = errors.New("unknown entity kind")

// InvalidIdentifierError: Eingabe passt zu keinem bekannten Schema oder
// scheitert an der schemaspezifischen Strukturvalidierung. Vom Nutzer korrigierbar.
type InvalidIdentifierError struct {
	Scheme Scheme
	Reason string
}

func (e InvalidIdentifierError) Error() string {
	if e.Scheme == "" {
		return fmt.Sprintf("invalid identifier: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s identifier: %s", e.Scheme, e.Reason)
}

// EntityNotFoundError: die referenzierte Entität existiert nicht.
type EntityNotFoundError struct {
	Kind     EntityKind
	EntityID uint
}

func (e EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.EntityID)
}

// DuplicateAssociationError: der Identifier hängt bereits an dieser Entität.
// Ein Konflikt (409), kein Validierungsfehler.
type DuplicateAssociationError struct {
	Kind         EntityKind
	EntityID     uint
	CanonicalURL string
}

func (e DuplicateAssociationError) Error() string {
	return fmt.Sprintf("identifier %s is already attached to %s %d", e.CanonicalURL, e.Kind, e.EntityID)
}

// NotFoundError: die Registry kennt den Identifier nicht (bzw. eine
// Association-ID existiert nicht).
type NotFoundError struct {
	Scheme       Scheme
	CanonicalURL string
}

func (e NotFoundError) Error() string {
	if e.CanonicalURL == "" {
		return "not found"
	}
	return fmt.Sprintf("%s: no record for %s", e.Scheme, e.CanonicalURL)
}

// UpstreamError: Registry nicht erreichbar, Timeout oder 5xx.
type UpstreamError struct {
	Registry  string
	Status    int
	Retryable bool
	Err       error
}

func (e UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registry %s unavailable: %v", e.Registry, e.Err)
	}
	return fmt.Sprintf("registry %s unavailable: status %d", e.Registry, e.Status)
}

func (e UpstreamError) Unwrap() error { return e.Err }
