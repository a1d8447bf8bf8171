package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"pid-hub/models"
)

// EntityDirectory ist die Existenzprüfung für Entitäten; eine Implementierung
// pro Entity-Kind, im Normalfall gegen die CRUD-Tabellen.
type EntityDirectory interface {
	Exists(ctx context.Context, kind models.EntityKind, id uint) (bool, error)
}

// GormEntityDirectory prüft die Existenz direkt gegen die Entity-Tabellen.
type GormEntityDirectory struct {
	DB *gorm.DB
}

// Exists prüft, ob die Entität existiert.
func (d *GormEntityDirectory) Exists(ctx context.Context, kind models.EntityKind, id uint) (bool, error) {
	var model any
	switch kind {
	case models.EntityKindPublication:
		model = &models.Publication{}
	case models.EntityKindOrganization:
		model = &models.Organization{}
	case models.EntityKindCreator:
		model = &models.Creator{}
	case models.EntityKindFunder:
		model = &models.Funder{}
	default:
		return false, fmt.Errorf("%w: %q", models.ErrUnknownEntityKind, kind)
	}

	var count int64
	if err := d.DB.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AssociationCoordinator ist die einzige Komponente, die den
// Association-Store mutiert. Er erzwingt die Allowlist der Entity-Kinds,
// die Existenzprüfung und die Eindeutigkeit pro
// (entity_kind, entity_id, canonical_url).
type AssociationCoordinator struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Entities EntityDirectory
	Resolver *ResolverService
}

// NewAssociationCoordinator erstellt eine neue Instanz des Coordinators.
func NewAssociationCoordinator(db *gorm.DB, logger *zap.Logger, entities EntityDirectory, resolver *ResolverService) *AssociationCoordinator {
	return &AssociationCoordinator{DB: db, Logger: logger, Entities: entities, Resolver: resolver}
}

// Attach validiert, dedupliziert und persistiert eine neue Association.
// Ablauf: Kind-Allowlist -> Entity-Existenz -> Normalisierung ->
// Duplikatsprüfung -> best-effort Resolve -> Persistenz. Ein fehlgeschlagener
// Resolve blockiert das Attach nicht; die Zeile wird dann ohne Display-Namen
// angelegt und später aus dem Cache nachgefüllt.
func (c *AssociationCoordinator) Attach(ctx context.Context, kind models.EntityKind, entityID uint, rawIdentifier string, expected models.Scheme, attachedBy *uint) (*models.IdentifierAssociation, error) {
	log := c.Logger.With(zap.String("entity_kind", string(kind)), zap.Uint("entity_id", entityID))

	// 1. Geschlossene Allowlist: verhindert, dass beliebige Tabellen
	// referenziert werden.
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownEntityKind, kind)
	}

	// 2. Referenzierte Entität muss existieren; die DB kann das wegen der
	// polymorphen Referenz nicht selbst prüfen.
	exists, err := c.Entities.Exists(ctx, kind, entityID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.EntityNotFoundError{Kind: kind, EntityID: entityID}
	}

	// 3. Normalisieren.
	ident, err := Normalize(rawIdentifier, expected)
	if err != nil {
		return nil, err
	}

	// 4. Optimistische Duplikatsprüfung. Die eigentliche Garantie kommt vom
	// Unique-Index; bei einem Race fängt Schritt 6 den Verlierer ab.
	var existing models.IdentifierAssociation
	err = c.DB.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ? AND canonical_url = ?", kind, entityID, ident.CanonicalURL).
		First(&existing).Error
	if err == nil {
		return nil, models.DuplicateAssociationError{Kind: kind, EntityID: entityID, CanonicalURL: ident.CanonicalURL}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 5. Best-effort Resolve: Upstream-Fehler werden geloggt, nicht
	// weitergereicht. Das Attach muss auch ohne Enrichment durchgehen.
	displayName := ""
	if md, rerr := c.Resolver.ResolveIdentifier(ctx, ident); rerr != nil {
		log.Warn("Resolve beim Attach fehlgeschlagen, Association wird ohne Metadaten angelegt",
			zap.String("canonical_url", ident.CanonicalURL), zap.Error(rerr))
	} else {
		displayName = md.DisplayName
	}

	// 6. Persistieren. Der Unique-Index entscheidet Races; die Verletzung
	// wird als Konflikt übersetzt, nicht als interner Fehler.
	assoc := &models.IdentifierAssociation{
		EntityKind:        kind,
		EntityID:          entityID,
		CanonicalURL:      ident.CanonicalURL,
		Scheme:            ident.Scheme,
		RawValue:          ident.RawValue,
		CachedDisplayName: displayName,
		AttachedAt:        time.Now().UTC(),
		AttachedBy:        attachedBy,
	}
	if err := c.DB.WithContext(ctx).Create(assoc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.DuplicateAssociationError{Kind: kind, EntityID: entityID, CanonicalURL: ident.CanonicalURL}
		}
		return nil, err
	}

	log.Info("Identifier angehängt",
		zap.String("scheme", string(ident.Scheme)), zap.String("canonical_url", ident.CanonicalURL))
	return assoc, nil
}

// Detach löscht eine Association endgültig. Kein Soft-Delete: wer Audit
// braucht, muss selbst protokollieren.
func (c *AssociationCoordinator) Detach(ctx context.Context, associationID uint) error {
	res := c.DB.WithContext(ctx).Delete(&models.IdentifierAssociation{}, associationID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NotFoundError{}
	}
	c.Logger.Info("Association gelöst", zap.Uint("association_id", associationID))
	return nil
}

// ListForEntity listet alle Associations einer Entität. Zeilen ohne
// Display-Namen werden dabei aus dem Resolution-Cache nachgefüllt, falls der
// Resolve inzwischen gelungen ist (die einzige erlaubte In-Place-Mutation).
func (c *AssociationCoordinator) ListForEntity(ctx context.Context, kind models.EntityKind, entityID uint) ([]models.IdentifierAssociation, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownEntityKind, kind)
	}

	var assocs []models.IdentifierAssociation
	err := c.DB.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Order("attached_at asc").
		Find(&assocs).Error
	if err != nil {
		return nil, err
	}

	for i := range assocs {
		if assocs[i].CachedDisplayName != "" {
			continue
		}
		entry, cerr := c.Resolver.CacheGet(ctx, assocs[i].CanonicalURL)
		if cerr != nil || entry == nil || entry.DisplayName == "" {
			continue
		}
		if err := c.DB.WithContext(ctx).Model(&assocs[i]).
			Update("cached_display_name", entry.DisplayName).Error; err != nil {
			c.Logger.Warn("Display-Name-Backfill fehlgeschlagen",
				zap.Uint("association_id", assocs[i].ID), zap.Error(err))
			continue
		}
		assocs[i].CachedDisplayName = entry.DisplayName
	}
	return assocs, nil
}

// CleanupOrphans löscht alle Associations einer Entität, die gleich gelöscht
// wird. Muss vom Lösch-Workflow jeder Entität explizit aufgerufen werden;
// ein automatischer Cascade ist ohne Fremdschlüssel nicht möglich.
func (c *AssociationCoordinator) CleanupOrphans(ctx context.Context, kind models.EntityKind, entityID uint) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", models.ErrUnknownEntityKind, kind)
	}
	res := c.DB.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Delete(&models.IdentifierAssociation{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		c.Logger.Info("Verwaiste Associations entfernt",
			zap.String("entity_kind", string(kind)), zap.Uint("entity_id", entityID),
			zap.Int64("removed", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
