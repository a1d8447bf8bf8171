package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pid-hub/models"
	"pid-hub/registries"
)

// ErrUnknownRegistry: der angefragte Registry-Name ist nicht konfiguriert.
var ErrUnknownRegistry = errors.New("unknown registry")

// ResolverService kümmert sich um Suche, Resolve und den persistenten
// Resolution-Cache. Der Cache ist eine Capability, die bei der Konstruktion
// hereingereicht wird (dieselbe DB wie der Association-Store), kein
// prozesslokaler Singleton.
type ResolverService struct {
	DB         *gorm.DB
	Logger     *zap.Logger
	StaleAfter time.Duration

	clients  []registries.Client
	byScheme map[models.Scheme]registries.Client
}

// NewResolverService erstellt eine neue Instanz des ResolverService.
func NewResolverService(db *gorm.DB, logger *zap.Logger, clients []registries.Client, staleAfter time.Duration) *ResolverService {
	byScheme := make(map[models.Scheme]registries.Client, len(clients))
	for _, c := range clients {
		byScheme[c.Scheme()] = c
	}
	return &ResolverService{
		DB:         db,
		Logger:     logger,
		StaleAfter: staleAfter,
		clients:    clients,
		byScheme:   byScheme,
	}
}

// Clients gibt die konfigurierten Registry-Clients in stabiler Reihenfolge zurück.
func (s *ResolverService) Clients() []registries.Client {
	return s.clients
}

// ClientFor liefert den Client für ein Schema.
func (s *ResolverService) ClientFor(scheme models.Scheme) (registries.Client, bool) {
	c, ok := s.byScheme[scheme]
	return c, ok
}

// Search reicht eine Suche an die benannte Registry durch. Suchergebnisse
// werden nie gecacht: Index-Volatilität und -Größe machen das unsicher.
func (s *ResolverService) Search(ctx context.Context, registry, query string, filters map[string]string) ([]models.Candidate, error) {
	for _, c := range s.clients {
		if c.Name() != registry {
			continue
		}
		searcher, ok := c.(registries.Searcher)
		if !ok {
			return nil, registries.ErrSearchUnsupported
		}
		return searcher.Search(ctx, query, filters)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRegistry, registry)
}

// Resolve normalisiert den rohen Identifier und löst ihn read-through über
// den Cache auf. Fehler werden hier NICHT verschluckt: wer explizit resolved,
// will die Metadaten, also bekommt er auch den Fehler.
func (s *ResolverService) Resolve(ctx context.Context, raw string, expected models.Scheme) (*models.ResolvedMetadata, error) {
	ident, err := Normalize(raw, expected)
	if err != nil {
		return nil, err
	}
	return s.ResolveIdentifier(ctx, ident)
}

// ResolveIdentifier ist die Cache-Read-Through-Variante für bereits
// normalisierte Identifier. Ein stale Eintrag wird sofort zurückgegeben,
// der Refresh läuft außerhalb des Request-Pfads; scheitert er, bleibt der
// alte Wert stehen (stale-but-present schlägt absent).
func (s *ResolverService) ResolveIdentifier(ctx context.Context, ident models.NormalizedIdentifier) (*models.ResolvedMetadata, error) {
	entry, err := s.CacheGet(ctx, ident.CanonicalURL)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		md, mdErr := entry.Metadata()
		if mdErr != nil {
			s.Logger.Warn("Cache-Eintrag mit kaputtem Extra-Payload",
				zap.String("canonical_url", entry.CanonicalURL),
				zap.Error(mdErr))
		}
		if s.IsStale(entry.ResolvedAt, time.Now()) {
			go s.refresh(context.Background(), ident)
		}
		return &md, nil
	}

	client, ok := s.ClientFor(ident.Scheme)
	if !ok {
		return nil, models.UpstreamError{
			Registry:  string(ident.Scheme),
			Retryable: false,
			Err:       fmt.Errorf("no registry client enabled for scheme %s", ident.Scheme),
		}
	}

	md, err := client.Resolve(ctx, ident)
	if err != nil {
		return nil, err
	}

	if err := s.CachePut(ctx, md); err != nil {
		// Cache-Schreibfehler machen den Resolve nicht kaputt.
		s.Logger.Warn("Cache-Write nach Resolve fehlgeschlagen",
			zap.String("canonical_url", ident.CanonicalURL), zap.Error(err))
	}
	return md, nil
}

// CacheGet liest einen Cache-Eintrag; nil ohne Fehler bedeutet Cache-Miss.
func (s *ResolverService) CacheGet(ctx context.Context, canonicalURL string) (*models.ResolutionCacheEntry, error) {
	var entry models.ResolutionCacheEntry
	err := s.DB.WithContext(ctx).Where("canonical_url = ?", canonicalURL).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CachePut schreibt einen Eintrag als Upsert auf die kanonische URL.
// Last-writer-wins reicht: aufgelöste Metadaten sind registry-authoritativ
// und damit effektiv idempotent.
func (s *ResolverService) CachePut(ctx context.Context, md *models.ResolvedMetadata) error {
	entry, err := models.NewCacheEntry(md)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "canonical_url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"scheme", "raw_value", "display_name", "proper_citation", "extra", "resolved_at", "updated_at",
		}),
	}).Create(entry).Error
}

// IsStale meldet, ob ein Eintrag älter als die Staleness-Schwelle ist.
func (s *ResolverService) IsStale(resolvedAt, now time.Time) bool {
	return now.Sub(resolvedAt) > s.StaleAfter
}

// refresh versucht einen einzelnen Eintrag neu aufzulösen. Best-effort:
// jeder Fehler wird nur geloggt, der alte Cache-Wert bleibt erhalten.
func (s *ResolverService) refresh(ctx context.Context, ident models.NormalizedIdentifier) {
	client, ok := s.ClientFor(ident.Scheme)
	if !ok {
		return
	}
	md, err := client.Resolve(ctx, ident)
	if err != nil {
		s.Logger.Debug("Cache-Refresh fehlgeschlagen, alter Wert bleibt erhalten",
			zap.String("canonical_url", ident.CanonicalURL), zap.Error(err))
		return
	}
	if err := s.CachePut(ctx, md); err != nil {
		s.Logger.Warn("Cache-Write beim Refresh fehlgeschlagen",
			zap.String("canonical_url", ident.CanonicalURL), zap.Error(err))
	}
}

// RefreshStale löst alle stale gewordenen Cache-Einträge neu auf und gibt
// die Anzahl erfolgreich aufgefrischter Einträge zurück. Wird vom Cron-Job
// aufgerufen.
func (s *ResolverService) RefreshStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.StaleAfter)

	var entries []models.ResolutionCacheEntry
	if err := s.DB.WithContext(ctx).Where("resolved_at < ?", cutoff).Find(&entries).Error; err != nil {
		return 0, err
	}

	refreshed := 0
	for _, entry := range entries {
		ident := models.NormalizedIdentifier{
			Scheme:       entry.Scheme,
			RawValue:     entry.RawValue,
			CanonicalURL: entry.CanonicalURL,
		}
		client, ok := s.ClientFor(ident.Scheme)
		if !ok {
			continue
		}
		md, err := client.Resolve(ctx, ident)
		if err != nil {
			s.Logger.Debug("Refresh für Eintrag fehlgeschlagen",
				zap.String("canonical_url", entry.CanonicalURL), zap.Error(err))
			continue
		}
		if err := s.CachePut(ctx, md); err != nil {
			s.Logger.Warn("Cache-Write beim Sweep fehlgeschlagen",
				zap.String("canonical_url", entry.CanonicalURL), zap.Error(err))
			continue
		}
		refreshed++
	}

	s.Logger.Info("Stale-Cache-Sweep abgeschlossen",
		zap.Int("stale", len(entries)), zap.Int("refreshed", refreshed))
	return refreshed, nil
}
