package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pid-hub/models"
	"pid-hub/registries"
)

// stubClient ist ein Registry-Client mit festen Antworten für Tests.
type stubClient struct {
	scheme   models.Scheme
	name     string
	display  string
	err      error
	resolves atomic.Int64
}

func (c *stubClient) Name() string          { return c.name }
func (c *stubClient) Scheme() models.Scheme { return c.scheme }

func (c *stubClient) Resolve(ctx context.Context, ident models.NormalizedIdentifier) (*models.ResolvedMetadata, error) {
	c.resolves.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &models.ResolvedMetadata{
		Identifier:  ident,
		DisplayName: c.display,
		ResolvedAt:  time.Now().UTC(),
	}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// Jede Connection einer :memory:-DB wäre eine eigene Datenbank.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Publication{}, &models.Creator{}, &models.Organization{}, &models.Funder{},
		&models.IdentifierAssociation{}, &models.ResolutionCacheEntry{},
	))
	return db
}

func newTestResolver(t *testing.T, db *gorm.DB, clients ...registries.Client) *ResolverService {
	t.Helper()
	return NewResolverService(db, zap.NewNop(), clients, 30*24*time.Hour)
}

func mustNormalize(t *testing.T, raw string) models.NormalizedIdentifier {
	t.Helper()
	ident, err := Normalize(raw, "")
	require.NoError(t, err)
	return ident
}

func TestResolveIdentifierCachesResult(t *testing.T) {
	db := newTestDB(t)
	stub := &stubClient{scheme: models.SchemeROR, name: "ror", display: "Example University"}
	resolver := newTestResolver(t, db, stub)

	ident := mustNormalize(t, "https://ror.org/0456r8d26")

	md, err := resolver.ResolveIdentifier(context.Background(), ident)
	require.NoError(t, err)
	assert.Equal(t, "Example University", md.DisplayName)
	assert.Equal(t, int64(1), stub.resolves.Load())

	// Zweiter Resolve kommt aus dem Cache, kein Registry-Aufruf
	md, err = resolver.ResolveIdentifier(context.Background(), ident)
	require.NoError(t, err)
	assert.Equal(t, "Example University", md.DisplayName)
	assert.Equal(t, int64(1), stub.resolves.Load())

	var count int64
	require.NoError(t, db.Model(&models.ResolutionCacheEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveIdentifierServesStaleAndRefreshes(t *testing.T) {
	db := newTestDB(t)
	stub := &stubClient{scheme: models.SchemeROR, name: "ror", display: "New Name"}
	resolver := newTestResolver(t, db, stub)

	ident := mustNormalize(t, "https://ror.org/0456r8d26")
	seed := models.ResolutionCacheEntry{
		CanonicalURL: ident.CanonicalURL,
		Scheme:       ident.Scheme,
		RawValue:     ident.RawValue,
		DisplayName:  "Old Name",
		ResolvedAt:   time.Now().UTC().Add(-31 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&seed).Error)

	// Der Request bekommt sofort den stale Wert
	md, err := resolver.ResolveIdentifier(context.Background(), ident)
	require.NoError(t, err)
	assert.Equal(t, "Old Name", md.DisplayName)

	// Der Refresh läuft außerhalb des Request-Pfads
	assert.Eventually(t, func() bool {
		var entry models.ResolutionCacheEntry
		if err := db.Where("canonical_url = ?", ident.CanonicalURL).First(&entry).Error; err != nil {
			return false
		}
		return entry.DisplayName == "New Name"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResolveIdentifierKeepsStaleValueOnFailedRefresh(t *testing.T) {
	db := newTestDB(t)
	stub := &stubClient{scheme: models.SchemeROR, name: "ror", err: models.UpstreamError{Registry: "ror", Status: 503, Retryable: true}}
	resolver := newTestResolver(t, db, stub)

	ident := mustNormalize(t, "https://ror.org/0456r8d26")
	seed := models.ResolutionCacheEntry{
		CanonicalURL: ident.CanonicalURL,
		Scheme:       ident.Scheme,
		RawValue:     ident.RawValue,
		DisplayName:  "Old Name",
		ResolvedAt:   time.Now().UTC().Add(-31 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&seed).Error)

	md, err := resolver.ResolveIdentifier(context.Background(), ident)
	require.NoError(t, err)
	assert.Equal(t, "Old Name", md.DisplayName)

	// Dem fehlgeschlagenen Refresh Zeit geben, dann darf sich nichts
	// geändert haben
	assert.Eventually(t, func() bool {
		return stub.resolves.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	var entry models.ResolutionCacheEntry
	require.NoError(t, db.Where("canonical_url = ?", ident.CanonicalURL).First(&entry).Error)
	assert.Equal(t, "Old Name", entry.DisplayName)
}

func TestResolveIdentifierSurvivesCorruptExtraPayload(t *testing.T) {
	db := newTestDB(t)
	resolver := newTestResolver(t, db)

	ident := mustNormalize(t, "https://ror.org/0456r8d26")
	seed := models.ResolutionCacheEntry{
		CanonicalURL: ident.CanonicalURL,
		Scheme:       ident.Scheme,
		RawValue:     ident.RawValue,
		DisplayName:  "Example University",
		ResolvedAt:   time.Now().UTC(),
		Extra:        datatypes.JSON([]byte(`{"country": `)),
	}
	require.NoError(t, db.Create(&seed).Error)

	_, err := seed.Metadata()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ident.CanonicalURL)

	// Der kaputte Payload darf den Eintrag nicht unbrauchbar machen.
	md, err := resolver.ResolveIdentifier(context.Background(), ident)
	require.NoError(t, err)
	assert.Equal(t, "Example University", md.DisplayName)
	assert.Nil(t, md.Extra)
}

func TestIsStaleBoundary(t *testing.T) {
	resolver := newTestResolver(t, newTestDB(t))
	now := time.Now().UTC()

	assert.False(t, resolver.IsStale(now.Add(-29*24*time.Hour), now))
	assert.True(t, resolver.IsStale(now.Add(-31*24*time.Hour), now))
}

func TestResolveIdentifierWithoutClient(t *testing.T) {
	resolver := newTestResolver(t, newTestDB(t))

	ident := mustNormalize(t, "https://ror.org/0456r8d26")
	_, err := resolver.ResolveIdentifier(context.Background(), ident)

	var upstreamErr models.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.False(t, upstreamErr.Retryable)
}

func TestCachePutUpserts(t *testing.T) {
	db := newTestDB(t)
	resolver := newTestResolver(t, db)

	ident := mustNormalize(t, "https://ror.org/0456r8d26")

	first := &models.ResolvedMetadata{Identifier: ident, DisplayName: "First", ResolvedAt: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, resolver.CachePut(context.Background(), first))

	second := &models.ResolvedMetadata{Identifier: ident, DisplayName: "Second", ResolvedAt: time.Now().UTC()}
	require.NoError(t, resolver.CachePut(context.Background(), second))

	var count int64
	require.NoError(t, db.Model(&models.ResolutionCacheEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	entry, err := resolver.CacheGet(context.Background(), ident.CanonicalURL)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Second", entry.DisplayName)
}

func TestRefreshStaleSweepsOnlyStaleEntries(t *testing.T) {
	db := newTestDB(t)
	stub := &stubClient{scheme: models.SchemeROR, name: "ror", display: "Refreshed"}
	resolver := newTestResolver(t, db, stub)

	stale1 := mustNormalize(t, "https://ror.org/0456r8d26")
	stale2 := mustNormalize(t, "https://ror.org/02mhbdp94")
	fresh := mustNormalize(t, "https://ror.org/03yrm5c26")

	entries := []models.ResolutionCacheEntry{
		{CanonicalURL: stale1.CanonicalURL, Scheme: stale1.Scheme, RawValue: stale1.RawValue, DisplayName: "Stale 1", ResolvedAt: time.Now().UTC().Add(-40 * 24 * time.Hour)},
		{CanonicalURL: stale2.CanonicalURL, Scheme: stale2.Scheme, RawValue: stale2.RawValue, DisplayName: "Stale 2", ResolvedAt: time.Now().UTC().Add(-31 * 24 * time.Hour)},
		{CanonicalURL: fresh.CanonicalURL, Scheme: fresh.Scheme, RawValue: fresh.RawValue, DisplayName: "Fresh", ResolvedAt: time.Now().UTC().Add(-time.Hour)},
	}
	require.NoError(t, db.Create(&entries).Error)

	refreshed, err := resolver.RefreshStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)
	assert.Equal(t, int64(2), stub.resolves.Load())

	var refreshedEntry models.ResolutionCacheEntry
	require.NoError(t, db.Where("canonical_url = ?", stale1.CanonicalURL).First(&refreshedEntry).Error)
	assert.Equal(t, "Refreshed", refreshedEntry.DisplayName)

	// Frische Lookup-Variable: First() würde sonst den bereits gesetzten
	// Primärschlüssel in die WHERE-Klausel übernehmen.
	var freshEntry models.ResolutionCacheEntry
	require.NoError(t, db.Where("canonical_url = ?", fresh.CanonicalURL).First(&freshEntry).Error)
	assert.Equal(t, "Fresh", freshEntry.DisplayName)
}

func TestRefreshStaleKeepsEntriesOnFailure(t *testing.T) {
	db := newTestDB(t)
	stub := &stubClient{scheme: models.SchemeROR, name: "ror", err: models.UpstreamError{Registry: "ror", Status: 500, Retryable: true}}
	resolver := newTestResolver(t, db, stub)

	ident := mustNormalize(t, "https://ror.org/0456r8d26")
	seed := models.ResolutionCacheEntry{
		CanonicalURL: ident.CanonicalURL,
		Scheme:       ident.Scheme,
		RawValue:     ident.RawValue,
		DisplayName:  "Old Name",
		ResolvedAt:   time.Now().UTC().Add(-31 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&seed).Error)

	refreshed, err := resolver.RefreshStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed)

	var entry models.ResolutionCacheEntry
	require.NoError(t, db.Where("canonical_url = ?", ident.CanonicalURL).First(&entry).Error)
	assert.Equal(t, "Old Name", entry.DisplayName)
}

func TestSearchUnknownRegistry(t *testing.T) {
	resolver := newTestResolver(t, newTestDB(t))
	_, err := resolver.Search(context.Background(), "wikidata", "query", nil)
	require.ErrorIs(t, err, ErrUnknownRegistry)
}

func TestSearchUnsupportedRegistry(t *testing.T) {
	// stubClient implementiert Searcher nicht
	stub := &stubClient{scheme: models.SchemeHandle, name: "handle"}
	resolver := newTestResolver(t, newTestDB(t), stub)

	_, err := resolver.Search(context.Background(), "handle", "query", nil)
	require.ErrorIs(t, err, registries.ErrSearchUnsupported)
}
