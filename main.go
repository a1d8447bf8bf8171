package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"pid-hub/config"
	"pid-hub/models"
	"pid-hub/registries"
	"pid-hub/registries/crossref"
	"pid-hub/registries/cstr"
	"pid-hub/registries/handle"
	"pid-hub/registries/orcid"
	"pid-hub/registries/ror"
	"pid-hub/registries/scicrunch"
	"pid-hub/services"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	associationsCounter   prometheus.Counter
	resolutionsCounter    prometheus.Counter
	staleRefreshedCounter prometheus.Counter
)

func init() {
	associationsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "identifier_associations_created_total",
			Help: "Total number of identifier associations created.",
		},
	)
	resolutionsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "identifier_resolutions_total",
			Help: "Total number of identifier resolutions served via the API.",
		},
	)
	staleRefreshedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_entries_refreshed_total",
			Help: "Total number of stale cache entries refreshed by the sweep job.",
		},
	)
	prometheus.MustRegister(associationsCounter, resolutionsCounter, staleRefreshedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// respondError übersetzt die Fehler-Taxonomie in HTTP-Statuscodes.
// Unbekannte Fehler werden geloggt und als 500 maskiert.
func respondError(c *gin.Context, logging *zap.Logger, err error) {
	var invalidErr models.InvalidIdentifierError
	var entityErr models.EntityNotFoundError
	var dupErr models.DuplicateAssociationError
	var notFoundErr models.NotFoundError
	var upstreamErr models.UpstreamError

	switch {
	case errors.As(err, &invalidErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrUnknownEntityKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, registries.ErrSearchUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnknownRegistry):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &entityErr):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &dupErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &upstreamErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		logging.Error("Unhandled error in request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	// Auto-Migration
	if gin.Mode() == gin.DebugMode {
		logging.Info("Debug mode detected. Dropping tables for fresh start.")
		db.Migrator().DropTable(
			&models.Publication{}, &models.Creator{}, &models.Organization{}, &models.Funder{},
			&models.IdentifierAssociation{}, &models.ResolutionCacheEntry{},
		)
	}
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(
		&models.Publication{}, &models.Creator{}, &models.Organization{}, &models.Funder{},
		&models.IdentifierAssociation{}, &models.ResolutionCacheEntry{},
	)

	// Setup Registry Clients
	enabledRegistryNames := strings.Split(cfg.EnabledRegistries, ",")
	var enabledClients []registries.Client
	for _, name := range enabledRegistryNames {
		switch strings.TrimSpace(name) {
		case "orcid":
			enabledClients = append(enabledClients, orcid.NewClient(cfg, logging))
		case "ror":
			enabledClients = append(enabledClients, ror.NewClient(cfg, logging))
		case "rrid":
			enabledClients = append(enabledClients, scicrunch.NewClient(cfg, logging))
		case "cstr":
			enabledClients = append(enabledClients, cstr.NewClient(cfg, logging))
		case "doi":
			enabledClients = append(enabledClients, crossref.NewClient(cfg, logging))
		case "handle":
			enabledClients = append(enabledClients, handle.NewClient(cfg, logging))
		default:
			logging.Warn("Unknown registry in config", zap.String("registry_name", name))
		}
	}
	if len(enabledClients) == 0 {
		logging.Fatal("No valid registries enabled. Check ENABLED_REGISTRIES in .env")
	}
	logging.Info("Active registries loaded", zap.Strings("registries", enabledRegistryNames))

	// Setup Services
	staleAfter := time.Duration(cfg.CacheStaleDays) * 24 * time.Hour
	resolver := services.NewResolverService(db, logging, enabledClients, staleAfter)
	directory := &services.GormEntityDirectory{DB: db}
	coordinator := services.NewAssociationCoordinator(db, logging, directory, resolver)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupRegistryRoutes(router, resolver, logging)
	setupIdentifierRoutes(router, resolver, logging)
	setupAssociationRoutes(router, coordinator, logging)
	setupEntityRoutes(router, db, coordinator, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.RefreshCronSchedule, func() {
		logging.Info("Running scheduled cache refresh job...")
		count, err := resolver.RefreshStale(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed", zap.Int("refreshed_entries", count))
			staleRefreshedCounter.Add(float64(count))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// setupRegistryRoutes konfiguriert Discovery und Registry-Suche
func setupRegistryRoutes(router *gin.Engine, resolver *services.ResolverService, log *zap.Logger) {
	rg := router.Group("/registries")

	// GET - Alle aktiven Registries mit ihren Fähigkeiten
	rg.GET("/", func(c *gin.Context) {
		type registryInfo struct {
			Name           string `json:"name"`
			Scheme         string `json:"scheme"`
			SupportsSearch bool   `json:"supports_search"`
		}
		infos := make([]registryInfo, 0)
		for _, client := range resolver.Clients() {
			searchable := false
			if _, ok := client.(registries.Searcher); ok {
				searchable = true
				// Handle-Suche hängt von einer optionalen CORDRA-Instanz ab
				if cs, ok := client.(interface{ CanSearch() bool }); ok {
					searchable = cs.CanSearch()
				}
			}
			infos = append(infos, registryInfo{
				Name:           client.Name(),
				Scheme:         string(client.Scheme()),
				SupportsSearch: searchable,
			})
		}
		c.JSON(http.StatusOK, infos)
	})

	// GET - Freitextsuche in einer Registry; alle Query-Parameter außer q
	// werden als registry-spezifische Filter durchgereicht
	rg.GET("/:name/search", func(c *gin.Context) {
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
			return
		}

		filters := map[string]string{}
		for key, values := range c.Request.URL.Query() {
			if key == "q" || len(values) == 0 {
				continue
			}
			filters[key] = values[0]
		}

		candidates, err := resolver.Search(c.Request.Context(), c.Param("name"), query, filters)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"candidates": candidates, "count": len(candidates)})
	})
}

// setupIdentifierRoutes konfiguriert Normalisierung und Resolve
func setupIdentifierRoutes(router *gin.Engine, resolver *services.ResolverService, log *zap.Logger) {
	rg := router.Group("/identifiers")

	type identifierRequest struct {
		Identifier string `json:"identifier" binding:"required"`
		Scheme     string `json:"scheme"`
	}

	parseScheme := func(c *gin.Context, raw string) (models.Scheme, bool) {
		if raw == "" {
			return "", true
		}
		scheme := models.Scheme(strings.ToLower(strings.TrimSpace(raw)))
		if !scheme.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scheme: " + raw})
			return "", false
		}
		return scheme, true
	}

	// POST - Normalisierung ohne Netzwerkzugriff; rein deterministisch
	rg.POST("/normalize", func(c *gin.Context) {
		var req identifierRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'identifier' field is required."})
			return
		}
		scheme, ok := parseScheme(c, req.Scheme)
		if !ok {
			return
		}

		ident, err := services.Normalize(req.Identifier, scheme)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, ident)
	})

	// POST - Resolve mit Cache-Read-Through
	rg.POST("/resolve", func(c *gin.Context) {
		var req identifierRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'identifier' field is required."})
			return
		}
		scheme, ok := parseScheme(c, req.Scheme)
		if !ok {
			return
		}

		md, err := resolver.Resolve(c.Request.Context(), req.Identifier, scheme)
		if err != nil {
			respondError(c, log, err)
			return
		}
		resolutionsCounter.Inc()
		c.JSON(http.StatusOK, md)
	})
}

// setupAssociationRoutes konfiguriert Attach, Detach und Listing
func setupAssociationRoutes(router *gin.Engine, coordinator *services.AssociationCoordinator, log *zap.Logger) {
	eg := router.Group("/entities/:kind/:id/identifiers")

	// POST - Identifier an Entität hängen
	eg.POST("/", func(c *gin.Context) {
		kind := models.EntityKind(c.Param("kind"))
		entityID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
			return
		}

		var req struct {
			Identifier string `json:"identifier" binding:"required"`
			Scheme     string `json:"scheme"`
			AttachedBy *uint  `json:"attached_by"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'identifier' field is required."})
			return
		}

		scheme := models.Scheme(strings.ToLower(strings.TrimSpace(req.Scheme)))
		if req.Scheme != "" && !scheme.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scheme: " + req.Scheme})
			return
		}

		assoc, err := coordinator.Attach(c.Request.Context(), kind, uint(entityID), req.Identifier, scheme, req.AttachedBy)
		if err != nil {
			respondError(c, log, err)
			return
		}
		associationsCounter.Inc()
		c.JSON(http.StatusCreated, assoc)
	})

	// GET - Alle Identifier einer Entität (mit Display-Name-Backfill)
	eg.GET("/", func(c *gin.Context) {
		kind := models.EntityKind(c.Param("kind"))
		entityID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
			return
		}

		assocs, err := coordinator.ListForEntity(c.Request.Context(), kind, uint(entityID))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, assocs)
	})

	// DELETE - Association über ihre ID lösen
	router.DELETE("/associations/:id", func(c *gin.Context) {
		associationID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid association id"})
			return
		}
		if err := coordinator.Detach(c.Request.Context(), uint(associationID)); err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "association removed"})
	})
}

// setupEntityRoutes konfiguriert die CRUD-Endpunkte der vier Entity-Tabellen.
// Beim Löschen einer Entität werden ihre Associations mit aufgeräumt; die DB
// kann das ohne Fremdschlüssel nicht per Cascade.
func setupEntityRoutes(router *gin.Engine, db *gorm.DB, coordinator *services.AssociationCoordinator, log *zap.Logger) {
	register := func(path string, kind models.EntityKind, newModel func() any, newSlice func() any) {
		rg := router.Group(path)

		rg.POST("/", func(c *gin.Context) {
			entity := newModel()
			if err := c.ShouldBindJSON(entity); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
			if err := db.WithContext(c.Request.Context()).Create(entity).Error; err != nil {
				log.Error("Failed to create entity", zap.String("kind", string(kind)), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			c.JSON(http.StatusCreated, entity)
		})

		rg.GET("/", func(c *gin.Context) {
			list := newSlice()
			if err := db.WithContext(c.Request.Context()).Find(list).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			c.JSON(http.StatusOK, list)
		})

		rg.GET("/:id", func(c *gin.Context) {
			id := c.Param("id")
			entity := newModel()
			if err := db.WithContext(c.Request.Context()).First(entity, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"error": string(kind) + " not found"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			c.JSON(http.StatusOK, entity)
		})

		rg.PUT("/:id", func(c *gin.Context) {
			id := c.Param("id")
			entity := newModel()
			if err := db.WithContext(c.Request.Context()).First(entity, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"error": string(kind) + " not found"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}

			// Nur die gesendeten Felder binden, um Überschreiben zu verhindern
			var updateData map[string]interface{}
			if err := c.ShouldBindJSON(&updateData); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			delete(updateData, "id")

			if err := db.WithContext(c.Request.Context()).Model(entity).Updates(updateData).Error; err != nil {
				log.Error("Failed to update entity", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update " + string(kind)})
				return
			}
			c.JSON(http.StatusOK, entity)
		})

		rg.DELETE("/:id", func(c *gin.Context) {
			entityID, err := strconv.ParseUint(c.Param("id"), 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
				return
			}

			res := db.WithContext(c.Request.Context()).Delete(newModel(), uint(entityID))
			if res.Error != nil {
				log.Error("Failed to delete entity", zap.String("kind", string(kind)), zap.Error(res.Error))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			if res.RowsAffected == 0 {
				c.JSON(http.StatusNotFound, gin.H{"error": string(kind) + " not found"})
				return
			}

			removed, err := coordinator.CleanupOrphans(c.Request.Context(), kind, uint(entityID))
			if err != nil {
				log.Error("Failed to clean up associations", zap.String("kind", string(kind)), zap.Error(err))
			}
			c.JSON(http.StatusOK, gin.H{"message": string(kind) + " deleted", "associations_removed": removed})
		})
	}

	register("/publications", models.EntityKindPublication,
		func() any { return &models.Publication{} }, func() any { return &[]models.Publication{} })
	register("/creators", models.EntityKindCreator,
		func() any { return &models.Creator{} }, func() any { return &[]models.Creator{} })
	register("/organizations", models.EntityKindOrganization,
		func() any { return &models.Organization{} }, func() any { return &[]models.Organization{} })
	register("/funders", models.EntityKindFunder,
		func() any { return &models.Funder{} }, func() any { return &[]models.Funder{} })
}
