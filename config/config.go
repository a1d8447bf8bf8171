package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// ORCID: öffentliche API, Suche und Resolve auf demselben Host.
	OrcidBaseURL string `envconfig:"ORCID_BASE_URL" default:"https://pub.orcid.org/v3.0"`

	RorBaseURL string `envconfig:"ROR_BASE_URL" default:"https://api.ror.org/v2"`

	// SciCrunch (RRID): Suche und Resolve laufen über verschiedene Hosts mit
	// unterschiedlicher Auth. Die Suche braucht den API-Key, der Resolver nicht.
	ScicrunchSearchBaseURL   string `envconfig:"SCICRUNCH_SEARCH_BASE_URL" default:"https://api.scicrunch.io/elastic/v1"`
	ScicrunchResolverBaseURL string `envconfig:"SCICRUNCH_RESOLVER_BASE_URL" default:"https://scicrunch.org/resolver"`
	ScicrunchAPIKey          string `envconfig:"SCICRUNCH_API_KEY"`

	CstrBaseURL string `envconfig:"CSTR_BASE_URL" default:"https://www.cstr.cn/openapi/v2"`
	CstrAPIKey  string `envconfig:"CSTR_API_KEY"`

	CrossrefBaseURL string `envconfig:"CROSSREF_BASE_URL" default:"https://api.crossref.org"`
	// Crossref bittet um eine Kontakt-Mailadresse für den "polite pool".
	CrossrefMailto string `envconfig:"CROSSREF_MAILTO"`

	HandleBaseURL string `envconfig:"HANDLE_BASE_URL" default:"https://hdl.handle.net/api"`
	// Optionale CORDRA-Instanz für die Handle-Suche. Ohne Wert liefert der
	// Handle-Client nur Resolve.
	CordraBaseURL string `envconfig:"CORDRA_BASE_URL"`

	// Registry-Konfiguration
	EnabledRegistries string `envconfig:"ENABLED_REGISTRIES" default:"orcid,ror,rrid,cstr,doi,handle"`

	// Cache-Einträge gelten nach so vielen Tagen als stale.
	CacheStaleDays int `envconfig:"CACHE_STALE_DAYS" default:"30"`

	// Cron für den Out-of-band-Refresh stale gewordener Cache-Einträge.
	RefreshCronSchedule string `envconfig:"REFRESH_CRON_SCHEDULE" default:"0 3 * * *"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
