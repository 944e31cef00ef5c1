package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	LocationLocal = "local"

	KindProduct         = "product"
	KindPrice           = "price"
	KindCustomer        = "customer"
	KindCheckoutSession = "checkout-session-completed"
)

// Parameter store names, relative to /<company>/<environment>/.
const (
	ParamUserPoolClientID  = "user-pool-client-id"
	ParamCognitoDomainURL  = "user-pool-cognito-domain-url"
	ParamUserPoolSigning   = "user-pool-signing-key"
	ParamAPIFunctionURL    = "api-function-url"
	ParamStripeSecretKey   = "stripe-secret-key"
	ParamStripeWebhookSecr = "stripe-webhook-secret"
)

// Config is resolved once at process start and passed to every component.
type Config struct {
	Company     string `env:"COMPANY"                 envDefault:"my-test-company-name"`
	Environment string `env:"DEVELOPMENT_ENVIRONMENT" envDefault:"dev0"`
	Location    string `env:"DEVELOPMENT_LOCATION"    envDefault:"local"`

	AppHost     string   `env:"APP_HOST"     envDefault:"localhost"`
	AppPort     string   `env:"APP_PORT"     envDefault:"8000"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"https://0.0.0.0:3000"`
	FrontendURL string   `env:"FRONTEND_URL" envDefault:"https://0.0.0.0:3000"`

	AWSRegion      string `env:"AWS_REGION"       envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"`

	CacheHost     string `env:"CACHE_HOST"`
	CachePort     int    `env:"CACHE_PORT"     envDefault:"6379"`
	CachePassword string `env:"CACHE_PASSWORD"`

	StripeWebhookSecretLocal string `env:"STRIPE_WEBHOOK_SECRET_LOCAL"`
	StripeSecretKeyLocal     string `env:"STRIPE_SECRET_KEY_LOCAL"`

	JWKSCacheTTL      time.Duration `env:"JWKS_CACHE_TTL"      envDefault:"10m"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL"  envDefault:"0s"`
	ReconcilePageSize int64         `env:"RECONCILE_PAGE_SIZE" envDefault:"100"`

	DocstoreDriver string `env:"DOCSTORE_DRIVER" envDefault:"dynamodb"`
	DBUser         string `env:"DB_USER"`
	DBPassword     string `env:"DB_PASSWORD"`
	DBHost         string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort         string `env:"DB_PORT" envDefault:"3306"`
	DBName         string `env:"DB_NAME"`
	Migrations     string `env:"MIGRATIONS_SOURCE" envDefault:"file://migrations"`

	ArchiveEnabled bool   `env:"ARCHIVE_ENABLED" envDefault:"false"`
	ArchiveBucket  string `env:"ARCHIVE_BUCKET"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Company = strings.TrimSpace(cfg.Company)
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	if cfg.Company == "" || cfg.Environment == "" {
		return nil, fmt.Errorf("COMPANY and DEVELOPMENT_ENVIRONMENT are required")
	}
	if cfg.ReconcilePageSize <= 0 || cfg.ReconcilePageSize > 100 {
		cfg.ReconcilePageSize = 100
	}
	if cfg.ArchiveEnabled && strings.TrimSpace(cfg.ArchiveBucket) == "" {
		return nil, fmt.Errorf("ARCHIVE_BUCKET is required when ARCHIVE_ENABLED is true")
	}
	return &cfg, nil
}

// IsLocal reports whether secrets come from the environment instead of the parameter store.
func (c *Config) IsLocal() bool {
	return c.Location == LocationLocal
}

// ParameterName builds the fully qualified parameter store name.
func (c *Config) ParameterName(name string) string {
	return fmt.Sprintf("/%s/%s/%s", c.Company, c.Environment, name)
}

// TableName returns the document store table mirroring the given entity kind.
func (c *Config) TableName(kind string) string {
	return fmt.Sprintf("%s-%s-%s", c.Company, c.Environment, kind)
}

// CacheEnabled reports whether a redis cache is configured.
func (c *Config) CacheEnabled() bool {
	return strings.TrimSpace(c.CacheHost) != ""
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.AppHost, c.AppPort)
}

// MySQLDSN builds the DSN used by the mysql document store driver.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// MigrationURL is the golang-migrate database URL for the documents schema.
func (c *Config) MigrationURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}
