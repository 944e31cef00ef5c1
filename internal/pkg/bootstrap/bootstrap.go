// Package bootstrap builds the process-wide components from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paygate/app/controllers"
	"github.com/ManuelReschke/paygate/internal/pkg/archive"
	"github.com/ManuelReschke/paygate/internal/pkg/awsclient"
	"github.com/ManuelReschke/paygate/internal/pkg/billing"
	"github.com/ManuelReschke/paygate/internal/pkg/cache"
	"github.com/ManuelReschke/paygate/internal/pkg/config"
	"github.com/ManuelReschke/paygate/internal/pkg/docstore"
	"github.com/ManuelReschke/paygate/internal/pkg/idp"
	"github.com/ManuelReschke/paygate/internal/pkg/jwks"
	"github.com/ManuelReschke/paygate/internal/pkg/middleware"
	"github.com/ManuelReschke/paygate/internal/pkg/router"
	"github.com/ManuelReschke/paygate/internal/pkg/secrets"
)

const (
	DriverDynamoDB = "dynamodb"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"

	localRedirectURI = "https://0.0.0.0:8000/docs"
	upstreamTimeout  = 10 * time.Second
)

// Core is what both the server and the batch job need: config, secrets,
// the document store and the synchronizer.
type Core struct {
	Config       *config.Config
	AWS          aws.Config
	Secrets      *secrets.Resolver
	Cache        *cache.Redis
	Tables       billing.Tables
	Store        docstore.Store
	Provider     billing.Provider
	Synchronizer *billing.Synchronizer

	closers []func() error
}

// NewCore resolves configuration and connects the store and billing provider.
func NewCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	awsConfig, err := awsclient.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := &Core{Config: cfg, AWS: awsConfig, Tables: billing.TablesFor(cfg)}
	if cfg.IsLocal() {
		log.Info("[Bootstrap] Local mode: parameters are read from the environment")
		c.Secrets = secrets.NewResolver(secrets.EnvStore{})
	} else {
		c.Secrets = secrets.NewResolver(secrets.NewSSMStore(ssm.NewFromConfig(awsConfig)))
	}

	if cfg.CacheEnabled() {
		c.Cache = cache.New(ctx, cache.Options{Host: cfg.CacheHost, Port: cfg.CachePort, Password: cfg.CachePassword})
		c.closers = append(c.closers, c.Cache.Close)
	}

	if c.Store, err = c.openStore(ctx); err != nil {
		c.Close()
		return nil, err
	}

	stripeKey, err := c.secret(ctx, config.ParamStripeSecretKey, cfg.StripeSecretKeyLocal)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Provider = billing.NewStripeProvider(stripeKey)

	c.Synchronizer = billing.NewSynchronizer(c.Store, c.Provider, c.Tables, cfg.ReconcilePageSize)
	if c.Cache != nil {
		c.Synchronizer.WithLocker(c.Cache)
	}
	return c, nil
}

// secret returns localValue in local mode when set, otherwise the resolved parameter.
func (c *Core) secret(ctx context.Context, name, localValue string) (string, error) {
	if c.Config.IsLocal() && strings.TrimSpace(localValue) != "" {
		return localValue, nil
	}
	return c.Secrets.Resolve(ctx, c.Config.ParameterName(name))
}

func (c *Core) openStore(ctx context.Context) (docstore.Store, error) {
	schemas := c.Tables.Schemas()
	switch c.Config.DocstoreDriver {
	case DriverDynamoDB:
		store := docstore.NewDynamo(dynamodb.NewFromConfig(c.AWS))
		for table, schema := range schemas {
			if err := store.VerifyKeySchema(ctx, table, schema); err != nil {
				log.Warnf("[Bootstrap] %v", err)
			}
		}
		log.Infof("[Bootstrap] Using dynamodb document store (%d tables)", len(schemas))
		return store, nil
	case DriverMySQL:
		db, err := docstore.OpenMySQL(c.Config.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("open mysql document store: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, sqlDB.Close)
		if c.Config.IsLocal() {
			if err := docstore.AutoMigrateDocuments(db); err != nil {
				return nil, err
			}
		}
		log.Info("[Bootstrap] Using mysql document store")
		return docstore.NewGorm(db, schemas), nil
	case DriverMemory:
		log.Warn("[Bootstrap] Using in-memory document store; data is lost on restart")
		return docstore.NewMemory(schemas), nil
	default:
		return nil, fmt.Errorf("unknown DOCSTORE_DRIVER %q", c.Config.DocstoreDriver)
	}
}

// Close releases connections in reverse order of creation.
func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Warnf("[Bootstrap] Close failed: %v", err)
		}
	}
	c.closers = nil
}

// Gateway adds the identity provider, checkout and webhook components served over HTTP.
type Gateway struct {
	*Core

	Gate     *middleware.Gate
	Issuer   *idp.Client
	Users    *idp.CognitoDirectory
	Checkout *billing.Checkout
	Catalog  *billing.Catalog
	Events   *billing.EventVerifier
	Archiver archive.Archiver
}

func NewGateway(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	core, err := NewCore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	g, err := newGateway(ctx, core)
	if err != nil {
		core.Close()
		return nil, err
	}
	return g, nil
}

func newGateway(ctx context.Context, core *Core) (*Gateway, error) {
	cfg := core.Config
	resolve := func(name string) (string, error) {
		return core.Secrets.Resolve(ctx, cfg.ParameterName(name))
	}

	jwksURL, err := resolve(config.ParamUserPoolSigning)
	if err != nil {
		return nil, err
	}
	clientID, err := resolve(config.ParamUserPoolClientID)
	if err != nil {
		return nil, err
	}
	domainURL, err := resolve(config.ParamCognitoDomainURL)
	if err != nil {
		return nil, err
	}
	redirectURI := localRedirectURI
	if !cfg.IsLocal() {
		apiURL, err := resolve(config.ParamAPIFunctionURL)
		if err != nil {
			return nil, err
		}
		redirectURI = apiURL + "docs"
	}
	webhookSecret, err := core.secret(ctx, config.ParamStripeWebhookSecr, cfg.StripeWebhookSecretLocal)
	if err != nil {
		return nil, err
	}

	var keyCache jwks.Cache = jwks.NewMemoryCache()
	if core.Cache != nil {
		keyCache = core.Cache
	}
	httpClient := &http.Client{Timeout: upstreamTimeout}
	verifier := jwks.NewVerifier(jwksURL,
		jwks.WithCache(keyCache, cfg.JWKSCacheTTL),
		jwks.WithHTTPClient(httpClient),
	)

	g := &Gateway{
		Core: core,
		Gate: middleware.NewGate(verifier),
		Issuer: idp.NewClient(idp.Config{
			DomainURL:          domainURL,
			ClientID:           clientID,
			DefaultRedirectURI: redirectURI,
		}, verifier).WithHTTPClient(httpClient),
		Users:    idp.NewCognitoDirectory(cip.NewFromConfig(core.AWS)),
		Catalog:  billing.NewCatalog(core.Store, core.Tables),
		Events:   billing.NewEventVerifier(webhookSecret),
		Archiver: archive.Noop{},
	}
	g.Checkout = billing.NewCheckout(g.Users, core.Provider, cfg.IsLocal(), cfg.FrontendURL)

	if cfg.ArchiveEnabled {
		s3Archiver := archive.NewS3Archiver(archive.NewS3Client(core.AWS), cfg.ArchiveBucket)
		if err := s3Archiver.CheckBucket(ctx); err != nil {
			return nil, err
		}
		g.Archiver = s3Archiver
	}
	return g, nil
}

// Handlers wires the controllers for the router.
func (g *Gateway) Handlers() *router.Handlers {
	return &router.Handlers{
		Config:         g.Config,
		Gate:           g.Gate,
		OAuth:          controllers.NewOAuthController(g.Issuer),
		Billing:        controllers.NewBillingController(g.Events, g.Synchronizer, g.Archiver, g.Checkout, g.Catalog),
		User:           controllers.NewUserController(g.Users, g.Checkout),
		LimiterStorage: router.NewLimiterStorage(g.Config),
	}
}
