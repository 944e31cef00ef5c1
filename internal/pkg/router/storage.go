package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/paygate/internal/pkg/config"
)

// NewLimiterStorage returns redis-backed limiter storage when a cache is
// configured and nil otherwise.
func NewLimiterStorage(cfg *config.Config) fiber.Storage {
	if !cfg.CacheEnabled() {
		return nil
	}
	log.Infof("[Router] Rate limiter using redis %s:%d", cfg.CacheHost, cfg.CachePort)
	// Database 1; the JWKS cache and reconcile lock use database 0.
	return redis.New(redis.Config{
		Host:     cfg.CacheHost,
		Port:     cfg.CachePort,
		Password: cfg.CachePassword,
		Database: 1,
		Reset:    false,
	})
}
