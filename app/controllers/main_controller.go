package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/paygate/internal/pkg/config"
)

// HandleRoot reports where the service is deployed.
func HandleRoot(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"DEVELOPMENT_LOCATION":    cfg.Location,
			"DEVELOPMENT_ENVIRONMENT": cfg.Environment,
		})
	}
}
