package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/ManuelReschke/paygate/app/controllers"
	"github.com/ManuelReschke/paygate/internal/pkg/config"
	"github.com/ManuelReschke/paygate/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Handlers is everything the routers mount.
type Handlers struct {
	Config  *config.Config
	Gate    *middleware.Gate
	OAuth   *controllers.OAuthController
	Billing *controllers.BillingController
	User    *controllers.UserController

	// LimiterStorage backs the rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, h *Handlers) {
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(h.Config.CORSOrigins, ","),
		AllowCredentials: true,
		AllowHeaders:     "*",
		ExposeHeaders:    "Content-Type",
	}))

	setup(app, NewHttpRouter(h), NewApiRouter(h))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
