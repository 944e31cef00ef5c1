package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/paygate/app/controllers"
	"github.com/ManuelReschke/paygate/internal/pkg/middleware"
)

// HttpRouter installs the root, /oauth2 and /user routes.
type HttpRouter struct {
	h *Handlers
}

func (r HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/", controllers.HandleRoot(r.h.Config))

	r.registerOAuthRoutes(app)

	requireBearer := middleware.RequireBearer(r.h.Gate)
	user := app.Group("/user", requireBearer)
	user.Get("/", r.h.User.HandleGetUser)
	user.Post("/billing-customer", r.h.User.HandleProvisionCustomer)
}

func NewHttpRouter(h *Handlers) *HttpRouter {
	return &HttpRouter{h: h}
}
