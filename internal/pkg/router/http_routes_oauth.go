package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/paygate/internal/pkg/middleware"
)

func (r HttpRouter) registerOAuthRoutes(app *fiber.App) {
	oauth := app.Group("/oauth2")
	oauth.Get("/authorize", r.h.OAuth.HandleAuthorize)
	oauth.Post("/token", r.h.OAuth.HandleToken)
	oauth.Post("/revoke", r.h.OAuth.HandleRevoke)
	oauth.Get("/validate-token", middleware.RequireBearer(r.h.Gate), r.h.OAuth.HandleValidateToken)
}
