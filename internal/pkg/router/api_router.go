package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/paygate/internal/pkg/middleware"
)

// ApiRouter installs the /stripe routes.
type ApiRouter struct {
	h *Handlers
}

func (r ApiRouter) InstallRouter(app *fiber.App) {
	bc := r.h.Billing

	// Webhooks bypass the limiter.
	app.Post("/stripe/webhook", bc.HandleWebhook)

	api := app.Group("/stripe", limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Storage:    r.h.LimiterStorage,
	}))
	api.Get("/products", bc.HandleProducts)
	api.Get("/prices", bc.HandlePrices)
	api.Get("/product-popularity", bc.HandleProductPopularity)

	requireBearer := middleware.RequireBearer(r.h.Gate)
	api.Post("/create-checkout-session", requireBearer, bc.HandleCreateCheckoutSession)
	api.Get("/current-user-past-purchases", requireBearer, bc.HandlePastPurchases)
}

func NewApiRouter(h *Handlers) *ApiRouter {
	return &ApiRouter{h: h}
}
