package controllers

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
	"github.com/ManuelReschke/paygate/internal/pkg/archive"
	"github.com/ManuelReschke/paygate/internal/pkg/billing"
	"github.com/ManuelReschke/paygate/internal/pkg/docstore"
	"github.com/ManuelReschke/paygate/internal/pkg/middleware"
)

type EventVerifier interface {
	Verify(payload []byte, signature string) (*billing.Event, error)
}

type EventApplier interface {
	ApplyEvent(ctx context.Context, eventType string, object map[string]any) (*billing.Result, error)
}

type CheckoutService interface {
	CustomerID(ctx context.Context, accessToken string) (string, error)
	CreateSession(ctx context.Context, accessToken string, req billing.CheckoutRequest) (string, error)
}

type Listings interface {
	Products(ctx context.Context) ([]docstore.Item, error)
	Prices(ctx context.Context) ([]docstore.Item, error)
	Popularity(ctx context.Context) ([]billing.RankedProduct, error)
	PastPurchases(ctx context.Context, customerID string) ([]docstore.Item, error)
}

// BillingController serves the /stripe routes.
type BillingController struct {
	verifier EventVerifier
	applier  EventApplier
	archiver archive.Archiver
	checkout CheckoutService
	listings Listings
	validate *validator.Validate
}

func NewBillingController(verifier EventVerifier, applier EventApplier, archiver archive.Archiver, checkout CheckoutService, listings Listings) *BillingController {
	if archiver == nil {
		archiver = archive.Noop{}
	}
	return &BillingController{
		verifier: verifier,
		applier:  applier,
		archiver: archiver,
		checkout: checkout,
		listings: listings,
		validate: validator.New(),
	}
}

// HandleWebhook verifies and applies a provider event. Nothing is written
// before the signature checks out; store failures answer 500 so the provider
// redelivers.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	event, err := bc.verifier.Verify(payload, c.Get(billing.SignatureHeader))
	if err != nil {
		log.Warnf("[Webhook] Rejected payload: %v", err)
		return respondError(c, err)
	}

	if err := bc.archiver.Archive(c.UserContext(), event.ID, payload); err != nil {
		log.Errorf("[Webhook] Archiving %s failed: %v", event.ID, err)
	}

	result, err := bc.applier.ApplyEvent(c.UserContext(), event.Type, event.Object)
	if err != nil {
		log.Errorf("[Webhook] Applying %s (%s) failed: %v", event.ID, event.Type, err)
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": result.Message})
}

// HandleCreateCheckoutSession takes a JSON array of line items; return_type,
// success_url and cancel_url come from the query string.
func (bc *BillingController) HandleCreateCheckoutSession(c *fiber.Ctx) error {
	var items []billing.LineItem
	if err := c.BodyParser(&items); err != nil {
		return respondError(c, apperr.WithDetail(apperr.KindInvalidRequest, "body must be a JSON list of line items", err.Error()))
	}

	req := billing.CheckoutRequest{
		LineItems:  items,
		ReturnType: strings.ToLower(c.Query("return_type", billing.ReturnJSON)),
		SuccessURL: c.Query("success_url"),
		CancelURL:  c.Query("cancel_url"),
	}
	if err := bc.validate.Struct(req); err != nil {
		return respondError(c, apperr.WithDetail(apperr.KindInvalidRequest, "invalid checkout request", err.Error()))
	}

	url, err := bc.checkout.CreateSession(c.UserContext(), middleware.AccessToken(c), req)
	if err != nil {
		return respondError(c, err)
	}
	if req.ReturnType == billing.ReturnRedirect {
		return c.Redirect(url, fiber.StatusSeeOther)
	}
	return c.JSON(fiber.Map{"url": url})
}

func (bc *BillingController) HandleProducts(c *fiber.Ctx) error {
	items, err := bc.listings.Products(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(items)
}

func (bc *BillingController) HandlePrices(c *fiber.Ctx) error {
	items, err := bc.listings.Prices(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(items)
}

// HandleProductPopularity lists products by quantity sold, highest first.
func (bc *BillingController) HandleProductPopularity(c *fiber.Ctx) error {
	ranked, err := bc.listings.Popularity(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ranked)
}

// HandlePastPurchases lists the caller's completed checkout sessions.
func (bc *BillingController) HandlePastPurchases(c *fiber.Ctx) error {
	customerID, err := bc.checkout.CustomerID(c.UserContext(), middleware.AccessToken(c))
	if err != nil {
		return respondError(c, err)
	}
	items, err := bc.listings.PastPurchases(c.UserContext(), customerID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(items)
}
