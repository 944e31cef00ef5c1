package billing

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
	"github.com/ManuelReschke/paygate/internal/pkg/idp"
)

const (
	ReturnRedirect = "redirect"
	ReturnJSON     = "json"
)

// LineItem is one price and quantity in a checkout request.
type LineItem struct {
	Price    string `json:"price" validate:"required"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
}

// CheckoutRequest is a request to pay for line items.
type CheckoutRequest struct {
	LineItems  []LineItem `validate:"required,min=1,dive"`
	ReturnType string     `validate:"omitempty,oneof=redirect json"`
	SuccessURL string     `validate:"omitempty,url"`
	CancelURL  string     `validate:"omitempty,url"`
}

// Checkout creates payment sessions for authenticated users.
type Checkout struct {
	directory   idp.Directory
	provider    Provider
	local       bool
	frontendURL string
}

// NewCheckout creates the orchestrator. In local mode missing return URLs
// default to frontendURL.
func NewCheckout(directory idp.Directory, provider Provider, local bool, frontendURL string) *Checkout {
	return &Checkout{
		directory:   directory,
		provider:    provider,
		local:       local,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// CustomerID returns the billing customer linked to the token's user.
func (c *Checkout) CustomerID(ctx context.Context, accessToken string) (string, error) {
	user, err := c.directory.GetUser(ctx, accessToken)
	if err != nil {
		return "", err
	}
	id, ok := user.Attribute(idp.AttributeStripeCustomerID)
	if !ok || strings.TrimSpace(id) == "" {
		return "", apperr.New(apperr.KindCustomerNotProvisioned, "no billing customer is linked to this user")
	}
	return id, nil
}

// CreateSession returns the hosted checkout URL for req.
func (c *Checkout) CreateSession(ctx context.Context, accessToken string, req CheckoutRequest) (string, error) {
	successURL, cancelURL, err := c.returnURLs(req)
	if err != nil {
		return "", err
	}
	customerID, err := c.CustomerID(ctx, accessToken)
	if err != nil {
		return "", err
	}

	url, err := c.provider.CreateCheckoutSession(ctx, CheckoutSessionInput{
		CustomerID: customerID,
		LineItems:  req.LineItems,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		log.Warnf("[Checkout] Creating session for customer %s failed: %v", customerID, err)
		return "", err
	}
	return url, nil
}

func (c *Checkout) returnURLs(req CheckoutRequest) (string, string, error) {
	success, cancel := req.SuccessURL, req.CancelURL
	if c.local {
		if success == "" {
			success = c.frontendURL + "?success=true"
		}
		if cancel == "" {
			cancel = c.frontendURL + "?canceled=true"
		}
	}
	if success == "" || cancel == "" {
		return "", "", apperr.New(apperr.KindInvalidRequest, "success_url and cancel_url are required")
	}
	return success, cancel, nil
}

// ProvisionCustomer links a new billing customer to the user unless one is
// already linked. It reports whether a customer was created.
func (c *Checkout) ProvisionCustomer(ctx context.Context, accessToken string) (string, bool, error) {
	user, err := c.directory.GetUser(ctx, accessToken)
	if err != nil {
		return "", false, err
	}
	if id, ok := user.Attribute(idp.AttributeStripeCustomerID); ok && strings.TrimSpace(id) != "" {
		return id, false, nil
	}

	email, _ := user.Attribute("email")
	name, _ := user.Attribute("name")
	id, err := c.provider.CreateCustomer(ctx, CustomerInput{
		Email:          email,
		Name:           name,
		Username:       user.Username,
		IdempotencyKey: "provision-customer-" + user.Username,
	})
	if err != nil {
		return "", false, err
	}
	if err := c.directory.SetAttribute(ctx, accessToken, idp.AttributeStripeCustomerID, id); err != nil {
		return "", false, err
	}

	log.Infof("[Checkout] Provisioned billing customer %s for user %s", id, user.Username)
	return id, true, nil
}
