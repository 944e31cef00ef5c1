package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
)

// Provider is the remote billing system mirrored into the document store.
// Listed objects are the provider's own JSON representation, references
// left unexpanded.
type Provider interface {
	ListLineItems(ctx context.Context, sessionID string) ([]any, error)
	ListProducts(ctx context.Context, limit int64) ([]map[string]any, error)
	ListPrices(ctx context.Context, limit int64) ([]map[string]any, error)
	ListCustomers(ctx context.Context, limit int64) ([]map[string]any, error)
	ListCompletedCheckoutSessions(ctx context.Context, limit int64) ([]map[string]any, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (string, error)
	CreateCustomer(ctx context.Context, in CustomerInput) (string, error)
}

// CheckoutSessionInput describes a one-off payment session.
type CheckoutSessionInput struct {
	CustomerID string
	LineItems  []LineItem
	SuccessURL string
	CancelURL  string
}

// CustomerInput describes a customer to create for a user.
type CustomerInput struct {
	Email          string
	Name           string
	Username       string
	IdempotencyKey string
}

// StripeProvider implements Provider with the Stripe API. The secret key is
// bound to this client only.
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

// NewStripeProviderWithBackends points the client at custom backends (stripe-mock, tests).
func NewStripeProviderWithBackends(secretKey string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, backends)}
}

func (p *StripeProvider) ListLineItems(ctx context.Context, sessionID string) ([]any, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.Limit = stripe.Int64(100)
	params.Single = true

	it := p.api.CheckoutSessions.ListLineItems(params)
	if err := it.Err(); err != nil {
		return nil, providerError("list line items", err)
	}
	data, err := rawPage(it.LineItemList().LastResponse)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(data))
	for _, d := range data {
		out = append(out, d)
	}
	return out, nil
}

func (p *StripeProvider) ListProducts(ctx context.Context, limit int64) ([]map[string]any, error) {
	params := &stripe.ProductListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)
	params.Single = true

	it := p.api.Products.List(params)
	if err := it.Err(); err != nil {
		return nil, providerError("list products", err)
	}
	return rawPage(it.ProductList().LastResponse)
}

func (p *StripeProvider) ListPrices(ctx context.Context, limit int64) ([]map[string]any, error) {
	params := &stripe.PriceListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)
	params.Single = true

	it := p.api.Prices.List(params)
	if err := it.Err(); err != nil {
		return nil, providerError("list prices", err)
	}
	return rawPage(it.PriceList().LastResponse)
}

func (p *StripeProvider) ListCustomers(ctx context.Context, limit int64) ([]map[string]any, error) {
	params := &stripe.CustomerListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)
	params.Single = true

	it := p.api.Customers.List(params)
	if err := it.Err(); err != nil {
		return nil, providerError("list customers", err)
	}
	return rawPage(it.CustomerList().LastResponse)
}

func (p *StripeProvider) ListCompletedCheckoutSessions(ctx context.Context, limit int64) ([]map[string]any, error) {
	params := &stripe.CheckoutSessionListParams{Status: stripe.String(string(stripe.CheckoutSessionStatusComplete))}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)
	params.Single = true

	it := p.api.CheckoutSessions.List(params)
	if err := it.Err(); err != nil {
		return nil, providerError("list checkout sessions", err)
	}
	return rawPage(it.CheckoutSessionList().LastResponse)
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(in.CustomerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.Context = ctx
	for _, li := range in.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(li.Price),
			Quantity: stripe.Int64(li.Quantity),
		})
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", providerError("create checkout session", err)
	}
	return sess.URL, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	if in.Name != "" {
		params.Name = stripe.String(in.Name)
	}
	if in.Username != "" {
		params.AddMetadata("username", in.Username)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	cus, err := p.api.Customers.New(params)
	if err != nil {
		return "", providerError("create customer", err)
	}
	return cus.ID, nil
}

// rawPage decodes the data array of a list response exactly as the provider
// sent it.
func rawPage(resp *stripe.APIResponse) ([]map[string]any, error) {
	if resp == nil {
		return nil, apperr.New(apperr.KindProviderFailure, "list response without body")
	}
	var page struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.RawJSON, &page); err != nil {
		return nil, apperr.Wrap(apperr.KindProviderFailure, "decode list response", err)
	}
	return page.Data, nil
}

// providerError keeps the provider's human-readable message, code and status.
func providerError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if msg == "" {
			msg = fmt.Sprintf("%s failed", op)
		}
		return &apperr.Error{
			Kind:    apperr.KindProviderFailure,
			Message: msg,
			Code:    string(se.Code),
			Status:  se.HTTPStatusCode,
			Cause:   err,
		}
	}
	return apperr.Wrap(apperr.KindProviderFailure, op+" failed", err)
}
