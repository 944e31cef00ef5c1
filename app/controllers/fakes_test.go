package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
	"github.com/ManuelReschke/paygate/internal/pkg/billing"
	"github.com/ManuelReschke/paygate/internal/pkg/docstore"
	"github.com/ManuelReschke/paygate/internal/pkg/idp"
	"github.com/ManuelReschke/paygate/internal/pkg/middleware"
)

const goodToken = "good-token"

type fakeTokenVerifier struct{}

func (fakeTokenVerifier) Verify(_ context.Context, token string) (bool, error) {
	return token == goodToken, nil
}

func bearerGate() fiber.Handler {
	return middleware.RequireBearer(middleware.NewGate(fakeTokenVerifier{}))
}

func withBearer(req *http.Request) *http.Request {
	req.Header.Set("Cookie", `Authorization="Bearer `+goodToken+`"`)
	return req
}

type fakeIssuer struct {
	authorizeReq idp.AuthorizeRequest
	exchangeReq  idp.ExchangeRequest
	revoked      string
	tokens       *idp.TokenSet
	err          error
}

func (f *fakeIssuer) AuthorizeURL(req idp.AuthorizeRequest) (string, error) {
	f.authorizeReq = req
	if req.IdentityProvider == "MySpace" {
		return "", apperr.New(apperr.KindInvalidRequest, "invalid identity_provider")
	}
	return "https://auth.example.com/oauth2/authorize?state=" + req.State, nil
}

func (f *fakeIssuer) Exchange(_ context.Context, req idp.ExchangeRequest) (*idp.TokenSet, error) {
	f.exchangeReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}

func (f *fakeIssuer) Revoke(_ context.Context, token string) (string, error) {
	f.revoked = token
	return "", f.err
}

type fakeVerifier struct {
	event *billing.Event
	err   error
}

func (f *fakeVerifier) Verify(payload []byte, signature string) (*billing.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.event, nil
}

type fakeApplier struct {
	calls []string
	err   error
}

func (f *fakeApplier) ApplyEvent(_ context.Context, eventType string, _ map[string]any) (*billing.Result, error) {
	f.calls = append(f.calls, eventType)
	if f.err != nil {
		return nil, f.err
	}
	return &billing.Result{Message: "event type " + eventType + " handled"}, nil
}

type fakeArchiver struct {
	ids []string
	err error
}

func (f *fakeArchiver) Archive(_ context.Context, id string, _ []byte) error {
	f.ids = append(f.ids, id)
	return f.err
}

type fakeCheckout struct {
	customerID string
	url        string
	got        billing.CheckoutRequest
	err        error
}

func (f *fakeCheckout) CustomerID(context.Context, string) (string, error) {
	if f.customerID == "" {
		return "", apperr.New(apperr.KindCustomerNotProvisioned, "no billing customer is linked to this user")
	}
	return f.customerID, nil
}

func (f *fakeCheckout) CreateSession(_ context.Context, _ string, req billing.CheckoutRequest) (string, error) {
	f.got = req
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeListings struct {
	purchasesFor string
}

func (f *fakeListings) Products(context.Context) ([]docstore.Item, error) {
	return []docstore.Item{{"id": "prod_a", "active": true}}, nil
}

func (f *fakeListings) Prices(context.Context) ([]docstore.Item, error) {
	return []docstore.Item{{"id": "price_a", "active": true}}, nil
}

func (f *fakeListings) Popularity(context.Context) ([]billing.RankedProduct, error) {
	return []billing.RankedProduct{
		{ID: "prod_b", Name: "Beta", Images: []string{}, Quantity: 3},
		{ID: "prod_a", Name: "Alpha", Images: []string{}, Quantity: 2},
	}, nil
}

func (f *fakeListings) PastPurchases(_ context.Context, customerID string) ([]docstore.Item, error) {
	f.purchasesFor = customerID
	return []docstore.Item{{"id": "cs_1", "customer": customerID}}, nil
}

type fakeDirectory struct {
	user *idp.User
}

func (f *fakeDirectory) GetUser(context.Context, string) (*idp.User, error) {
	return f.user, nil
}

func (f *fakeDirectory) SetAttribute(context.Context, string, string, string) error {
	return nil
}

type fakeProvisioner struct {
	id      string
	created bool
}

func (f *fakeProvisioner) ProvisionCustomer(context.Context, string) (string, bool, error) {
	return f.id, f.created, nil
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out), string(raw))
}
