package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/paygate/app/controllers"
	"github.com/ManuelReschke/paygate/internal/pkg/config"
	"github.com/ManuelReschke/paygate/internal/pkg/middleware"
)

type rejectAll struct{}

func (rejectAll) Verify(context.Context, string) (bool, error) { return false, nil }

func newTestApp() *fiber.App {
	app := fiber.New()
	InstallRouter(app, &Handlers{
		Config:  &config.Config{Location: "local", Environment: "dev0", CORSOrigins: []string{"https://0.0.0.0:3000"}},
		Gate:    middleware.NewGate(rejectAll{}),
		OAuth:   controllers.NewOAuthController(nil),
		Billing: controllers.NewBillingController(nil, nil, nil, nil, nil),
		User:    controllers.NewUserController(nil, nil),
	})
	return app
}

func TestRootRoute(t *testing.T) {
	resp, err := newTestApp().Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	app := newTestApp()
	routes := []struct{ method, path string }{
		{http.MethodGet, "/user"},
		{http.MethodPost, "/user/billing-customer"},
		{http.MethodGet, "/oauth2/validate-token"},
		{http.MethodPost, "/stripe/create-checkout-session"},
		{http.MethodGet, "/stripe/current-user-past-purchases"},
	}
	for _, r := range routes {
		resp, err := app.Test(httptest.NewRequest(r.method, r.path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, r.path)

		req := httptest.NewRequest(r.method, r.path, nil)
		req.Header.Set("Cookie", `Authorization="Bearer forged"`)
		resp, err = app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, r.path)
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/stripe/products", nil)
	req.Header.Set("Origin", "https://0.0.0.0:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := newTestApp().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://0.0.0.0:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestLimiterStorageDisabledWithoutCache(t *testing.T) {
	assert.Nil(t, NewLimiterStorage(&config.Config{}))
}
