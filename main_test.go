package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApplicationLocal(t *testing.T) {
	for k, v := range map[string]string{
		"COMPANY":                      "acme",
		"DEVELOPMENT_ENVIRONMENT":      "dev0",
		"DEVELOPMENT_LOCATION":         "local",
		"DOCSTORE_DRIVER":              "memory",
		"AWS_REGION":                   "us-east-1",
		"AWS_ACCESS_KEY_ID":            "test",
		"AWS_SECRET_ACCESS_KEY":        "test",
		"USER_POOL_SIGNING_KEY":        "https://idp.example/.well-known/jwks.json",
		"USER_POOL_CLIENT_ID":          "client-1",
		"USER_POOL_COGNITO_DOMAIN_URL": "https://auth.example.com",
		"STRIPE_SECRET_KEY_LOCAL":      "sk_test_local",
		"STRIPE_WEBHOOK_SECRET_LOCAL":  "whsec_local",
	} {
		t.Setenv(k, v)
	}
	t.Setenv("CACHE_HOST", "")
	t.Setenv("ARCHIVE_ENABLED", "false")

	app, cfg, closeApp, err := NewApplication(context.Background())
	require.NoError(t, err)
	defer closeApp()
	assert.True(t, cfg.IsLocal())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "local", body["DEVELOPMENT_LOCATION"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/user", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
