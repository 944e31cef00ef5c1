package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
	"github.com/ManuelReschke/paygate/internal/pkg/jwks"
	"github.com/ManuelReschke/paygate/internal/pkg/jwks/jwkstest"
)

type stubVerifier struct {
	ok    bool
	err   error
	calls int
}

func (s *stubVerifier) Verify(context.Context, string) (bool, error) {
	s.calls++
	return s.ok, s.err
}

func TestAuthenticateRejectsMissingOrWrongScheme(t *testing.T) {
	v := &stubVerifier{ok: true}
	gate := NewGate(v)

	for _, raw := range []string{"", "   ", "Bearer", "Bearer   ", "Basic abc", "token-without-scheme"} {
		_, err := gate.Authenticate(context.Background(), raw)
		require.Error(t, err, raw)
		assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err), raw)
	}
	assert.Zero(t, v.calls, "verifier must not be consulted without a credential")
}

func TestAuthenticate(t *testing.T) {
	gate := NewGate(&stubVerifier{ok: true})
	token, err := gate.Authenticate(context.Background(), "bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	gate = NewGate(&stubVerifier{ok: false})
	_, err = gate.Authenticate(context.Background(), "Bearer abc.def.ghi")
	assert.Equal(t, apperr.KindInvalidToken, apperr.KindOf(err))

	gate = NewGate(&stubVerifier{err: apperr.New(apperr.KindUnknownSigningKey, "unknown signing key")})
	_, err = gate.Authenticate(context.Background(), "Bearer abc.def.ghi")
	assert.Equal(t, apperr.KindUnknownSigningKey, apperr.KindOf(err))
}

func newProtectedApp(gate *Gate) *fiber.App {
	app := fiber.New()
	app.Get("/user", RequireBearer(gate), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"token": AccessToken(c)})
	})
	return app
}

func requestWithCookie(value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	if value != "" {
		req.Header.Set("Cookie", AuthorizationCookie+"="+value)
	}
	return req
}

func TestRequireBearerWithIssuedTokens(t *testing.T) {
	iss := jwkstest.NewIssuer(t, "k1")
	app := newProtectedApp(NewGate(jwks.NewVerifier(iss.URL())))

	valid := iss.Sign(t, "k1", "user-1", time.Hour)
	resp, err := app.Test(requestWithCookie("Bearer " + valid))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, valid, body["token"])

	tests := []struct {
		name   string
		cookie string
		kind   apperr.Kind
	}{
		{"missing", "", apperr.KindUnauthenticated},
		{"expired", "Bearer " + iss.Sign(t, "k1", "user-1", -time.Minute), apperr.KindInvalidToken},
		{"malformed", "Bearer not-a-jwt", apperr.KindMalformedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(requestWithCookie(tt.cookie))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, string(tt.kind), body["error"])
			assert.NotContains(t, string(raw), "token\":\"")
		})
	}
}
