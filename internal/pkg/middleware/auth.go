package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
)

const (
	// AuthorizationCookie carries the bearer credential, formatted "Bearer <token>".
	AuthorizationCookie = "Authorization"
	bearerScheme        = "bearer"

	KeyAccessToken = "access_token"
)

// Verifier validates bearer credentials.
type Verifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// Gate turns a raw credential into an authenticated access token.
type Gate struct {
	verifier Verifier
}

func NewGate(verifier Verifier) *Gate {
	return &Gate{verifier: verifier}
}

// Authenticate checks raw, the "Bearer <token>" value of the Authorization
// cookie, and returns the token when it verifies.
func (g *Gate) Authenticate(ctx context.Context, raw string) (string, error) {
	token, err := parseBearer(raw)
	if err != nil {
		return "", err
	}
	ok, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.New(apperr.KindInvalidToken, "invalid token")
	}
	return token, nil
}

func parseBearer(raw string) (string, error) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "not authenticated")
	}
	scheme, token, found := strings.Cut(raw, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", apperr.New(apperr.KindUnauthenticated, "invalid authentication credentials")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "invalid authentication credentials")
	}
	return token, nil
}

// RequireBearer rejects requests without a verified Authorization cookie and
// stores the access token for downstream handlers.
func RequireBearer(gate *Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := gate.Authenticate(c.UserContext(), c.Cookies(AuthorizationCookie))
		if err != nil {
			ae := apperr.From(err)
			if ae.Kind != apperr.KindUnauthenticated {
				log.Infof("[Auth] Rejected bearer credential on %s: %v", c.Path(), err)
			}
			return c.Status(apperr.Status(err)).JSON(ae.Body())
		}
		c.Locals(KeyAccessToken, token)
		return c.Next()
	}
}

// AccessToken returns the token stored by RequireBearer.
func AccessToken(c *fiber.Ctx) string {
	token, _ := c.Locals(KeyAccessToken).(string)
	return token
}
