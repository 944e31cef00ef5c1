package controllers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
	"github.com/ManuelReschke/paygate/internal/pkg/idp"
	"github.com/ManuelReschke/paygate/internal/pkg/middleware"
)

// TokenIssuer is the identity provider side of the authorization-code flow.
type TokenIssuer interface {
	AuthorizeURL(req idp.AuthorizeRequest) (string, error)
	Exchange(ctx context.Context, req idp.ExchangeRequest) (*idp.TokenSet, error)
	Revoke(ctx context.Context, token string) (string, error)
}

// OAuthController serves the /oauth2 routes.
type OAuthController struct {
	issuer TokenIssuer
}

func NewOAuthController(issuer TokenIssuer) *OAuthController {
	return &OAuthController{issuer: issuer}
}

// HandleAuthorize redirects the browser to the provider's hosted login.
func (oc *OAuthController) HandleAuthorize(c *fiber.Ctx) error {
	url, err := oc.issuer.AuthorizeURL(idp.AuthorizeRequest{
		State:            c.Query("state"),
		RedirectURI:      c.Query("redirect_uri"),
		IdentityProvider: c.Query("identity_provider"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Redirect(url, fiber.StatusFound)
}

// HandleToken exchanges a code or refresh token and stores the access token
// in the Authorization cookie.
func (oc *OAuthController) HandleToken(c *fiber.Ctx) error {
	tokens, err := oc.issuer.Exchange(c.UserContext(), idp.ExchangeRequest{
		GrantType:    strings.TrimSpace(c.FormValue("grant_type")),
		Code:         strings.TrimSpace(c.FormValue("code")),
		RefreshToken: strings.TrimSpace(c.FormValue("refresh_token")),
		RedirectURI:  strings.TrimSpace(c.FormValue("redirect_uri")),
	})
	if err != nil {
		return respondError(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AuthorizationCookie,
		Value:    "Bearer " + tokens.AccessToken,
		Secure:   true,
		SameSite: fiber.CookieSameSiteNoneMode,
	})
	return c.JSON(tokens)
}

// HandleRevoke revokes a refresh token and relays the provider's response text.
func (oc *OAuthController) HandleRevoke(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return respondError(c, apperr.New(apperr.KindInvalidRequest, "token is required"))
	}
	text, err := oc.issuer.Revoke(c.UserContext(), token)
	if err != nil {
		return respondError(c, err)
	}
	return c.SendString(text)
}

// HandleValidateToken runs behind the bearer gate, so reaching it means the
// credential verified.
func (oc *OAuthController) HandleValidateToken(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"valid":       true,
		"description": "token is valid",
	})
}
