// Package idp talks to the managed identity provider: the OAuth2 authorize,
// token and revoke endpoints and the user directory.
package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/oauth2"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
	"github.com/ManuelReschke/paygate/internal/pkg/secrets"
)

const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"

	defaultExchangeAttempts = 3
	maxResponseBodySize     = 1 << 20
)

// Federated identity providers accepted by the authorize endpoint.
var IdentityProviders = []string{"Facebook", "Google", "LoginWithAmazon", "SignInWithApple"}

// TokenVerifier validates bearer credentials.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// TokenSet is the token endpoint's successful response.
type TokenSet struct {
	IDToken      string `json:"id_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// AuthorizeRequest carries the optional authorize parameters.
type AuthorizeRequest struct {
	State            string
	RedirectURI      string
	IdentityProvider string
}

// ExchangeRequest carries the token endpoint form fields.
type ExchangeRequest struct {
	GrantType    string
	Code         string
	RefreshToken string
	RedirectURI  string
}

// Config describes the identity provider client.
type Config struct {
	DomainURL          string
	ClientID           string
	DefaultRedirectURI string
}

// Client drives the authorization-code and refresh-token flows.
type Client struct {
	cfg         Config
	oauth       *oauth2.Config
	httpClient  *http.Client
	verifier    TokenVerifier
	maxAttempts int
	sleep       secrets.SleepFunc
}

// NewClient creates an exchange engine for the provider at cfg.DomainURL.
func NewClient(cfg Config, verifier TokenVerifier) *Client {
	domain := strings.TrimRight(cfg.DomainURL, "/")
	cfg.DomainURL = domain
	return &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.DefaultRedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   domain + "/oauth2/authorize",
				TokenURL:  domain + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		verifier:    verifier,
		maxAttempts: defaultExchangeAttempts,
		sleep:       secrets.Sleep,
	}
}

// WithSleep replaces the backoff sleeper (tests).
func (c *Client) WithSleep(sleep secrets.SleepFunc) *Client {
	c.sleep = sleep
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// AuthorizeURL builds the provider redirect for the authorization-code flow.
func (c *Client) AuthorizeURL(req AuthorizeRequest) (string, error) {
	var opts []oauth2.AuthCodeOption
	if req.RedirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", req.RedirectURI))
	}
	if req.IdentityProvider != "" {
		if !validIdentityProvider(req.IdentityProvider) {
			return "", apperr.WithDetail(apperr.KindInvalidRequest, "invalid identity_provider",
				fmt.Sprintf("identity_provider must be one of %s", strings.Join(IdentityProviders, ", ")))
		}
		opts = append(opts, oauth2.SetAuthURLParam("identity_provider", req.IdentityProvider))
	}
	return c.oauth.AuthCodeURL(req.State, opts...), nil
}

func validIdentityProvider(name string) bool {
	for _, p := range IdentityProviders {
		if p == name {
			return true
		}
	}
	return false
}

// Exchange trades an authorization code or refresh token for a token set.
// Responses without an id_token are treated as transient and retried with
// 2^attempt second backoff; the returned access token is always verified.
func (c *Client) Exchange(ctx context.Context, req ExchangeRequest) (*TokenSet, error) {
	form, err := c.exchangeForm(req)
	if err != nil {
		return nil, err
	}

	var lastRaw string
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		raw, err := c.postForm(ctx, c.oauth.Endpoint.TokenURL, form)
		if err != nil {
			lastRaw = err.Error()
		} else {
			lastRaw = string(raw)
			if ts, ok := decodeTokenSet(raw); ok {
				return c.verified(ctx, ts)
			}
		}

		log.Warnf("[OAuth2] Token response without id_token (attempt %d/%d)", attempt+1, c.maxAttempts)
		if err := c.sleep(ctx, time.Duration(1<<attempt)*time.Second); err != nil {
			return nil, apperr.Wrap(apperr.KindProviderTransientFailure, "token exchange cancelled", err)
		}
	}
	return nil, apperr.WithDetail(apperr.KindProviderTransientFailure,
		fmt.Sprintf("token exchange failed after %d attempts", c.maxAttempts), lastRaw)
}

func (c *Client) exchangeForm(req ExchangeRequest) (url.Values, error) {
	form := url.Values{}
	switch req.GrantType {
	case GrantAuthorizationCode:
		if strings.TrimSpace(req.Code) == "" {
			return nil, apperr.New(apperr.KindInvalidRequest, "code is required for grant_type authorization_code")
		}
		form.Set("code", req.Code)
	case GrantRefreshToken:
		if strings.TrimSpace(req.RefreshToken) == "" {
			return nil, apperr.New(apperr.KindInvalidRequest, "refresh_token is required for grant_type refresh_token")
		}
		form.Set("refresh_token", req.RefreshToken)
	default:
		return nil, apperr.New(apperr.KindInvalidRequest, "grant_type must be authorization_code or refresh_token")
	}
	form.Set("grant_type", req.GrantType)
	form.Set("client_id", c.cfg.ClientID)

	redirect := req.RedirectURI
	if redirect == "" && req.GrantType == GrantAuthorizationCode {
		redirect = c.cfg.DefaultRedirectURI
	}
	if redirect != "" {
		form.Set("redirect_uri", redirect)
	}
	return form, nil
}

func decodeTokenSet(raw []byte) (*TokenSet, bool) {
	var ts TokenSet
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil, false
	}
	if ts.IDToken == "" {
		return nil, false
	}
	return &ts, true
}

func (c *Client) verified(ctx context.Context, ts *TokenSet) (*TokenSet, error) {
	ok, err := c.verifier.Verify(ctx, ts.AccessToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindUnverifiedToken, "unverified JWT")
	}
	return ts, nil
}

// Revoke revokes a refresh token and returns the provider's raw response body.
func (c *Client) Revoke(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", apperr.New(apperr.KindInvalidRequest, "token is required")
	}
	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", c.cfg.ClientID)

	raw, err := c.postForm(ctx, c.cfg.DomainURL+"/oauth2/revoke", form)
	if err != nil {
		return "", apperr.Wrap(apperr.KindProviderFailure, "revoke request failed", err)
	}
	return string(raw), nil
}

// postForm returns the response body regardless of status; the token and
// revoke endpoints report failures in the body.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
}
