// Package jwks verifies bearer tokens against the identity provider's
// published signing keys.
package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
)

const (
	defaultTTL        = 10 * time.Minute
	minForcedRefresh  = 30 * time.Second
	maxKeySetBodySize = 1 << 20
)

// Verifier checks token signatures against a rotating key set.
type Verifier struct {
	url     string
	client  *http.Client
	cache   Cache
	ttl     time.Duration
	methods []string
	now     func() time.Time

	mu          sync.Mutex
	lastRefresh time.Time
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithCache sets the key set cache and its TTL. A nil cache disables caching,
// which fetches the key set on every verification.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(v *Verifier) {
		v.cache = c
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithHTTPClient replaces the HTTP client used to fetch the key set.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a verifier for the key set published at jwksURL.
func NewVerifier(jwksURL string, opts ...Option) *Verifier {
	v := &Verifier{
		url:     jwksURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   NewMemoryCache(),
		ttl:     defaultTTL,
		methods: []string{"RS256", "RS384", "RS512"},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify reports whether token carries a valid signature from a published key
// and is within its validity window. Unparsable tokens, unknown key ids and
// infrastructure failures are returned as classified errors so callers can
// tell them apart from a token that is merely invalid.
func (v *Verifier) Verify(ctx context.Context, token string) (bool, error) {
	kid, err := keyID(token)
	if err != nil {
		return false, err
	}

	key, err := v.lookup(ctx, kid)
	if err != nil {
		return false, err
	}
	pub, err := key.RSAPublicKey()
	if err != nil {
		return false, &apperr.Error{Kind: apperr.KindInvalidToken, Message: "invalid token", Detail: err.Error(), Cause: err}
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return pub, nil
	},
		jwt.WithValidMethods(v.methods),
		jwt.WithTimeFunc(v.now),
	)
	switch {
	case err == nil:
		return parsed.Valid, nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return false, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return false, &apperr.Error{Kind: apperr.KindMalformedToken, Message: "malformed token", Detail: err.Error(), Cause: err}
	default:
		return false, &apperr.Error{Kind: apperr.KindInvalidToken, Message: "invalid token", Detail: err.Error(), Cause: err}
	}
}

func keyID(token string) (string, error) {
	if strings.Count(token, ".") != 2 {
		return "", apperr.WithDetail(apperr.KindMalformedToken, "malformed token", "token must have three segments")
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", &apperr.Error{Kind: apperr.KindMalformedToken, Message: "malformed token", Detail: err.Error(), Cause: err}
	}
	kid, _ := parsed.Header["kid"].(string)
	if kid == "" {
		return "", apperr.WithDetail(apperr.KindUnknownSigningKey, "unknown signing key", "token header has no kid")
	}
	return kid, nil
}

// lookup finds kid in the key set. A miss against a cached set forces one
// refresh before the key is declared unknown, so rotations are picked up
// without waiting for the TTL.
func (v *Verifier) lookup(ctx context.Context, kid string) (JSONWebKey, error) {
	set, cached, err := v.keySet(ctx, false)
	if err != nil {
		return JSONWebKey{}, err
	}
	if key, ok := set.Find(kid); ok {
		return key, nil
	}
	if cached && v.allowForcedRefresh() {
		log.Infof("[JWKS] Key %s not in cached key set, refreshing", kid)
		set, _, err = v.keySet(ctx, true)
		if err != nil {
			return JSONWebKey{}, err
		}
		if key, ok := set.Find(kid); ok {
			return key, nil
		}
	}
	return JSONWebKey{}, apperr.WithDetail(apperr.KindUnknownSigningKey, "unknown signing key", fmt.Sprintf("no public key found for kid %s", kid))
}

func (v *Verifier) allowForcedRefresh() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now().Sub(v.lastRefresh) >= minForcedRefresh
}

func (v *Verifier) cacheKey() string {
	return "jwks:" + v.url
}

func (v *Verifier) keySet(ctx context.Context, refresh bool) (*KeySet, bool, error) {
	if !refresh && v.cache != nil {
		if raw, ok := v.cache.Get(ctx, v.cacheKey()); ok {
			var set KeySet
			if err := json.Unmarshal(raw, &set); err == nil {
				return &set, true, nil
			}
			log.Warnf("[JWKS] Discarding undecodable cached key set")
		}
	}

	raw, err := v.fetch(ctx)
	if err != nil {
		return nil, false, &apperr.Error{Kind: apperr.KindInvalidToken, Message: "invalid token", Detail: err.Error(), Cause: err}
	}
	var set KeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		err = fmt.Errorf("decode key set: %w", err)
		return nil, false, &apperr.Error{Kind: apperr.KindInvalidToken, Message: "invalid token", Detail: err.Error(), Cause: err}
	}

	v.mu.Lock()
	v.lastRefresh = v.now()
	v.mu.Unlock()
	if v.cache != nil {
		v.cache.Set(ctx, v.cacheKey(), raw, v.ttl)
	}
	return &set, false, nil
}

func (v *Verifier) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch key set: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBodySize))
	if err != nil {
		return nil, fmt.Errorf("read key set: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch key set: status=%d body=%s", resp.StatusCode, string(body))
	}
	return body, nil
}
