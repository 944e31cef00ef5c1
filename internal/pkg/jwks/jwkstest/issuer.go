// Package jwkstest provides an in-process token issuer publishing its keys
// over HTTP, for tests of components that verify bearer tokens.
package jwkstest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs tokens and serves the matching key set.
type Issuer struct {
	Server *httptest.Server

	mu      sync.Mutex
	keys    map[string]*rsa.PrivateKey
	fetches atomic.Int32
}

// NewIssuer starts an issuer publishing a single key with id kid.
func NewIssuer(t *testing.T, kid string) *Issuer {
	t.Helper()

	iss := &Issuer{keys: make(map[string]*rsa.PrivateKey)}
	iss.AddKey(t, kid)
	iss.Server = httptest.NewServer(http.HandlerFunc(iss.serveKeySet))
	t.Cleanup(iss.Server.Close)
	return iss
}

// URL is the key set endpoint.
func (i *Issuer) URL() string {
	return i.Server.URL + "/.well-known/jwks.json"
}

// Fetches counts key set requests served.
func (i *Issuer) Fetches() int {
	return int(i.fetches.Load())
}

// AddKey publishes a new signing key.
func (i *Issuer) AddKey(t *testing.T, kid string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	i.mu.Lock()
	i.keys[kid] = key
	i.mu.Unlock()
}

// RemoveKey stops publishing kid.
func (i *Issuer) RemoveKey(kid string) {
	i.mu.Lock()
	delete(i.keys, kid)
	i.mu.Unlock()
}

// Sign issues a token for subject signed with kid, valid for ttl (negative
// ttl yields an expired token).
func (i *Issuer) Sign(t *testing.T, kid, subject string, ttl time.Duration) string {
	t.Helper()
	i.mu.Lock()
	key, ok := i.keys[kid]
	i.mu.Unlock()
	if !ok {
		t.Fatalf("no key %s", kid)
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":       subject,
		"scope":     "openid profile",
		"token_use": "access",
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	})
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (i *Issuer) serveKeySet(w http.ResponseWriter, _ *http.Request) {
	i.fetches.Add(1)

	i.mu.Lock()
	keys := make([]map[string]string, 0, len(i.keys))
	for kid, key := range i.keys {
		keys = append(keys, map[string]string{
			"kid": kid,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	}
	i.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
}
