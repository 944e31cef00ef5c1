package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// KeySet is a published JSON Web Key Set.
type KeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// JSONWebKey is a single public key entry. Only RSA keys are supported, which
// is what the identity provider publishes for RS256 tokens.
type JSONWebKey struct {
	KeyID     string `json:"kid"`
	KeyType   string `json:"kty"`
	Algorithm string `json:"alg,omitempty"`
	Use       string `json:"use,omitempty"`
	N         string `json:"n"`
	E         string `json:"e"`
}

// Find returns the key with the given id.
func (s *KeySet) Find(kid string) (JSONWebKey, bool) {
	if s == nil {
		return JSONWebKey{}, false
	}
	for _, k := range s.Keys {
		if k.KeyID == kid {
			return k, true
		}
	}
	return JSONWebKey{}, false
}

// RSAPublicKey constructs the verification key from the modulus and exponent.
func (k JSONWebKey) RSAPublicKey() (*rsa.PublicKey, error) {
	if !strings.EqualFold(k.KeyType, "RSA") {
		return nil, fmt.Errorf("unsupported key type %q for kid %s", k.KeyType, k.KeyID)
	}
	n, err := decodeSegment(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := decodeSegment(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(n) == 0 || len(e) == 0 {
		return nil, errors.New("key is missing modulus or exponent")
	}
	exponent := new(big.Int).SetBytes(e)
	if !exponent.IsInt64() || exponent.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(exponent.Int64()),
	}, nil
}

func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
