package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"time"

	"testapi/internal/auth/provider"
	"testapi/internal/session"
)

func generateState(state provider.StateStore, ttl time.Duration) (string, error) {
	st, err := session.GenerateToken()
	if err != nil {
		return "", err
	}
	if err := state.Set(session.CookieOIDCState, st, ttl); err != nil {
		return "", err
	}
	return st, nil
}

func validateState(state provider.StateStore, got string) bool {
	if got == "" {
		return false
	}
	want, ok := state.Get(session.CookieOIDCState)
	if !ok {
		return false
	}
	return constantTimeEqual(want, got)
}

// generatePKCE stores the verifier and returns the S256 challenge.
func generatePKCE(state provider.StateStore, ttl time.Duration) (string, error) {
	verifier, err := session.GenerateToken()
	if err != nil {
		return "", err
	}
	if err := state.Set(session.CookieOIDCVerifier, verifier, ttl); err != nil {
		return "", err
	}
	return pkceChallenge(verifier), nil
}

func pkceChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
