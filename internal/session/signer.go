package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidCookie = errors.New("session: invalid cookie")

// Signer makes cookie values tamper-evident. Each value is an HS256 JWT
// whose subject is the cookie name, so a value lifted from one cookie
// does not verify under another.
type Signer struct {
	key []byte
	now func() time.Time
}

type cookieClaims struct {
	Value string `json:"v"`
	jwt.RegisteredClaims
}

func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session: signing secret must be at least 32 bytes, got %d", len(secret))
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Signer{key: key, now: time.Now}, nil
}

func (s *Signer) Sign(name, value string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := cookieClaims{
		Value: value,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("session: failed to sign %s: %w", name, err)
	}
	return signed, nil
}

func (s *Signer) Verify(name, token string) (string, error) {
	var claims cookieClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(name),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidCookie, name, err)
	}
	return claims.Value, nil
}
