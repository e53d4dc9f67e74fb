package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

const tokenBytes = 32

// GenerateToken returns a random URL-safe token for CSRF and handshake
// state cookies.
func GenerateToken() (string, error) {
	var b [tokenBytes]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return "", fmt.Errorf("session: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
