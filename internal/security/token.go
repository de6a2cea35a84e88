// Package security issues opaque session tokens and derives the digests that
// are stored in their place.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// DefaultTokenBytes is the entropy of a session token.
const DefaultTokenBytes = 32

// ErrTokenEntropy is returned when the requested token size is too small to be unguessable.
var ErrTokenEntropy = errors.New("token must carry at least 16 random bytes")

// NewOpaqueToken returns a URL-safe random token and its SHA-256 hex digest.
// Only the digest may be persisted.
func NewOpaqueToken(nBytes int) (token, digest string, err error) {
	if nBytes == 0 {
		nBytes = DefaultTokenBytes
	}
	if nBytes < 16 {
		return "", "", ErrTokenEntropy
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken returns the SHA-256 hex digest of token, used as its lookup key.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenHashEqual reports in constant time whether token hashes to storedHash.
// An empty token or hash never matches.
func TokenHashEqual(token, storedHash string) bool {
	if token == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(storedHash)) == 1
}
