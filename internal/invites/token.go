package invites

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	TokenPrefix = "tpi_"
	TokenBytes  = 32
)

// GenerateToken returns a fresh invitation secret and its storage hash.
func GenerateToken() (token string, hash []byte, err error) {
	randomBytes := make([]byte, TokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = TokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return token, HashToken(token), nil
}

func HashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// ValidTokenFormat reports whether token could have been produced by
// GenerateToken. It says nothing about whether the token exists.
func ValidTokenFormat(token string) bool {
	encoded, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok {
		return false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	return len(decoded) == TokenBytes
}
