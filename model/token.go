package model

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
)

// TokenBytes is the entropy of an unsubscribe token; hex encoding doubles its length.
const TokenBytes = 32

var reToken = regexp.MustCompile(`^[a-f0-9]{64}$`)

// NewUnsubscribeToken returns 64 lowercase hex characters from a secure random source.
func NewUnsubscribeToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidToken reports whether token has the shape of an unsubscribe token.
func ValidToken(token string) bool {
	return reToken.MatchString(token)
}
