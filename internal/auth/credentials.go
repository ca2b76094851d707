// Package auth issues the credentials the chat bot presents to the API.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingSecret  = errors.New("jwt secret is required")
	ErrMissingSubject = errors.New("token subject is required")
)

// TokenPair is a freshly minted static API token and the hash to configure
// as API_TOKEN_HASH.
type TokenPair struct {
	Token string
	Hash  string
}

// IssueServiceToken signs an HS256 token identifying subject. A zero ttl
// issues a token without expiry.
func IssueServiceToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if subject == "" {
		return "", ErrMissingSubject
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// HashAPIToken returns the bcrypt hash of a static API token.
func HashAPIToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// NewAPIToken generates a random static API token and its hash.
func NewAPIToken() (TokenPair, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return TokenPair{}, err
	}
	token := hex.EncodeToString(buf)
	hash, err := HashAPIToken(token)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Token: token, Hash: hash}, nil
}
