// Package auth supplies the bearer token the API client sends. Tokens are
// passed through untouched; only an expired JWT is rejected locally.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("not signed in: no API token configured")
	ErrTokenExpired = errors.New("session expired: sign in again")
)

// Source holds a bearer token.
type Source struct {
	token string
	now   func() time.Time
}

// NewSource returns a Source for token.
func NewSource(token string) *Source {
	return &Source{token: strings.TrimSpace(token), now: time.Now}
}

// Bearer returns the token to send in the Authorization header.
func (s *Source) Bearer() (string, error) {
	if s == nil || s.token == "" {
		return "", ErrNoToken
	}
	if exp, ok := s.Expiry(); ok && !exp.After(s.now()) {
		return "", ErrTokenExpired
	}
	return s.token, nil
}

// Expiry reports the exp claim when the token is a JWT that carries one.
// The signature is not verified; the server remains the authority.
func (s *Source) Expiry() (time.Time, bool) {
	if s == nil || s.token == "" {
		return time.Time{}, false
	}
	tok, _, err := jwt.NewParser().ParseUnverified(s.token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
