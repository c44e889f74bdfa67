// Package auth obtains and caches OAuth2 client-credentials tokens for the
// 24SevenOffice API.
package auth

import "time"

// DefaultLifetime is assumed when the token response carries no expires_in.
const DefaultLifetime = time.Hour

// Token is an issued access token. Tokens are never modified after issue;
// a refresh produces a new Token.
type Token struct {
	AccessToken string
	TokenType   string
	Scope       string
	IssuedAt    time.Time
	Lifetime    time.Duration
}

// ExpiresAt returns the instant the token stops being accepted.
func (t *Token) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.Lifetime)
}

// Valid reports whether the token is still usable at now with the given
// safety margin. A nil token is never valid.
func (t *Token) Valid(now time.Time, margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.ExpiresAt().After(now.Add(margin))
}

// AuthorizationHeader returns the value for the Authorization header.
func (t *Token) AuthorizationHeader() string {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + t.AccessToken
}
