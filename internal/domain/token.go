package domain

import "time"

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenPair holds a first-party access token and refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Claims is the decoded content of a first-party token.
type Claims struct {
	UUID      string
	Provider  Provider
	Type      TokenType
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining returns the lifetime left at now, clamped at zero.
func (c Claims) Remaining(now time.Time) time.Duration {
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ProviderToken is the provider's own access token, kept for later unlink calls.
type ProviderToken struct {
	UUID        string    `json:"uuid" db:"user_uuid"`
	Provider    Provider  `json:"provider" db:"provider"`
	AccessToken string    `json:"access_token" db:"access_token"`
	IssuedAt    time.Time `json:"issued_at" db:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
}

// Key returns the identifier shared by the cache and durable tiers.
func (t *ProviderToken) Key() string {
	return ProviderTokenKey(t.UUID, t.Provider)
}

// ProviderTokenKey joins a user UUID and provider into a record identifier.
func ProviderTokenKey(uuid string, provider Provider) string {
	return uuid + ":" + string(provider)
}
