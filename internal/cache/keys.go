package cache

import "github.com/sumire/socialauth/internal/domain"

// Key namespaces are shared with other deployments reading the same cache.
const (
	userPrefix          = "user:"
	refreshTokenPrefix  = "refresh-token:"
	blacklistPrefix     = "blacklist:access-token:"
	providerTokenPrefix = "access-token:"
)

// UserKey returns the key of a user snapshot.
func UserKey(uuid string) string {
	return userPrefix + uuid
}

// RefreshTokenKey returns the ledger key of the active refresh token.
func RefreshTokenKey(uuid string, provider domain.Provider) string {
	return refreshTokenPrefix + uuid + ":" + string(provider)
}

// BlacklistKey returns the revocation marker key of an access token.
func BlacklistKey(accessToken string) string {
	return blacklistPrefix + accessToken
}

// ProviderTokenKey returns the key of a provider access token record.
// id is the "<uuid>:<provider>" record identifier.
func ProviderTokenKey(id string) string {
	return providerTokenPrefix + id
}
