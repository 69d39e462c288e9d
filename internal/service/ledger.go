package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sumire/socialauth/internal/cache"
	"github.com/sumire/socialauth/internal/domain"
)

const blacklistMarker = "1"

// Ledger tracks the active refresh token of every (user, provider) pair and
// the blacklisted access tokens. Cache failures are returned, never absorbed.
type Ledger struct {
	cache  cache.Cache
	logger *slog.Logger
}

// NewLedger creates a Ledger.
func NewLedger(c cache.Cache, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{cache: c, logger: logger}
}

// IssueRefreshToken stores token as the only valid refresh token for the pair,
// replacing any previous one.
func (l *Ledger) IssueRefreshToken(ctx context.Context, userUUID string, provider domain.Provider, token string, ttl time.Duration) error {
	if err := l.cache.Set(ctx, cache.RefreshTokenKey(userUUID, provider), token, ttl); err != nil {
		return &domain.DataAccessError{Op: "issue refresh token", Err: err}
	}
	return nil
}

// VerifyRefreshToken reports whether presented is the stored refresh token.
func (l *Ledger) VerifyRefreshToken(ctx context.Context, userUUID string, provider domain.Provider, presented string) (bool, error) {
	stored, err := l.cache.Get(ctx, cache.RefreshTokenKey(userUUID, provider))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return false, nil
		}
		return false, &domain.DataAccessError{Op: "verify refresh token", Err: err}
	}
	return stored == presented, nil
}

// RotateRefreshToken atomically replaces presented with next. It returns false
// when presented is no longer the stored token, so of two concurrent refreshes
// with the same token only one succeeds.
func (l *Ledger) RotateRefreshToken(ctx context.Context, userUUID string, provider domain.Provider, presented, next string, ttl time.Duration) (bool, error) {
	ok, err := l.cache.CompareAndSwap(ctx, cache.RefreshTokenKey(userUUID, provider), presented, next, ttl)
	if err != nil {
		return false, &domain.DataAccessError{Op: "rotate refresh token", Err: err}
	}
	return ok, nil
}

// ConsumeRefreshToken atomically deletes the refresh token if it equals presented.
func (l *Ledger) ConsumeRefreshToken(ctx context.Context, userUUID string, provider domain.Provider, presented string) (bool, error) {
	ok, err := l.cache.CompareAndDelete(ctx, cache.RefreshTokenKey(userUUID, provider), presented)
	if err != nil {
		return false, &domain.DataAccessError{Op: "consume refresh token", Err: err}
	}
	return ok, nil
}

// RevokeRefreshToken deletes the refresh token of one pair.
func (l *Ledger) RevokeRefreshToken(ctx context.Context, userUUID string, provider domain.Provider) error {
	if err := l.cache.Del(ctx, cache.RefreshTokenKey(userUUID, provider)); err != nil {
		return &domain.DataAccessError{Op: "revoke refresh token", Err: err}
	}
	return nil
}

// RevokeAll deletes the refresh tokens of the user for every provider.
func (l *Ledger) RevokeAll(ctx context.Context, userUUID string) error {
	keys := make([]string, 0, len(domain.Providers))
	for _, p := range domain.Providers {
		keys = append(keys, cache.RefreshTokenKey(userUUID, p))
	}
	if err := l.cache.Del(ctx, keys...); err != nil {
		return &domain.DataAccessError{Op: "revoke refresh tokens", Err: err}
	}
	return nil
}

// BlacklistAccessToken marks token as revoked for its remaining lifetime.
// Tokens with no lifetime left are skipped; expiry already rejects them.
func (l *Ledger) BlacklistAccessToken(ctx context.Context, token string, remaining time.Duration) error {
	if remaining <= 0 {
		l.logger.Debug("skipping blacklist of expired access token", "token_prefix", tokenPrefix(token))
		return nil
	}
	if err := l.cache.Set(ctx, cache.BlacklistKey(token), blacklistMarker, remaining); err != nil {
		return &domain.DataAccessError{Op: "blacklist access token", Err: err}
	}
	return nil
}

// IsBlacklisted reports whether token has been revoked.
func (l *Ledger) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	ok, err := l.cache.Exists(ctx, cache.BlacklistKey(token))
	if err != nil {
		return false, &domain.DataAccessError{Op: "check blacklist", Err: err}
	}
	return ok, nil
}

// tokenPrefix returns a short prefix of a token suitable for logs.
func tokenPrefix(token string) string {
	const n = 8
	if len(token) <= n {
		return token
	}
	return token[:n]
}
