package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sumire/socialauth/internal/domain"
)

// CodecConfig configures the first-party token codec.
type CodecConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type tokenClaims struct {
	Provider domain.Provider  `json:"provider"`
	Type     domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 access and refresh tokens.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenCodec creates a TokenCodec.
func NewTokenCodec(cfg CodecConfig) (*TokenCodec, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	return &TokenCodec{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// RefreshTTL is the lifetime of issued refresh tokens.
func (c *TokenCodec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// Issue signs a new access and refresh token for the user. Every token gets a
// random jti, so two pairs issued within the same second still differ.
func (c *TokenCodec) Issue(userUUID string, provider domain.Provider) (domain.TokenPair, error) {
	now := c.now()

	access, err := c.sign(userUUID, provider, domain.TokenTypeAccess, now, c.accessTTL)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := c.sign(userUUID, provider, domain.TokenTypeRefresh, now, c.refreshTTL)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (c *TokenCodec) sign(sub string, provider domain.Provider, typ domain.TokenType, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Provider: provider,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   sub,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(c.secret)
}

// VerifyAccess validates an unexpired access token.
func (c *TokenCodec) VerifyAccess(token string) (domain.Claims, error) {
	claims, err := c.parse(token, domain.TokenTypeAccess, true)
	if err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", domain.ErrInvalidAccessToken, err)
	}
	return claims, nil
}

// VerifyRefresh validates an unexpired refresh token.
func (c *TokenCodec) VerifyRefresh(token string) (domain.Claims, error) {
	claims, err := c.parse(token, domain.TokenTypeRefresh, true)
	if err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", domain.ErrInvalidRefreshToken, err)
	}
	return claims, nil
}

// DecodeAccess checks the signature and issuer of an access token but not its
// expiry, so claims of an expired token can still be recovered.
func (c *TokenCodec) DecodeAccess(token string) (domain.Claims, error) {
	claims, err := c.parse(token, domain.TokenTypeAccess, false)
	if err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", domain.ErrInvalidAccessToken, err)
	}
	return claims, nil
}

func (c *TokenCodec) parse(raw string, want domain.TokenType, validateExpiry bool) (domain.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	}
	if validateExpiry {
		opts = append(opts, jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var tc tokenClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, &tc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return domain.Claims{}, err
	}

	if tc.Issuer != c.issuer {
		return domain.Claims{}, errors.New("unexpected issuer")
	}
	if tc.Type != want {
		return domain.Claims{}, fmt.Errorf("unexpected token type %q", tc.Type)
	}
	if tc.Subject == "" || tc.ExpiresAt == nil {
		return domain.Claims{}, errors.New("missing subject or expiry")
	}

	claims := domain.Claims{
		UUID:      tc.Subject,
		Provider:  tc.Provider,
		Type:      tc.Type,
		ID:        tc.ID,
		ExpiresAt: tc.ExpiresAt.Time,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	return claims, nil
}
