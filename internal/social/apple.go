package social

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const appleClientSecretTTL = 5 * time.Minute

// AppleConfig holds the Sign in with Apple service settings. PrivateKey is
// the PEM encoded .p8 key; literal "\n" sequences are accepted.
type AppleConfig struct {
	ClientID    string
	TeamID      string
	KeyID       string
	PrivateKey  string
	RedirectURL string
	TokenURL    string
	KeysURL     string
	RevokeURL   string
	Issuer      string
}

type apple struct {
	cfg        AppleConfig
	signingKey *ecdsa.PrivateKey
	keys       keyfunc.Keyfunc
	httpClient *http.Client
	now        func() time.Time
}

func newApple(ctx context.Context, cfg AppleConfig, httpClient *http.Client, timeout time.Duration, logger *slog.Logger) (*apple, error) {
	if cfg.TeamID == "" || cfg.KeyID == "" {
		return nil, errors.New("team id and key id are required")
	}

	pem := strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n")
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	keys, err := newKeySet(ctx, keySetConfig{
		URL:        cfg.KeysURL,
		HTTPClient: httpClient,
		Timeout:    timeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return &apple{
		cfg:        cfg,
		signingKey: key,
		keys:       keys,
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

// clientSecret signs the short-lived ES256 JWT Apple accepts as client_secret.
func (a *apple) clientSecret() (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    a.cfg.TeamID,
		Subject:   a.cfg.ClientID,
		Audience:  jwt.ClaimStrings{a.cfg.Issuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(appleClientSecretTTL)),
	})
	token.Header["kid"] = a.cfg.KeyID

	secret, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign client secret: %w", err)
	}
	return secret, nil
}

func (a *apple) exchange(ctx context.Context, code string) (*Token, error) {
	secret, err := a.clientSecret()
	if err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: secret,
		RedirectURL:  a.cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			TokenURL:  a.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, errors.New("token response has no id_token")
	}
	return &Token{AccessToken: tok.AccessToken, IDToken: idToken, Expiry: tok.Expiry}, nil
}

// identity verifies the RS256 id token against Apple's published keys and
// returns its subject. Key lookups never block on the caller's context.
func (a *apple) identity(_ context.Context, tok *Token) (string, error) {
	if tok == nil || tok.IDToken == "" {
		return "", errEmptyToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithAudience(a.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)

	var claims jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(tok.IDToken, &claims, a.keys.Keyfunc)
	if err != nil {
		return "", fmt.Errorf("verify id token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("id token has no subject")
	}
	return claims.Subject, nil
}

func (a *apple) revoke(ctx context.Context, accessToken string) error {
	secret, err := a.clientSecret()
	if err != nil {
		return err
	}

	form := url.Values{
		"client_id":       {a.cfg.ClientID},
		"client_secret":   {secret},
		"token":           {accessToken},
		"token_type_hint": {"access_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke: %w", statusError(resp))
	}
	return nil
}
