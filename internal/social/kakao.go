package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
)

// KakaoConfig holds the Kakao REST API application settings.
type KakaoConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenURL     string
	UserInfoURL  string
	UnlinkURL    string
}

type kakao struct {
	oauth       *oauth2.Config
	userInfoURL string
	unlinkURL   string
	httpClient  *http.Client
}

func newKakao(cfg KakaoConfig, httpClient *http.Client) *kakao {
	return &kakao{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		unlinkURL:   cfg.UnlinkURL,
		httpClient:  httpClient,
	}
}

func (k *kakao) exchange(ctx context.Context, code string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, k.httpClient)

	tok, err := k.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errEmptyToken
	}

	idToken, _ := tok.Extra("id_token").(string)
	return &Token{AccessToken: tok.AccessToken, IDToken: idToken, Expiry: tok.Expiry}, nil
}

type kakaoUser struct {
	ID int64 `json:"id"`
}

func (k *kakao) identity(ctx context.Context, tok *Token) (string, error) {
	if tok == nil || tok.AccessToken == "" {
		return "", errEmptyToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch user info: %w", statusError(resp))
	}

	var user kakaoUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("decode user info: %w", err)
	}
	if user.ID == 0 {
		return "", errors.New("user info has no id")
	}
	return strconv.FormatInt(user.ID, 10), nil
}

func (k *kakao) revoke(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.unlinkURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unlink: %w", statusError(resp))
	}
	return nil
}
