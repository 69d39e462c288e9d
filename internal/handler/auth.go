package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/socialauth/internal/domain"
	"github.com/sumire/socialauth/internal/service"
)

// AuthService is the orchestrator surface exposed over HTTP.
type AuthService interface {
	Authenticator
	Signup(ctx context.Context, in service.SignupInput) (*domain.User, error)
	Login(ctx context.Context, provider domain.Provider, code string) (*service.LoginResult, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (domain.TokenPair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Withdraw(ctx context.Context, accessToken string) error
	Me(ctx context.Context, userUUID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userUUID string, upd service.ProfileUpdate) (*domain.User, error)
	CheckNickname(ctx context.Context, nickname string) (bool, error)
	ReportUser(ctx context.Context, reporterUUID, targetUUID string) error
}

// AuthHandler handles authentication and profile endpoints.
type AuthHandler struct {
	auth AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type signupRequest struct {
	Nickname       string `json:"nickname" validate:"required"`
	CharacterID    string `json:"characterId" validate:"required"`
	TermsAgreed    bool   `json:"termsAgreed"`
	SocialProvider string `json:"socialProvider" validate:"required"`
	AuthCode       string `json:"authCode" validate:"required"`
}

type signupResponse struct {
	UUID           string `json:"uuid"`
	Nickname       string `json:"nickname"`
	CharacterID    string `json:"characterId"`
	SocialProvider string `json:"socialProvider"`
}

type loginRequest struct {
	SocialProvider string `json:"socialProvider" validate:"required"`
	AuthCode       string `json:"authCode" validate:"required"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	IsNewUser    bool   `json:"isNewUser"`
}

type sessionRequest struct {
	AccessToken  string `json:"accessToken" validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type withdrawRequest struct {
	AccessToken string `json:"accessToken" validate:"required"`
}

type nicknameRequest struct {
	Nickname string `json:"nickname" validate:"required"`
}

type nicknameResponse struct {
	Available bool `json:"available"`
}

type profileRequest struct {
	Nickname    *string `json:"nickname"`
	CharacterID *string `json:"characterId"`
}

type profileResponse struct {
	UUID           string    `json:"uuid"`
	Nickname       *string   `json:"nickname"`
	CharacterID    string    `json:"characterId"`
	SocialProvider string    `json:"socialProvider"`
	ReportCount    int       `json:"reportCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newProfileResponse(u *domain.User) profileResponse {
	return profileResponse{
		UUID:           u.UUID,
		Nickname:       u.Nickname,
		CharacterID:    string(u.Character),
		SocialProvider: string(u.Provider),
		ReportCount:    u.ReportCount,
		CreatedAt:      u.CreatedAt,
	}
}

// bind decodes and validates the request body.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	return c.Validate(req)
}

// Signup completes the profile of the user behind the authorization code.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.auth.Signup(c.Request().Context(), service.SignupInput{
		Nickname:    req.Nickname,
		Character:   domain.Character(req.CharacterID),
		TermsAgreed: req.TermsAgreed,
		Provider:    domain.Provider(req.SocialProvider),
		AuthCode:    req.AuthCode,
	})
	if err != nil {
		return err
	}

	resp := signupResponse{
		UUID:           user.UUID,
		CharacterID:    string(user.Character),
		SocialProvider: string(user.Provider),
	}
	if user.Nickname != nil {
		resp.Nickname = *user.Nickname
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login exchanges an authorization code for a first-party token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Login(c.Request().Context(), domain.Provider(req.SocialProvider), req.AuthCode)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		IsNewUser:    res.IsNewUser,
	})
}

// RefreshTokens rotates the refresh token and returns a new pair.
func (h *AuthHandler) RefreshTokens(c echo.Context) error {
	var req sessionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	pair, err := h.auth.Refresh(c.Request().Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, pair)
}

// Logout ends the session of the presented token pair.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req sessionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.Logout(c.Request().Context(), req.AccessToken, req.RefreshToken); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, Ack{Success: true, Message: "logged out"})
}

// Withdraw deletes the account behind the access token.
func (h *AuthHandler) Withdraw(c echo.Context) error {
	var req withdrawRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.auth.Withdraw(c.Request().Context(), req.AccessToken); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, Ack{Success: true, Message: "account withdrawn"})
}

// NicknameCheck reports whether a nickname is still free.
func (h *AuthHandler) NicknameCheck(c echo.Context) error {
	var req nicknameRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	available, err := h.auth.CheckNickname(c.Request().Context(), req.Nickname)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, nicknameResponse{Available: available})
}

// Me returns the currently authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	user, err := h.auth.Me(c.Request().Context(), claims.UUID)
	if err != nil {
		return err
	}
	if user.Provider != claims.Provider {
		return domain.ErrUnauthorized
	}

	return c.JSON(http.StatusOK, newProfileResponse(user))
}

// UpdateMe changes the nickname or character of the current user.
func (h *AuthHandler) UpdateMe(c echo.Context) error {
	userUUID, ok := GetUserUUID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req profileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	upd := service.ProfileUpdate{Nickname: req.Nickname}
	if req.CharacterID != nil {
		ch := domain.Character(*req.CharacterID)
		upd.Character = &ch
	}

	user, err := h.auth.UpdateProfile(c.Request().Context(), userUUID, upd)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, newProfileResponse(user))
}

// ReportUser records a report against the user in the path.
func (h *AuthHandler) ReportUser(c echo.Context) error {
	userUUID, ok := GetUserUUID(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	if err := h.auth.ReportUser(c.Request().Context(), userUUID, c.Param("uuid")); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, Ack{Success: true, Message: "report received"})
}
