package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sumire/socialauth/internal/cacheaside"
	"github.com/sumire/socialauth/internal/domain"
	"github.com/sumire/socialauth/internal/metrics"
	"github.com/sumire/socialauth/internal/social"
)

// IdentityResolver is the provider-facing capability consumed by AuthService.
type IdentityResolver interface {
	ExchangeCode(ctx context.Context, provider domain.Provider, code string) (*social.Token, error)
	ResolveIdentity(ctx context.Context, provider domain.Provider, tok *social.Token) (string, error)
	Revoke(ctx context.Context, provider domain.Provider, accessToken string) error
}

// AuthDeps are the collaborators of AuthService.
type AuthDeps struct {
	Resolver       IdentityResolver
	Directory      *Directory
	Codec          *TokenCodec
	Ledger         *Ledger
	ProviderTokens *cacheaside.Store[domain.ProviderToken]
	Logger         *slog.Logger
	Metrics        metrics.Recorder
}

// AuthService runs signup, login, refresh, logout and withdrawal.
type AuthService struct {
	resolver       IdentityResolver
	users          *Directory
	codec          *TokenCodec
	ledger         *Ledger
	providerTokens *cacheaside.Store[domain.ProviderToken]
	logger         *slog.Logger
	metrics        metrics.Recorder
	now            func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(deps AuthDeps) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var rec metrics.Recorder = metrics.Nop{}
	if deps.Metrics != nil {
		rec = deps.Metrics
	}
	return &AuthService{
		resolver:       deps.Resolver,
		users:          deps.Directory,
		codec:          deps.Codec,
		ledger:         deps.Ledger,
		providerTokens: deps.ProviderTokens,
		logger:         logger,
		metrics:        rec,
		now:            time.Now,
	}
}

// SignupInput is the profile-completion request.
type SignupInput struct {
	Nickname    string
	Character   domain.Character
	TermsAgreed bool
	Provider    domain.Provider
	AuthCode    string
}

// LoginResult is returned by Login.
type LoginResult struct {
	domain.TokenPair
	IsNewUser bool
}

// RegisterOrResolve authenticates with the provider and returns the matching
// user, creating one for a never-seen provider identity.
func (s *AuthService) RegisterOrResolve(ctx context.Context, provider domain.Provider, code string) (*domain.User, error) {
	tok, err := s.resolver.ExchangeCode(ctx, provider, code)
	if err != nil {
		return nil, err
	}
	providerID, err := s.resolver.ResolveIdentity(ctx, provider, tok)
	if err != nil {
		return nil, err
	}

	wctx := context.WithoutCancel(ctx)

	user, err := s.users.FindByProvider(wctx, provider, providerID)
	if errors.Is(err, domain.ErrNotFound) {
		user, err = s.users.Create(wctx, provider, providerID)
	}
	if err != nil {
		return nil, err
	}

	s.saveProviderToken(wctx, user.UUID, provider, tok)
	return user, nil
}

// Signup completes the profile of the user behind the authorization code.
// It issues no tokens; clients call Login afterwards.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (_ *domain.User, err error) {
	defer s.observe("signup", &err)

	if !in.TermsAgreed {
		return nil, &domain.ValidationError{Field: "termsAgreed", Message: "terms must be agreed"}
	}
	if err := domain.ValidateNickname(in.Nickname); err != nil {
		return nil, err
	}
	if !in.Character.Valid() {
		return nil, &domain.ValidationError{Field: "characterId", Message: "unknown character"}
	}

	user, err := s.RegisterOrResolve(ctx, in.Provider, in.AuthCode)
	if err != nil {
		return nil, err
	}

	updated, err := s.users.UpdateProfile(context.WithoutCancel(ctx), user.UUID, ProfileUpdate{
		Nickname:  &in.Nickname,
		Character: &in.Character,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("signup completed", "uuid", updated.UUID, "provider", updated.Provider)
	return updated, nil
}

// Login authenticates with the provider and opens a session.
func (s *AuthService) Login(ctx context.Context, provider domain.Provider, code string) (_ *LoginResult, err error) {
	defer s.observe("login", &err)

	user, err := s.RegisterOrResolve(ctx, provider, code)
	if err != nil {
		return nil, err
	}

	pair, err := s.codec.Issue(user.UUID, provider)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.IssueRefreshToken(context.WithoutCancel(ctx), user.UUID, provider, pair.RefreshToken, s.codec.RefreshTTL()); err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded", "uuid", user.UUID, "provider", provider)
	return &LoginResult{TokenPair: pair, IsNewUser: !user.ProfileCompleted()}, nil
}

// Refresh rotates the refresh token and issues a new pair. The access token
// may be expired but must carry a valid signature. The presented refresh token
// is usable exactly once and only while its user still exists.
func (s *AuthService) Refresh(ctx context.Context, accessToken, refreshToken string) (_ domain.TokenPair, err error) {
	defer s.observe("refresh", &err)

	access, refresh, err := s.sessionClaims(ctx, accessToken, refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}

	if _, err := s.users.Get(ctx, access.UUID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("refresh for deleted user", "uuid", access.UUID, "provider", access.Provider)
			return domain.TokenPair{}, domain.ErrInvalidRefreshToken
		}
		return domain.TokenPair{}, err
	}

	pair, err := s.codec.Issue(access.UUID, access.Provider)
	if err != nil {
		return domain.TokenPair{}, err
	}

	rotated, err := s.ledger.RotateRefreshToken(context.WithoutCancel(ctx),
		refresh.UUID, refresh.Provider, refreshToken, pair.RefreshToken, s.codec.RefreshTTL())
	if err != nil {
		return domain.TokenPair{}, err
	}
	if !rotated {
		s.logger.Warn("refresh token reuse or unknown token", "uuid", refresh.UUID, "provider", refresh.Provider)
		return domain.TokenPair{}, domain.ErrInvalidRefreshToken
	}

	return pair, nil
}

// Logout blacklists the access token for its remaining lifetime and drops the
// refresh token. Nothing is changed when the refresh token is invalid.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) (err error) {
	defer s.observe("logout", &err)

	access, refresh, err := s.sessionClaims(ctx, accessToken, refreshToken)
	if err != nil {
		return err
	}

	valid, err := s.ledger.VerifyRefreshToken(ctx, refresh.UUID, refresh.Provider, refreshToken)
	if err != nil {
		return err
	}
	if !valid {
		return domain.ErrInvalidRefreshToken
	}

	wctx := context.WithoutCancel(ctx)
	if err := s.ledger.BlacklistAccessToken(wctx, accessToken, access.Remaining(s.now())); err != nil {
		return err
	}

	consumed, err := s.ledger.ConsumeRefreshToken(wctx, refresh.UUID, refresh.Provider, refreshToken)
	if err != nil {
		return err
	}
	if !consumed {
		// Rotated concurrently; end that session too.
		if err := s.ledger.RevokeRefreshToken(wctx, refresh.UUID, refresh.Provider); err != nil {
			return err
		}
	}

	s.logger.Info("logout succeeded", "uuid", access.UUID, "provider", access.Provider)
	return nil
}

// Withdraw deletes the account behind a valid access token, ends all of its
// sessions and unlinks the provider. The unlink is best effort. Every step
// tolerates a user that is already gone, so a failed withdrawal can be retried
// with the same access token.
func (s *AuthService) Withdraw(ctx context.Context, accessToken string) (err error) {
	defer s.observe("withdraw", &err)

	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	userUUID, provider := claims.UUID, claims.Provider

	if _, err := s.users.Get(ctx, userUUID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	// Read before the user row goes, since provider tokens cascade.
	tokenID := domain.ProviderTokenKey(userUUID, provider)
	providerToken, tokErr := s.providerTokens.Get(ctx, tokenID)

	wctx := context.WithoutCancel(ctx)
	if err := s.ledger.RevokeAll(wctx, userUUID); err != nil {
		return fmt.Errorf("withdraw %s: %w", userUUID, err)
	}
	if err := s.users.Delete(wctx, userUUID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("withdraw %s: %w", userUUID, err)
	}
	if err := s.ledger.BlacklistAccessToken(wctx, accessToken, claims.Remaining(s.now())); err != nil {
		return fmt.Errorf("withdraw %s: %w", userUUID, err)
	}

	switch {
	case tokErr != nil:
		s.logger.Warn("no provider token to unlink", "uuid", userUUID, "provider", provider, "error", tokErr)
	case !providerToken.ExpiresAt.After(s.now()):
		s.logger.Info("provider token expired, skipping unlink", "uuid", userUUID, "provider", provider, "expired_at", providerToken.ExpiresAt)
	default:
		if err := s.resolver.Revoke(ctx, provider, providerToken.AccessToken); err != nil {
			s.logger.Warn("provider unlink failed, local withdrawal kept", "uuid", userUUID, "provider", provider, "error", err)
		}
	}

	if err := s.providerTokens.Delete(wctx, tokenID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("provider token cleanup failed", "uuid", userUUID, "error", err)
	}

	s.logger.Info("user withdrawn", "uuid", userUUID, "provider", provider)
	return nil
}

// Authenticate validates an access token and checks it has not been revoked.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (domain.Claims, error) {
	claims, err := s.codec.VerifyAccess(accessToken)
	if err != nil {
		return domain.Claims{}, err
	}
	if err := s.checkBlacklist(ctx, accessToken); err != nil {
		return domain.Claims{}, err
	}
	return claims, nil
}

// Me returns the user behind an authenticated session.
func (s *AuthService) Me(ctx context.Context, userUUID string) (*domain.User, error) {
	return s.users.Get(ctx, userUUID)
}

// UpdateProfile changes the nickname or character of a user.
func (s *AuthService) UpdateProfile(ctx context.Context, userUUID string, upd ProfileUpdate) (*domain.User, error) {
	return s.users.UpdateProfile(ctx, userUUID, upd)
}

// CheckNickname reports whether nickname is still free.
func (s *AuthService) CheckNickname(ctx context.Context, nickname string) (bool, error) {
	return s.users.NicknameAvailable(ctx, nickname)
}

// ReportUser records a report by reporter against target.
func (s *AuthService) ReportUser(ctx context.Context, reporterUUID, targetUUID string) error {
	if reporterUUID == targetUUID {
		return &domain.ValidationError{Field: "uuid", Message: "cannot report yourself"}
	}
	user, err := s.users.IncrementReportCount(ctx, targetUUID)
	if err != nil {
		return err
	}
	s.logger.Info("user reported", "uuid", user.UUID, "report_count", user.ReportCount, "reporter", reporterUUID)
	return nil
}

// sessionClaims decodes the access token, ignoring expiry, and verifies the
// refresh token belongs to the same session.
func (s *AuthService) sessionClaims(ctx context.Context, accessToken, refreshToken string) (domain.Claims, domain.Claims, error) {
	access, err := s.codec.DecodeAccess(accessToken)
	if err != nil {
		return domain.Claims{}, domain.Claims{}, err
	}
	if err := s.checkBlacklist(ctx, accessToken); err != nil {
		return domain.Claims{}, domain.Claims{}, err
	}

	refresh, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return domain.Claims{}, domain.Claims{}, err
	}
	if refresh.UUID != access.UUID || refresh.Provider != access.Provider {
		return domain.Claims{}, domain.Claims{}, domain.ErrInvalidRefreshToken
	}
	return access, refresh, nil
}

func (s *AuthService) checkBlacklist(ctx context.Context, accessToken string) error {
	revoked, err := s.ledger.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return err
	}
	if revoked {
		return fmt.Errorf("%w: revoked", domain.ErrInvalidAccessToken)
	}
	return nil
}

func (s *AuthService) saveProviderToken(ctx context.Context, userUUID string, provider domain.Provider, tok *social.Token) {
	if tok == nil || tok.AccessToken == "" {
		return
	}
	now := s.now()
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = now.Add(cacheaside.DefaultTTL)
	}

	_, err := s.providerTokens.Put(ctx, &domain.ProviderToken{
		UUID:        userUUID,
		Provider:    provider,
		AccessToken: tok.AccessToken,
		IssuedAt:    now,
		ExpiresAt:   expiry,
	})
	if err != nil {
		s.logger.Warn("saving provider token failed", "uuid", userUUID, "provider", provider, "error", err)
	}
}

func (s *AuthService) observe(op string, errp *error) {
	outcome := "success"
	if *errp != nil {
		outcome = "failure"
	}
	s.metrics.RecordAuthOperation(op, outcome)
}
