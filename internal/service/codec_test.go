package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sumire/socialauth/internal/domain"
)

func TestCodecIssueAndVerify(t *testing.T) {
	codec := newTestCodec(t)

	pair, err := codec.Issue("u-1", domain.ProviderKakao)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	access, err := codec.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if access.UUID != "u-1" || access.Provider != domain.ProviderKakao || access.Type != domain.TokenTypeAccess {
		t.Errorf("access claims = %+v", access)
	}
	if got := access.ExpiresAt.Sub(access.IssuedAt); got != time.Hour {
		t.Errorf("access lifetime = %v, want 1h", got)
	}

	refresh, err := codec.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if got := refresh.ExpiresAt.Sub(refresh.IssuedAt); got != 30*24*time.Hour {
		t.Errorf("refresh lifetime = %v, want 720h", got)
	}
}

func TestCodecRejectsWrongType(t *testing.T) {
	codec := newTestCodec(t)
	pair, _ := codec.Issue("u-1", domain.ProviderApple)

	if _, err := codec.VerifyAccess(pair.RefreshToken); !errors.Is(err, domain.ErrInvalidAccessToken) {
		t.Errorf("refresh as access: err = %v", err)
	}
	if _, err := codec.VerifyRefresh(pair.AccessToken); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Errorf("access as refresh: err = %v", err)
	}
	if _, err := codec.DecodeAccess(pair.RefreshToken); !errors.Is(err, domain.ErrInvalidAccessToken) {
		t.Errorf("decode refresh as access: err = %v", err)
	}
}

func TestCodecDecodeExpiredAccess(t *testing.T) {
	codec := newTestCodec(t)
	issued := time.Now().Add(-2 * time.Hour)
	codec.now = func() time.Time { return issued }
	pair, err := codec.Issue("u-1", domain.ProviderKakao)
	if err != nil {
		t.Fatal(err)
	}
	codec.now = time.Now

	if _, err := codec.VerifyAccess(pair.AccessToken); !errors.Is(err, domain.ErrInvalidAccessToken) {
		t.Fatalf("expired VerifyAccess err = %v", err)
	}

	claims, err := codec.DecodeAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("DecodeAccess of expired token: %v", err)
	}
	if claims.UUID != "u-1" {
		t.Errorf("UUID = %q", claims.UUID)
	}
	if claims.Remaining(time.Now()) != 0 {
		t.Error("expired token should have no remaining lifetime")
	}
}

func TestCodecRejectsForeignSignature(t *testing.T) {
	codec := newTestCodec(t)
	other, _ := NewTokenCodec(CodecConfig{Secret: "other", Issuer: "socialauth-test", AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour})
	pair, _ := other.Issue("u-1", domain.ProviderKakao)

	if _, err := codec.DecodeAccess(pair.AccessToken); !errors.Is(err, domain.ErrInvalidAccessToken) {
		t.Errorf("DecodeAccess must still check the signature, err = %v", err)
	}
}

func TestCodecRejectsForeignIssuer(t *testing.T) {
	codec := newTestCodec(t)
	other, _ := NewTokenCodec(CodecConfig{Secret: "test-secret", Issuer: "someone-else", AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour})
	pair, _ := other.Issue("u-1", domain.ProviderKakao)

	if _, err := codec.VerifyAccess(pair.AccessToken); err == nil {
		t.Error("VerifyAccess accepted a foreign issuer")
	}
	if _, err := codec.DecodeAccess(pair.AccessToken); err == nil {
		t.Error("DecodeAccess accepted a foreign issuer")
	}
}

func TestCodecRejectsNoneAlgorithm(t *testing.T) {
	codec := newTestCodec(t)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u-1", "typ": "access", "iss": "socialauth-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.DecodeAccess(raw); err == nil {
		t.Error("accepted alg=none")
	}
}

func TestCodecTokensAreUnique(t *testing.T) {
	codec := newTestCodec(t)
	a, _ := codec.Issue("u-1", domain.ProviderKakao)
	b, _ := codec.Issue("u-1", domain.ProviderKakao)

	if a.RefreshToken == b.RefreshToken || a.AccessToken == b.AccessToken {
		t.Error("tokens issued in the same second must differ")
	}
}
