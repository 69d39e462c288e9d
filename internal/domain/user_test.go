package domain

import (
	"errors"
	"testing"
	"time"
)

func TestValidateNickname(t *testing.T) {
	tests := []struct {
		name     string
		nickname string
		wantErr  bool
	}{
		{"single character", "a", false},
		{"ten ascii", "abcdefghij", false},
		{"ten hangul", "가나다라마바사아자차", false},
		{"empty", "", true},
		{"eleven ascii", "abcdefghijk", true},
		{"eleven hangul", "가나다라마바사아자차카", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNickname(tt.nickname)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateNickname(%q) error = %v, wantErr %v", tt.nickname, err, tt.wantErr)
			}
			if err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) || ve.Field != "nickname" {
					t.Errorf("expected nickname ValidationError, got %v", err)
				}
			}
		})
	}
}

func TestProviderValid(t *testing.T) {
	for _, p := range Providers {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if Provider("github").Valid() {
		t.Error("github should not be valid")
	}
}

func TestProviderAuthErrorHidesCause(t *testing.T) {
	cause := errors.New(`{"error":"invalid_grant","error_description":"code expired"}`)
	err := &ProviderAuthError{Provider: ProviderKakao, Op: "exchange", Err: cause}

	if got := err.Error(); got != "kakao exchange failed" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should remain reachable through Unwrap")
	}
}

func TestClaimsRemaining(t *testing.T) {
	now := time.Now()
	c := Claims{ExpiresAt: now.Add(time.Minute)}
	if got := c.Remaining(now); got != time.Minute {
		t.Errorf("Remaining = %v, want 1m", got)
	}

	expired := Claims{ExpiresAt: now.Add(-time.Minute)}
	if got := expired.Remaining(now); got != 0 {
		t.Errorf("Remaining of expired claims = %v, want 0", got)
	}
}
