package domain

import (
	"time"
	"unicode/utf8"
)

// Provider represents a social identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderKakao  Provider = "kakao"
	ProviderApple  Provider = "apple"
)

// Providers lists every provider a user record may carry.
var Providers = []Provider{ProviderGoogle, ProviderKakao, ProviderApple}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderKakao, ProviderApple:
		return true
	}
	return false
}

// Character is the theme a user picks during signup.
type Character string

const (
	CharacterRabbit  Character = "rabbit"
	CharacterDog     Character = "dog"
	CharacterHamster Character = "hamster"
	CharacterCat     Character = "cat"
)

// DefaultCharacter is assigned to users created before profile completion.
const DefaultCharacter = CharacterRabbit

// Valid reports whether c is a known character.
func (c Character) Valid() bool {
	switch c {
	case CharacterRabbit, CharacterDog, CharacterHamster, CharacterCat:
		return true
	}
	return false
}

// MaxNicknameLength is counted in characters, not bytes.
const MaxNicknameLength = 10

// ValidateNickname checks the nickname length rules.
func ValidateNickname(nickname string) error {
	n := utf8.RuneCountInString(nickname)
	if n == 0 || n > MaxNicknameLength {
		return &ValidationError{Field: "nickname", Message: "must be between 1 and 10 characters"}
	}
	return nil
}

// User represents a federated identity. It is also the cache snapshot format.
type User struct {
	UUID         string    `json:"uuid" db:"uuid"`
	Nickname     *string   `json:"nickname,omitempty" db:"nickname"`
	Character    Character `json:"character" db:"character_id"`
	Provider     Provider  `json:"provider" db:"provider"`
	ProviderID   string    `json:"provider_id" db:"provider_id"`
	PasswordHash *string   `json:"password_hash,omitempty" db:"password_hash"`
	ReportCount  int       `json:"report_count" db:"report_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// ProfileCompleted reports whether the user has picked a nickname.
func (u *User) ProfileCompleted() bool {
	return u.Nickname != nil && *u.Nickname != ""
}
