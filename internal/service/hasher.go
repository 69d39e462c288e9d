package service

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/sumire/socialauth/internal/domain"
)

// Hasher hashes and verifies local-account passwords with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher. Out-of-range costs fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted digest of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", &domain.HashingError{Err: err}
	}
	return string(digest), nil
}

// Verify reports whether plain matches digest. A mismatch is not an error;
// only a malformed digest is.
func (h *Hasher) Verify(plain, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, &domain.HashingError{Err: err}
	}
}
