package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sumire/socialauth/internal/cacheaside"
	"github.com/sumire/socialauth/internal/domain"
)

// bcrypt ignores input past 72 bytes.
const maxPasswordBytes = 72

// UserFinder is the secondary-index query surface of the durable user store.
type UserFinder interface {
	FindByProviderID(ctx context.Context, provider domain.Provider, providerID string) (*domain.User, error)
	FindByNickname(ctx context.Context, nickname string) (*domain.User, error)
}

// ProfileUpdate holds the user-editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Nickname  *string
	Character *domain.Character
}

// Directory manages user records through the cache-aside store.
type Directory struct {
	store  *cacheaside.Store[domain.User]
	finder UserFinder
	hasher *Hasher
	logger *slog.Logger
}

// NewDirectory creates a Directory.
func NewDirectory(store *cacheaside.Store[domain.User], finder UserFinder, hasher *Hasher, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: store, finder: finder, hasher: hasher, logger: logger}
}

// Get returns the user with the given UUID.
func (d *Directory) Get(ctx context.Context, userUUID string) (*domain.User, error) {
	return d.store.Get(ctx, userUUID)
}

// FindByProvider returns the user bound to a provider identity.
func (d *Directory) FindByProvider(ctx context.Context, provider domain.Provider, providerID string) (*domain.User, error) {
	return d.store.Lookup(ctx, func(ctx context.Context) (*domain.User, error) {
		return d.finder.FindByProviderID(ctx, provider, providerID)
	})
}

// Create inserts a user for a never-seen provider identity. If another request
// created the same identity first, that user is returned instead.
func (d *Directory) Create(ctx context.Context, provider domain.Provider, providerID string) (*domain.User, error) {
	if !provider.Valid() {
		return nil, &domain.ValidationError{Field: "socialProvider", Message: "unsupported provider"}
	}

	user, err := d.store.Put(ctx, &domain.User{
		UUID:       uuid.NewString(),
		Character:  domain.DefaultCharacter,
		Provider:   provider,
		ProviderID: providerID,
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("user created", "uuid", user.UUID, "provider", provider)
	return user, nil
}

// UpdateProfile validates and applies a profile change.
func (d *Directory) UpdateProfile(ctx context.Context, userUUID string, upd ProfileUpdate) (*domain.User, error) {
	fields := cacheaside.Fields{}

	if upd.Nickname != nil {
		if err := domain.ValidateNickname(*upd.Nickname); err != nil {
			return nil, err
		}
		owner, err := d.nicknameOwner(ctx, *upd.Nickname)
		if err != nil {
			return nil, err
		}
		if owner != "" && owner != userUUID {
			return nil, domain.ErrConflict
		}
		fields["nickname"] = *upd.Nickname
	}
	if upd.Character != nil {
		if !upd.Character.Valid() {
			return nil, &domain.ValidationError{Field: "characterId", Message: "unknown character"}
		}
		fields["character_id"] = *upd.Character
	}
	if len(fields) == 0 {
		return d.store.Get(ctx, userUUID)
	}

	return d.store.Update(ctx, userUUID, fields)
}

// NicknameAvailable reports whether nobody uses nickname yet.
func (d *Directory) NicknameAvailable(ctx context.Context, nickname string) (bool, error) {
	if err := domain.ValidateNickname(nickname); err != nil {
		return false, err
	}
	owner, err := d.nicknameOwner(ctx, nickname)
	if err != nil {
		return false, err
	}
	return owner == "", nil
}

func (d *Directory) nicknameOwner(ctx context.Context, nickname string) (string, error) {
	user, err := d.store.Lookup(ctx, func(ctx context.Context) (*domain.User, error) {
		return d.finder.FindByNickname(ctx, nickname)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return user.UUID, nil
}

// IncrementReportCount records one more report against the user.
func (d *Directory) IncrementReportCount(ctx context.Context, userUUID string) (*domain.User, error) {
	return d.store.Update(ctx, userUUID, cacheaside.Fields{"report_count": cacheaside.Increment(1)})
}

// SetPassword stores a password digest for a legacy local account.
func (d *Directory) SetPassword(ctx context.Context, userUUID, plain string) error {
	if plain == "" || len(plain) > maxPasswordBytes {
		return &domain.ValidationError{Field: "password", Message: "must be between 1 and 72 bytes"}
	}
	digest, err := d.hasher.Hash(plain)
	if err != nil {
		return err
	}
	_, err = d.store.Update(ctx, userUUID, cacheaside.Fields{"password_hash": digest})
	return err
}

// CheckPassword verifies plain against the stored digest. Accounts without a
// password never match.
func (d *Directory) CheckPassword(ctx context.Context, userUUID, plain string) (bool, error) {
	user, err := d.store.Get(ctx, userUUID)
	if err != nil {
		return false, err
	}
	if user.PasswordHash == nil {
		return false, nil
	}
	return d.hasher.Verify(plain, *user.PasswordHash)
}

// Delete removes the user from both tiers.
func (d *Directory) Delete(ctx context.Context, userUUID string) error {
	return d.store.Delete(ctx, userUUID)
}
