package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/socialauth/internal/cacheaside"
	"github.com/sumire/socialauth/internal/domain"
)

const userColumns = `uuid, nickname, character_id, provider, provider_id, password_hash, report_count, created_at, updated_at`

var userUpdatable = map[string]bool{
	"nickname":      true,
	"character_id":  true,
	"password_hash": true,
	"report_count":  true,
}

// UserRepository handles user data access operations.
type UserRepository struct {
	db *sqlx.DB
}

var _ cacheaside.Source[domain.User] = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Find retrieves a user by UUID.
func (r *UserRepository) Find(ctx context.Context, uuid string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE uuid = $1`, uuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user %s: %w", uuid, err)
	}
	return &user, nil
}

// FindByProviderID retrieves a user by provider identity.
func (r *UserRepository) FindByProviderID(ctx context.Context, provider domain.Provider, providerID string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2`, provider, providerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by provider %s/%s: %w", provider, providerID, err)
	}
	return &user, nil
}

// FindByNickname retrieves a user by nickname.
func (r *UserRepository) FindByNickname(ctx context.Context, nickname string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE nickname = $1`, nickname)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by nickname: %w", err)
	}
	return &user, nil
}

// Save inserts a user. When the provider identity already exists the stored
// row is returned unchanged, so concurrent first logins converge on one UUID.
func (r *UserRepository) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	var result domain.User
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (uuid, nickname, character_id, provider, provider_id, password_hash, report_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (provider, provider_id)
		 DO UPDATE SET updated_at = users.updated_at
		 RETURNING `+userColumns,
		user.UUID, user.Nickname, user.Character, user.Provider, user.ProviderID, user.PasswordHash, user.ReportCount,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("save user: %w", conflictErr(err))
	}
	return &result, nil
}

// Update applies a partial update to a user.
func (r *UserRepository) Update(ctx context.Context, uuid string, fields cacheaside.Fields) error {
	set, args, next, err := buildSet(fields, userUpdatable)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s, updated_at = NOW() WHERE uuid = $%d`, set, next),
		append(args, uuid)...)
	if err != nil {
		return fmt.Errorf("update user %s: %w", uuid, conflictErr(err))
	}
	return expectRow(res, "update user "+uuid)
}

// Delete removes a user. Provider tokens cascade.
func (r *UserRepository) Delete(ctx context.Context, uuid string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE uuid = $1`, uuid)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", uuid, err)
	}
	return expectRow(res, "delete user "+uuid)
}

func expectRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
