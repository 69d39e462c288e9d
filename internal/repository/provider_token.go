package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/socialauth/internal/cacheaside"
	"github.com/sumire/socialauth/internal/domain"
)

const providerTokenColumns = `user_uuid, provider, access_token, issued_at, expires_at`

var providerTokenUpdatable = map[string]bool{
	"access_token": true,
	"expires_at":   true,
}

// ProviderTokenRepository stores provider access tokens keyed by
// "<uuid>:<provider>".
type ProviderTokenRepository struct {
	db *sqlx.DB
}

var _ cacheaside.Source[domain.ProviderToken] = (*ProviderTokenRepository)(nil)

// NewProviderTokenRepository creates a new ProviderTokenRepository.
func NewProviderTokenRepository(db *sqlx.DB) *ProviderTokenRepository {
	return &ProviderTokenRepository{db: db}
}

func splitTokenID(id string) (string, domain.Provider, error) {
	uuid, provider, ok := strings.Cut(id, ":")
	if !ok || uuid == "" || provider == "" {
		return "", "", fmt.Errorf("%w: malformed provider token id %q", domain.ErrInvalidInput, id)
	}
	return uuid, domain.Provider(provider), nil
}

// Find retrieves a provider token record.
func (r *ProviderTokenRepository) Find(ctx context.Context, id string) (*domain.ProviderToken, error) {
	uuid, provider, err := splitTokenID(id)
	if err != nil {
		return nil, err
	}

	var tok domain.ProviderToken
	err = r.db.GetContext(ctx, &tok,
		`SELECT `+providerTokenColumns+` FROM provider_tokens WHERE user_uuid = $1 AND provider = $2`,
		uuid, provider)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find provider token %s: %w", id, err)
	}
	return &tok, nil
}

// Save creates or replaces the provider token of a user.
func (r *ProviderTokenRepository) Save(ctx context.Context, tok *domain.ProviderToken) (*domain.ProviderToken, error) {
	var result domain.ProviderToken
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO provider_tokens (user_uuid, provider, access_token, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_uuid, provider)
		 DO UPDATE SET access_token = EXCLUDED.access_token,
		               issued_at = EXCLUDED.issued_at,
		               expires_at = EXCLUDED.expires_at
		 RETURNING `+providerTokenColumns,
		tok.UUID, tok.Provider, tok.AccessToken, tok.IssuedAt, tok.ExpiresAt,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("save provider token: %w", err)
	}
	return &result, nil
}

// Update applies a partial update to a provider token record.
func (r *ProviderTokenRepository) Update(ctx context.Context, id string, fields cacheaside.Fields) error {
	uuid, provider, err := splitTokenID(id)
	if err != nil {
		return err
	}
	set, args, next, err := buildSet(fields, providerTokenUpdatable)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE provider_tokens SET %s WHERE user_uuid = $%d AND provider = $%d`, set, next, next+1),
		append(args, uuid, provider)...)
	if err != nil {
		return fmt.Errorf("update provider token %s: %w", id, err)
	}
	return expectRow(res, "update provider token "+id)
}

// Delete removes a provider token record.
func (r *ProviderTokenRepository) Delete(ctx context.Context, id string) error {
	uuid, provider, err := splitTokenID(id)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM provider_tokens WHERE user_uuid = $1 AND provider = $2`, uuid, provider)
	if err != nil {
		return fmt.Errorf("delete provider token %s: %w", id, err)
	}
	return expectRow(res, "delete provider token "+id)
}
