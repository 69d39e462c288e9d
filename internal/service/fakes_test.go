package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sumire/socialauth/internal/cache"
	"github.com/sumire/socialauth/internal/cacheaside"
	"github.com/sumire/socialauth/internal/domain"
	"github.com/sumire/socialauth/internal/social"
)

// memUsers is a durable user store with the same uniqueness rules as the schema.
type memUsers struct {
	mu   sync.Mutex
	rows map[string]domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{rows: make(map[string]domain.User)}
}

func (m *memUsers) Find(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) FindByProviderID(_ context.Context, provider domain.Provider, providerID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Provider == provider && u.ProviderID == providerID {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) FindByNickname(_ context.Context, nickname string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Nickname != nil && *u.Nickname == nickname {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) Save(_ context.Context, v *domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Provider == v.Provider && u.ProviderID == v.ProviderID {
			return &u, nil
		}
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	saved := *v
	saved.CreatedAt, saved.UpdatedAt = now, now
	m.rows[saved.UUID] = saved
	return &saved, nil
}

func (m *memUsers) Update(_ context.Context, id string, fields cacheaside.Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	for col, v := range fields {
		switch col {
		case "nickname":
			s := v.(string)
			u.Nickname = &s
		case "character_id":
			u.Character = v.(domain.Character)
		case "password_hash":
			s := v.(string)
			u.PasswordHash = &s
		case "report_count":
			u.ReportCount += int(v.(cacheaside.Increment))
		default:
			return fmt.Errorf("%w: column %q", domain.ErrInvalidInput, col)
		}
	}
	m.rows[id] = u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// memTokens is a durable provider token store.
type memTokens struct {
	mu   sync.Mutex
	rows map[string]domain.ProviderToken
}

func newMemTokens() *memTokens {
	return &memTokens{rows: make(map[string]domain.ProviderToken)}
}

func (m *memTokens) Find(_ context.Context, id string) (*domain.ProviderToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (m *memTokens) Save(_ context.Context, v *domain.ProviderToken) (*domain.ProviderToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[v.Key()] = *v
	saved := *v
	return &saved, nil
}

func (m *memTokens) Update(context.Context, string, cacheaside.Fields) error {
	return errors.New("not supported")
}

func (m *memTokens) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

// fakeResolver maps authorization codes to provider identities.
type fakeResolver struct {
	mu         sync.Mutex
	identities map[string]string
	revokeErr  error
	revoked    []string
	exchanges  int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{identities: make(map[string]string)}
}

func (f *fakeResolver) ExchangeCode(_ context.Context, provider domain.Provider, code string) (*social.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++
	if _, ok := f.identities[code]; !ok {
		return nil, &domain.ProviderAuthError{Provider: provider, Op: "exchange", Err: errors.New("invalid_grant")}
	}
	return &social.Token{AccessToken: "provider-at-" + code, Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeResolver) ResolveIdentity(_ context.Context, provider domain.Provider, tok *social.Token) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := tok.AccessToken[len("provider-at-"):]
	return f.identities[code], nil
}

func (f *fakeResolver) Revoke(_ context.Context, _ domain.Provider, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, accessToken)
	return f.revokeErr
}

// brokenCache fails every operation.
type brokenCache struct{}

var errCacheDown = errors.New("cache unavailable")

func (brokenCache) Get(context.Context, string) (string, error) { return "", errCacheDown }
func (brokenCache) Set(context.Context, string, string, time.Duration) error {
	return errCacheDown
}
func (brokenCache) Del(context.Context, ...string) error           { return errCacheDown }
func (brokenCache) Exists(context.Context, string) (bool, error)   { return false, errCacheDown }
func (brokenCache) CompareAndSwap(context.Context, string, string, string, time.Duration) (bool, error) {
	return false, errCacheDown
}
func (brokenCache) CompareAndDelete(context.Context, string, string) (bool, error) {
	return false, errCacheDown
}

type testEnv struct {
	auth     *AuthService
	dir      *Directory
	codec    *TokenCodec
	ledger   *Ledger
	cache    *cache.Memory
	users    *memUsers
	tokens   *memTokens
	resolver *fakeResolver
}

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(CodecConfig{
		Secret:     "test-secret",
		Issuer:     "socialauth-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

func newTestDirectory(c cache.Cache, users *memUsers) *Directory {
	store := cacheaside.New(cacheaside.Config[domain.User]{
		Entity: "user",
		Cache:  c,
		Source: users,
		Key:    cache.UserKey,
		ID:     func(u *domain.User) string { return u.UUID },
	})
	return NewDirectory(store, users, NewHasher(4), nil)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithCache(t, nil)
}

// newTestEnvWithCache wires every store through wrap(env.cache) when wrap is
// set, so tests can inject cache failures while still inspecting env.cache.
func newTestEnvWithCache(t *testing.T, wrap func(*cache.Memory) cache.Cache) *testEnv {
	t.Helper()

	env := &testEnv{
		cache:    cache.NewMemory(),
		users:    newMemUsers(),
		tokens:   newMemTokens(),
		resolver: newFakeResolver(),
		codec:    newTestCodec(t),
	}
	var kv cache.Cache = env.cache
	if wrap != nil {
		kv = wrap(env.cache)
	}
	env.dir = newTestDirectory(kv, env.users)
	env.ledger = NewLedger(kv, nil)

	providerTokens := cacheaside.New(cacheaside.Config[domain.ProviderToken]{
		Entity: "provider_token",
		Cache:  kv,
		Source: env.tokens,
		Key:    cache.ProviderTokenKey,
		ID:     func(t *domain.ProviderToken) string { return t.Key() },
	})

	env.auth = NewAuthService(AuthDeps{
		Resolver:       env.resolver,
		Directory:      env.dir,
		Codec:          env.codec,
		Ledger:         env.ledger,
		ProviderTokens: providerTokens,
	})
	return env
}

// failOnceCache fails the first Del that touches a key with the given prefix.
type failOnceCache struct {
	*cache.Memory
	prefix string

	mu     sync.Mutex
	failed bool
}

func (c *failOnceCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	if !c.failed {
		for _, k := range keys {
			if strings.HasPrefix(k, c.prefix) {
				c.failed = true
				c.mu.Unlock()
				return errCacheDown
			}
		}
	}
	c.mu.Unlock()
	return c.Memory.Del(ctx, keys...)
}
