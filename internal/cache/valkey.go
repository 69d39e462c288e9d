package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
)

const connectionVerifyTimeout = 5 * time.Second

// KEYS[1] = key
// ARGV[1] = expected value, ARGV[2] = next value, ARGV[3] = ttl in milliseconds
// Returns 1 when swapped, 0 when the current value differs or is absent.
const luaCompareAndSwap = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
    return 1
end
return 0
`

// KEYS[1] = key
// ARGV[1] = expected value
// Returns 1 when deleted, 0 otherwise.
const luaCompareAndDelete = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// ValkeyConfig holds connection settings for the Valkey cache.
type ValkeyConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	Logger    *slog.Logger
}

// Valkey is a Cache backed by a Valkey (or Redis) server.
type Valkey struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

var _ Cache = (*Valkey)(nil)

// NewValkey connects to Valkey and verifies the connection with PING.
func NewValkey(cfg ValkeyConfig) (*Valkey, error) {
	if cfg.Address == "" {
		return nil, errors.New("valkey address is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := valkeygo.NewClient(valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}

	logger.Info("connected to valkey", "address", cfg.Address, "db", cfg.DB, "prefix", cfg.KeyPrefix)

	return &Valkey{client: client, prefix: cfg.KeyPrefix, logger: logger}, nil
}

// Close closes the client connection.
func (v *Valkey) Close() {
	v.client.Close()
}

func (v *Valkey) key(k string) string {
	return v.prefix + k
}

func (v *Valkey) Get(ctx context.Context, key string) (string, error) {
	val, err := v.client.Do(ctx, v.client.B().Get().Key(v.key(key)).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return "", ErrMiss
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}

func (v *Valkey) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("set %s: ttl must be positive", key)
	}
	err := v.client.Do(ctx, v.client.B().Set().Key(v.key(key)).Value(value).Px(ttl).Build()).Error()
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (v *Valkey) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = v.key(k)
	}
	if err := v.client.Do(ctx, v.client.B().Del().Key(prefixed...).Build()).Error(); err != nil {
		return fmt.Errorf("del %v: %w", keys, err)
	}
	return nil
}

func (v *Valkey) Exists(ctx context.Context, key string) (bool, error) {
	n, err := v.client.Do(ctx, v.client.B().Exists().Key(v.key(key)).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (v *Valkey) CompareAndSwap(ctx context.Context, key, expected, next string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("compare and swap %s: ttl must be positive", key)
	}
	n, err := v.client.Do(ctx,
		v.client.B().Eval().Script(luaCompareAndSwap).
			Numkeys(1).
			Key(v.key(key)).
			Arg(expected, next, strconv.FormatInt(ttl.Milliseconds(), 10)).
			Build(),
	).AsInt64()
	if err != nil {
		return false, fmt.Errorf("compare and swap %s: %w", key, err)
	}
	return n == 1, nil
}

func (v *Valkey) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := v.client.Do(ctx,
		v.client.B().Eval().Script(luaCompareAndDelete).
			Numkeys(1).
			Key(v.key(key)).
			Arg(expected).
			Build(),
	).AsInt64()
	if err != nil {
		return false, fmt.Errorf("compare and delete %s: %w", key, err)
	}
	return n == 1, nil
}
