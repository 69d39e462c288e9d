// Package cacheaside pairs the volatile cache with a durable source for a
// single entity type. The durable source is authoritative; the cache only
// ever holds whole-entity JSON snapshots.
package cacheaside

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sumire/socialauth/internal/cache"
	"github.com/sumire/socialauth/internal/domain"
	"github.com/sumire/socialauth/internal/metrics"
)

// DefaultTTL is applied to snapshots when Config.TTL is zero.
const DefaultTTL = time.Hour

// Fields is a partial update keyed by durable column name.
type Fields map[string]any

// Increment as a Fields value adds to a numeric column instead of replacing it.
type Increment int

// Source is the durable adapter of an entity. Find and Delete return
// domain.ErrNotFound when the record does not exist.
type Source[T any] interface {
	Find(ctx context.Context, id string) (*T, error)
	Save(ctx context.Context, v *T) (*T, error)
	Update(ctx context.Context, id string, fields Fields) error
	Delete(ctx context.Context, id string) error
}

// Config configures a Store.
type Config[T any] struct {
	// Entity labels logs and metrics, e.g. "user".
	Entity  string
	Cache   cache.Cache
	Source  Source[T]
	Key     func(id string) string
	ID      func(v *T) string
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// Store implements read-through and write-through caching over a Source.
type Store[T any] struct {
	entity  string
	cache   cache.Cache
	source  Source[T]
	key     func(string) string
	id      func(*T) string
	ttl     time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder
	loads   singleflight.Group
}

// New creates a Store.
func New[T any](cfg Config[T]) *Store[T] {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics != nil {
		rec = cfg.Metrics
	}

	return &Store[T]{
		entity:  cfg.Entity,
		cache:   cfg.Cache,
		source:  cfg.Source,
		key:     cfg.Key,
		id:      cfg.ID,
		ttl:     ttl,
		logger:  logger.With("entity", cfg.Entity),
		metrics: rec,
	}
}

// Get returns the entity from the cache, or from the durable source with a
// cache backfill. Absence is never cached.
func (s *Store[T]) Get(ctx context.Context, id string) (*T, error) {
	key := s.key(id)

	if v, ok := s.read(ctx, key); ok {
		s.metrics.RecordCacheHit(s.entity)
		return v, nil
	}
	s.metrics.RecordCacheMiss(s.entity)

	// Concurrent misses on one key share a single durable read. The shared
	// read outlives a caller that gives up.
	ch := s.loads.DoChan(key, func() (any, error) {
		lctx := context.WithoutCancel(ctx)
		v, err := s.source.Find(lctx, id)
		if err != nil {
			return nil, err
		}
		s.fill(lctx, key, v, "backfill")
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, s.durableErr("find", res.Err)
		}
		v := *res.Val.(*T)
		return &v, nil
	}
}

// Lookup runs a durable query that is not keyed by the cache key, such as a
// secondary index, and primes the cache with the result.
func (s *Store[T]) Lookup(ctx context.Context, find func(ctx context.Context) (*T, error)) (*T, error) {
	v, err := find(ctx)
	if err != nil {
		return nil, s.durableErr("lookup", err)
	}

	s.fill(ctx, s.key(s.id(v)), v, "prime")
	return v, nil
}

// Put writes the durable source first and caches its canonical copy.
// A cache failure after a durable success is logged but not returned.
func (s *Store[T]) Put(ctx context.Context, v *T) (*T, error) {
	ctx = context.WithoutCancel(ctx)

	saved, err := s.source.Save(ctx, v)
	if err != nil {
		return nil, s.durableErr("save", err)
	}

	s.fill(ctx, s.key(s.id(saved)), saved, "put")
	return saved, nil
}

// Update applies a partial durable update, re-reads the full record, and
// replaces the cached snapshot with it.
func (s *Store[T]) Update(ctx context.Context, id string, fields Fields) (*T, error) {
	ctx = context.WithoutCancel(ctx)
	key := s.key(id)

	if err := s.source.Update(ctx, id, fields); err != nil {
		return nil, s.durableErr("update", err)
	}

	fresh, err := s.source.Find(ctx, id)
	if err != nil {
		s.evictQuietly(ctx, key, "update")
		return nil, s.durableErr("reload", err)
	}

	if err := s.write(ctx, key, fresh); err != nil {
		s.metrics.RecordCacheError(s.entity, "update")
		s.evictQuietly(ctx, key, "update")
	}
	return fresh, nil
}

// Delete removes the durable record, then its snapshot. A failed durable
// delete leaves the cache alone. A failed cache delete is returned, since the
// snapshot would keep serving a record that no longer exists.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	ctx = context.WithoutCancel(ctx)
	key := s.key(id)

	if err := s.source.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.evictQuietly(ctx, key, "delete")
		}
		return s.durableErr("delete", err)
	}

	if err := s.cache.Del(ctx, key); err != nil {
		s.metrics.RecordCacheError(s.entity, "delete")
		s.logger.Error("cache evict failed after durable delete", "key", key, "error", err)
		return &domain.DataAccessError{Op: "evict " + s.entity, Err: err}
	}
	return nil
}

func (s *Store[T]) read(ctx context.Context, key string) (*T, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.metrics.RecordCacheError(s.entity, "get")
			s.logger.Warn("cache read failed, falling back to durable store", "key", key, "error", err)
		}
		return nil, false
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.metrics.RecordCacheError(s.entity, "decode")
		s.logger.Warn("discarding undecodable cache snapshot", "key", key, "error", err)
		return nil, false
	}
	return &v, true
}

func (s *Store[T]) write(ctx context.Context, key string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", s.entity, err)
	}
	return s.cache.Set(ctx, key, string(data), s.ttl)
}

// fill caches v. Failures degrade to cache-less operation.
func (s *Store[T]) fill(ctx context.Context, key string, v *T, op string) {
	if err := s.write(ctx, key, v); err != nil {
		s.metrics.RecordCacheDegraded(s.entity, op)
		s.logger.Warn("cache write failed, continuing without cache", "op", op, "key", key, "error", err)
	}
}

func (s *Store[T]) evictQuietly(ctx context.Context, key, op string) {
	if err := s.cache.Del(ctx, key); err != nil {
		s.metrics.RecordCacheDegraded(s.entity, op)
		s.logger.Error("cache evict failed, snapshot may be stale", "op", op, "key", key, "error", err)
	}
}

func (s *Store[T]) durableErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		return err
	}
	return &domain.DataAccessError{Op: op + " " + s.entity, Err: err}
}
