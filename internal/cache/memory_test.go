package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestMemory() (*Memory, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get on empty cache: err = %v, want ErrMiss", err)
	}
	if err := m.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if err := m.Set(ctx, "k", "v", 0); err == nil {
		t.Error("Set with zero ttl should fail")
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m, now := newTestMemory()

	_ = m.Set(ctx, "k", "v", time.Minute)
	*now = now.Add(59 * time.Second)
	if ok, _ := m.Exists(ctx, "k"); !ok {
		t.Fatal("entry expired early")
	}
	*now = now.Add(time.Second)
	if ok, _ := m.Exists(ctx, "k"); ok {
		t.Fatal("entry outlived its ttl")
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestMemoryCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	if ok, _ := m.CompareAndSwap(ctx, "k", "a", "b", time.Minute); ok {
		t.Fatal("swap on absent key should fail")
	}

	_ = m.Set(ctx, "k", "a", time.Minute)
	if ok, _ := m.CompareAndSwap(ctx, "k", "x", "b", time.Minute); ok {
		t.Fatal("swap with wrong expected value should fail")
	}
	if ok, _ := m.CompareAndSwap(ctx, "k", "a", "b", time.Minute); !ok {
		t.Fatal("swap with matching value should succeed")
	}
	if got, _ := m.Get(ctx, "k"); got != "b" {
		t.Errorf("value after swap = %q, want b", got)
	}
	if ok, _ := m.CompareAndSwap(ctx, "k", "a", "c", time.Minute); ok {
		t.Fatal("second swap with stale value should fail")
	}
}

func TestMemoryCompareAndSwapSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, "k", "old", time.Minute)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.CompareAndSwap(ctx, "k", "old", "new", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("wins = %d, want exactly 1", wins.Load())
	}
}

func TestMemoryCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()
	_ = m.Set(ctx, "k", "a", time.Minute)

	if ok, _ := m.CompareAndDelete(ctx, "k", "b"); ok {
		t.Fatal("delete with wrong value should fail")
	}
	if ok, _ := m.CompareAndDelete(ctx, "k", "a"); !ok {
		t.Fatal("delete with matching value should succeed")
	}
	if ok, _ := m.Exists(ctx, "k"); ok {
		t.Error("key should be gone")
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{UserKey("u1"), "user:u1"},
		{RefreshTokenKey("u1", "kakao"), "refresh-token:u1:kakao"},
		{BlacklistKey("tok"), "blacklist:access-token:tok"},
		{ProviderTokenKey("u1:apple"), "access-token:u1:apple"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}
