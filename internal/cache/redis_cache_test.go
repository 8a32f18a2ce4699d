package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisCache_StoreForwarded_Success(t *testing.T) {
	t.Parallel()

	// Start in-memory Redis
	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	ttl := 10 * time.Second
	cache := NewRedisCache(rdb, ttl)

	ctx := context.Background()
	forwardedAt := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

	err := cache.StoreForwarded(ctx, ForwardRecord{
		ChannelKey:  "1001",
		MessageID:   42,
		Target:      "best_memes",
		FunnyScore:  0.8,
		Involvement: 500,
		ForwardedAt: forwardedAt,
	})
	if err != nil {
		t.Fatalf("StoreForwarded() error: %v", err)
	}

	key := "fwd:1001:42"

	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}

	ttlRemaining := mr.TTL(key)
	if ttlRemaining <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttlRemaining)
	}

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("failed to get key %q: %v", key, err)
	}

	var got forwardedValue
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}

	if got.Target != "best_memes" {
		t.Fatalf("expected Target %q, got %q", "best_memes", got.Target)
	}
	if got.FunnyScore != 0.8 || got.Involvement != 500 {
		t.Fatalf("unexpected scores: %+v", got)
	}
	if !got.ForwardedAt.Equal(forwardedAt) {
		t.Fatalf("expected ForwardedAt %v, got %v", forwardedAt, got.ForwardedAt)
	}
}

func TestRedisCache_StoreForwarded_OverwritesExistingValue(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisCache(rdb, time.Minute)
	ctx := context.Background()

	// First write
	if err := cache.StoreForwarded(ctx, ForwardRecord{ChannelKey: "1", MessageID: 1, Target: "first", ForwardedAt: time.Now()}); err != nil {
		t.Fatalf("first StoreForwarded() error: %v", err)
	}

	// Second write should overwrite
	if err := cache.StoreForwarded(ctx, ForwardRecord{ChannelKey: "1", MessageID: 1, Target: "second", ForwardedAt: time.Now()}); err != nil {
		t.Fatalf("second StoreForwarded() error: %v", err)
	}

	raw, err := mr.Get("fwd:1:1")
	if err != nil {
		t.Fatalf("failed to get key fwd:1:1: %v", err)
	}

	var got forwardedValue
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}

	if got.Target != "second" {
		t.Fatalf("expected overwritten Target %q, got %q", "second", got.Target)
	}
}

func TestRedisCache_StoreForwarded_ContextCanceled(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisCache(rdb, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cache.StoreForwarded(ctx, ForwardRecord{ChannelKey: "1", MessageID: 1, ForwardedAt: time.Now()})
	if err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}
