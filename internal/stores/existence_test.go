package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newCacheTest(t *testing.T) (*ExistenceCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewExistenceCache(rdb, "og", 10*time.Minute), mr
}

func TestExistenceCacheMarkAndHas(t *testing.T) {
	cache, mr := newCacheTest(t)
	ctx := context.Background()

	if ok, err := cache.Has(ctx, "phone", "u1"); err != nil || ok {
		t.Fatalf("expected miss, got %v err=%v", ok, err)
	}

	if err := cache.Mark(ctx, "phone", "u1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !mr.Exists("og:rec:phone:u1") {
		t.Fatal("expected key og:rec:phone:u1")
	}
	if ttl := mr.TTL("og:rec:phone:u1"); ttl != 10*time.Minute {
		t.Fatalf("expected 10m ttl, got %s", ttl)
	}

	if ok, _ := cache.Has(ctx, "phone", "u1"); !ok {
		t.Fatal("expected hit after mark")
	}
	if ok, _ := cache.Has(ctx, "profile", "u1"); ok {
		t.Fatal("kinds must not share entries")
	}

	mr.FastForward(11 * time.Minute)
	if ok, _ := cache.Has(ctx, "phone", "u1"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestExistenceCacheRedisDown(t *testing.T) {
	cache, mr := newCacheTest(t)
	mr.Close()

	if _, err := cache.Has(context.Background(), "phone", "u1"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
	if err := cache.Mark(context.Background(), "phone", "u1"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestNilExistenceCache(t *testing.T) {
	var cache *ExistenceCache
	if ok, err := cache.Has(context.Background(), "phone", "u1"); ok || err != nil {
		t.Fatalf("nil cache should miss silently, got %v err=%v", ok, err)
	}
	if err := cache.Mark(context.Background(), "phone", "u1"); err != nil {
		t.Fatalf("nil cache mark: %v", err)
	}
}
